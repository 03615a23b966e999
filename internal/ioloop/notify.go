package ioloop

import (
	"github.com/fsnotify/fsnotify"

	"github.com/behrlich/gostream/internal/logging"
)

// notifyEntry ties a watched path back to its callback and owning set, so
// unregister() can remove the fsnotify watch without tearing down the
// shared watcher used by every other registration.
type notifyEntry struct {
	path string
	cb   NotifyCallback
	set  *notifySet
}

func (n *notifyEntry) unregister() {
	n.set.remove(n)
}

// notifySet multiplexes many RegisterNotify calls onto a single
// fsnotify.Watcher, dispatching each event to every callback registered
// for its path.
type notifySet struct {
	watcher   *fsnotify.Watcher
	byPath    map[string][]*notifyEntry
	log       *logging.Logger
}

func newNotifySet(log *logging.Logger) (*notifySet, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &notifySet{
		watcher: w,
		byPath:  make(map[string][]*notifyEntry),
		log:     log,
	}, nil
}

func (s *notifySet) register(path string, cb NotifyCallback) (*notifyEntry, error) {
	entries := s.byPath[path]
	if len(entries) == 0 {
		if err := s.watcher.Add(path); err != nil {
			return nil, err
		}
	}
	entry := &notifyEntry{path: path, cb: cb, set: s}
	s.byPath[path] = append(entries, entry)
	return entry, nil
}

func (s *notifySet) remove(entry *notifyEntry) {
	entries := s.byPath[entry.path]
	for i, e := range entries {
		if e == entry {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(s.byPath, entry.path)
		_ = s.watcher.Remove(entry.path)
		return
	}
	s.byPath[entry.path] = entries
}

// drain collects every pending fsnotify event without blocking and
// returns the callbacks due to fire, paired with the path that changed.
// Called once per Run iteration after the epoll wait returns; the caller
// invokes the returned callbacks only after releasing any lock held while
// draining, since a callback may reenter the loop (e.g. RegisterIO from
// within a notify handler).
func (s *notifySet) drain() []pendingNotify {
	var due []pendingNotify
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return due
			}
			for _, entry := range s.byPath[ev.Name] {
				due = append(due, pendingNotify{cb: entry.cb, path: ev.Name})
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return due
			}
			if s.log != nil {
				s.log.Warnf("notify watcher error: %v", err)
			}
		default:
			return due
		}
	}
}

// pendingNotify pairs a due notify callback with the path to invoke it
// with, deferred until after the loop's mutex is released.
type pendingNotify struct {
	cb   NotifyCallback
	path string
}

func (s *notifySet) close() error {
	return s.watcher.Close()
}
