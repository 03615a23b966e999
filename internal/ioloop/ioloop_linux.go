//go:build linux

package ioloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/behrlich/gostream/internal/constants"
	"github.com/behrlich/gostream/internal/logging"
)

// ioEntry is one fd's registration in the reactor's handle table, keyed
// by fd the way the teacher's runner keys in-flight tags by tag number.
type ioEntry struct {
	fd   int
	cond Condition
	cb   IOCallback
	loop *epollLoop
}

func (e *ioEntry) unregister() {
	e.loop.UnregisterIO(e)
}

// epollLoop implements Loop on top of epoll_create1/epoll_ctl/epoll_wait,
// generalizing the iqhive-go-proxyproto zero-copy relay's one-shot epoll
// usage into a persistent, single-goroutine reactor with a handle table.
type epollLoop struct {
	epfd    int
	entries map[int32]*ioEntry
	timers  *timerQueue
	notify  *notifySet
	now     time.Time
	stopped atomic.Bool
	log     *logging.Logger
	mu      sync.Mutex // guards entries/timers; only contested by Register/Unregister calls made from outside Run
}

// New creates an epoll-backed Loop.
func New(log *logging.Logger) (*epollLoop, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollLoop{
		epfd:    epfd,
		entries: make(map[int32]*ioEntry),
		timers:  newTimerQueue(),
		log:     log,
	}, nil
}

func conditionToEpollEvents(cond Condition) uint32 {
	var events uint32
	if cond&Readable != 0 {
		events |= unix.EPOLLIN
	}
	if cond&Writable != 0 {
		events |= unix.EPOLLOUT
	}
	if cond&ErrorCond != 0 {
		events |= unix.EPOLLERR | unix.EPOLLHUP
	}
	return events
}

func (l *epollLoop) RegisterIO(fd int, cond Condition, cb IOCallback) (IOHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := &ioEntry{fd: fd, cond: cond, loop: l, cb: cb}
	ev := unix.EpollEvent{Events: conditionToEpollEvents(cond), Fd: int32(fd)}

	op := unix.EPOLL_CTL_ADD
	if _, exists := l.entries[int32(fd)]; exists {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(l.epfd, op, fd, &ev); err != nil {
		return nil, err
	}
	l.entries[int32(fd)] = entry
	return entry, nil
}

func (l *epollLoop) UnregisterIO(h IOHandle) {
	entry, ok := h.(*ioEntry)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.entries[int32(entry.fd)]; !exists {
		return
	}
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, entry.fd, nil)
	delete(l.entries, int32(entry.fd))
}

func (l *epollLoop) RegisterTimer(d time.Duration, cb TimerCallback) TimerHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timers.add(l.Now(), d, cb)
}

func (l *epollLoop) UnregisterTimer(h TimerHandle) {
	if item, ok := h.(*timerItem); ok {
		item.unregister()
	}
}

func (l *epollLoop) RegisterNotify(path string, cb NotifyCallback) (NotifyHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.notify == nil {
		set, err := newNotifySet(l.log)
		if err != nil {
			// Resource exhaustion or unsupported platform: non-fatal,
			// callers fall back to periodic polling.
			return nil, nil
		}
		l.notify = set
	}
	return l.notify.register(path, cb)
}

func (l *epollLoop) UnregisterNotify(h NotifyHandle) {
	if entry, ok := h.(*notifyEntry); ok {
		entry.unregister()
	}
}

func (l *epollLoop) Now() time.Time {
	if l.now.IsZero() {
		return time.Now()
	}
	return l.now
}

func (l *epollLoop) Stop() {
	l.stopped.Store(true)
}

// Run dispatches epoll and timer events until ctx is cancelled or Stop is
// called, one pass per iteration, single goroutine, no reentrancy.
func (l *epollLoop) Run(ctx context.Context) error {
	events := make([]unix.EpollEvent, 64)

	for {
		if l.stopped.Load() || ctx.Err() != nil {
			return nil
		}

		l.now = time.Now()

		timeout := int(constants.DefaultEpollTimeout / time.Millisecond)
		l.mu.Lock()
		if d, ok := l.timers.nextTimeout(l.now); ok {
			ms := int(d / time.Millisecond)
			if ms < timeout {
				timeout = ms
			}
		}
		l.mu.Unlock()

		n, err := unix.EpollWait(l.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		l.now = time.Now()

		l.mu.Lock()
		dispatch := make([]IOCallback, 0, n)
		for i := 0; i < n; i++ {
			entry, ok := l.entries[events[i].Fd]
			if !ok {
				continue
			}
			dispatch = append(dispatch, entry.cb)
		}
		dueTimers := l.timers.fire(l.now)
		var dueNotify []pendingNotify
		if l.notify != nil {
			dueNotify = l.notify.drain()
		}
		l.mu.Unlock()

		// Every callback below runs after l.mu is released: a handler is
		// allowed to register or unregister other handlers, including
		// itself, and those calls take l.mu again on this same goroutine.
		for _, cb := range dispatch {
			cb()
		}
		for _, cb := range dueTimers {
			cb()
		}
		for _, pn := range dueNotify {
			pn.cb(pn.path)
		}
	}
}

func (l *epollLoop) Close() error {
	if l.notify != nil {
		_ = l.notify.close()
	}
	return unix.Close(l.epfd)
}

var _ Loop = (*epollLoop)(nil)
