package gostream

import (
	"context"
	"sync"
	"time"

	"github.com/behrlich/gostream/internal/ioloop"
)

// MockLoop provides an in-memory ioloop.Loop for unit tests: Register calls
// record callbacks instead of driving a real reactor, and test code fires
// them directly via FireWritable/AdvanceTime/FireNotify.
type MockLoop struct {
	mu sync.Mutex

	ioHandles    map[int]*mockIOHandle
	timerHandles []*mockTimerHandle
	notifyByPath map[string][]*mockNotifyHandle

	now time.Time

	registerIOCalls   int
	unregisterIOCalls int
}

// NewMockLoop creates a mock loop useful for unit testing code that depends
// on ioloop.Loop without driving a real epoll reactor.
func NewMockLoop() *MockLoop {
	return &MockLoop{
		ioHandles:    make(map[int]*mockIOHandle),
		notifyByPath: make(map[string][]*mockNotifyHandle),
		now:          time.Unix(0, 0),
	}
}

type mockIOHandle struct {
	loop *MockLoop
	fd   int
	cond ioloop.Condition
	cb   ioloop.IOCallback
}

func (h *mockIOHandle) unregister() {
	h.loop.mu.Lock()
	defer h.loop.mu.Unlock()
	delete(h.loop.ioHandles, h.fd)
}

type mockTimerHandle struct {
	loop     *MockLoop
	deadline time.Time
	cb       ioloop.TimerCallback
	canceled bool
}

func (h *mockTimerHandle) unregister() {
	h.loop.mu.Lock()
	defer h.loop.mu.Unlock()
	h.canceled = true
}

type mockNotifyHandle struct {
	loop *MockLoop
	path string
	cb   ioloop.NotifyCallback
}

func (h *mockNotifyHandle) unregister() {
	h.loop.mu.Lock()
	defer h.loop.mu.Unlock()
	list := h.loop.notifyByPath[h.path]
	for i, e := range list {
		if e == h {
			h.loop.notifyByPath[h.path] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// RegisterIO implements ioloop.Loop.
func (l *MockLoop) RegisterIO(fd int, cond ioloop.Condition, cb ioloop.IOCallback) (ioloop.IOHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registerIOCalls++
	h := &mockIOHandle{loop: l, fd: fd, cond: cond, cb: cb}
	l.ioHandles[fd] = h
	return h, nil
}

// UnregisterIO implements ioloop.Loop.
func (l *MockLoop) UnregisterIO(h ioloop.IOHandle) {
	l.mu.Lock()
	l.unregisterIOCalls++
	l.mu.Unlock()
	if h != nil {
		h.unregister()
	}
}

// RegisterTimer implements ioloop.Loop.
func (l *MockLoop) RegisterTimer(d time.Duration, cb ioloop.TimerCallback) ioloop.TimerHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := &mockTimerHandle{loop: l, deadline: l.now.Add(d), cb: cb}
	l.timerHandles = append(l.timerHandles, h)
	return h
}

// UnregisterTimer implements ioloop.Loop.
func (l *MockLoop) UnregisterTimer(h ioloop.TimerHandle) {
	if h != nil {
		h.unregister()
	}
}

// RegisterNotify implements ioloop.Loop.
func (l *MockLoop) RegisterNotify(path string, cb ioloop.NotifyCallback) (ioloop.NotifyHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := &mockNotifyHandle{loop: l, path: path, cb: cb}
	l.notifyByPath[path] = append(l.notifyByPath[path], h)
	return h, nil
}

// UnregisterNotify implements ioloop.Loop.
func (l *MockLoop) UnregisterNotify(h ioloop.NotifyHandle) {
	if h != nil {
		h.unregister()
	}
}

// Now implements ioloop.Loop.
func (l *MockLoop) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// Run blocks until ctx is cancelled; test code drives dispatch directly
// via FireWritable/AdvanceTime/FireNotify rather than through Run.
func (l *MockLoop) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Stop is a no-op; MockLoop's Run only ever exits via ctx cancellation.
func (l *MockLoop) Stop() {}

// FireWritable invokes the callback registered for fd, if any, reporting
// whether one was found.
func (l *MockLoop) FireWritable(fd int) bool {
	l.mu.Lock()
	h, ok := l.ioHandles[fd]
	l.mu.Unlock()
	if !ok {
		return false
	}
	h.cb()
	return true
}

// AdvanceTime moves the mock loop's clock forward and fires any timers
// whose deadline has now passed.
func (l *MockLoop) AdvanceTime(d time.Duration) {
	l.mu.Lock()
	l.now = l.now.Add(d)
	now := l.now
	var due []*mockTimerHandle
	remaining := l.timerHandles[:0]
	for _, h := range l.timerHandles {
		if h.canceled {
			continue
		}
		if !h.deadline.After(now) {
			due = append(due, h)
		} else {
			remaining = append(remaining, h)
		}
	}
	l.timerHandles = remaining
	l.mu.Unlock()

	for _, h := range due {
		h.cb()
	}
}

// FireNotify invokes every callback registered for path.
func (l *MockLoop) FireNotify(path string) {
	l.mu.Lock()
	handles := append([]*mockNotifyHandle(nil), l.notifyByPath[path]...)
	l.mu.Unlock()
	for _, h := range handles {
		h.cb(path)
	}
}

// IsRegistered reports whether a write-readiness handler is currently
// registered for fd.
func (l *MockLoop) IsRegistered(fd int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ioHandles[fd]
	return ok
}

// RegisterIOCalls returns the number of times RegisterIO has been called.
func (l *MockLoop) RegisterIOCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registerIOCalls
}

var _ ioloop.Loop = (*MockLoop)(nil)
