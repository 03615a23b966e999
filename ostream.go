// Package gostream implements a buffered, non-blocking output stream over
// a single file descriptor (regular file or socket), with cork/uncork,
// a sendfile(2) zero-copy fast path, and an external event-loop contract
// for write-readiness, timers, and filesystem-change notification.
package gostream

import (
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/behrlich/gostream/internal/constants"
	"github.com/behrlich/gostream/internal/ioloop"
	"github.com/behrlich/gostream/internal/ioutil"
	"github.com/behrlich/gostream/internal/pool"
)

// FlushCallback is an optional user hook invoked on write-readiness in
// lieu of the default flush. It returns 1 when fully drained, 0 when more
// work remains (flush_pending is set for the caller), matching the
// sentinel convention Flush itself uses.
type FlushCallback func() int

// OutputStreamOptions configures a new OutputStream.
type OutputStreamOptions struct {
	// MaxBufferSize caps ring buffer growth. Zero selects the stream's
	// optimal block size (OptimalBlockSize, raised to the fd's filesystem
	// block size up to constants.MaxOptimalBlockSize).
	MaxBufferSize int

	// OptimalBlockSize biases growth-while-corked and gates the sendv
	// fast path. Zero selects constants.DefaultOptimalBlockSize.
	OptimalBlockSize int

	// AutoClose closes the underlying fd when the stream is closed.
	AutoClose bool

	// IsRegularFile marks the fd as a plain file rather than a socket,
	// disabling kernel TCP_CORK and enabling Seek.
	IsRegularFile bool

	// Loop is the event loop used to register write-readiness, used by
	// SendV's slow path and the corked->uncorked transition. Nil is
	// valid for streams that never want non-blocking behavior; such
	// streams simply never register a handler and callers must drive
	// Flush themselves.
	Loop ioloop.Loop

	// Observer receives stream metrics events. Nil selects NoOpObserver.
	Observer Observer

	// Pool supplies ring-buffer growth sizing and buffer reuse. Nil
	// selects a fresh pool.New().
	Pool *pool.Pool
}

// OutputStream is a buffered, non-blocking writer over a single fd.
type OutputStream struct {
	mu sync.Mutex // guards closed/refcount against a concurrent Close/Unref;
	// Send/SendV/Flush take no lock on the hot path.

	fd            int
	isRegularFile bool
	autoclose     bool

	buf              []byte
	maxBufferSize    int
	optimalBlockSize int
	head, tail       int
	full             bool

	corked       bool
	flushPending bool
	noSocketCork bool
	noSendfile   bool

	loop         ioloop.Loop
	ioHandle     ioloop.IOHandle
	ioRegistered bool

	offset      int64
	streamErrno error
	overflow    bool
	closed      bool
	refcount    atomic.Int32

	flushCallback FlushCallback
	pool          *pool.Pool
	observer      Observer
}

// New creates an OutputStream over fd. The caller holds the single
// reference returned; Ref/Unref adjust it further.
func New(fd int, opts OutputStreamOptions) (*OutputStream, error) {
	optimalBlockSize := opts.OptimalBlockSize
	if optimalBlockSize <= 0 {
		optimalBlockSize = constants.DefaultOptimalBlockSize
	}

	// Inspect the fd once at construction time: seekable fds seed their
	// initial offset from the current position and never use sendfile
	// (sendfile is for socket outputs of file inputs, not the reverse); a
	// regular file additionally disables kernel TCP_CORK. A non-seekable
	// fd that also isn't a socket (a pipe or special device) gets the
	// same sendfile/cork restrictions without an offset to seed.
	probe := ioutil.Probe(fd)
	isRegularFile := opts.IsRegularFile || probe.IsRegularFile
	noSocketCork := false
	noSendfile := false
	var initialOffset int64
	if probe.Seekable {
		initialOffset = probe.InitialOffset
		noSendfile = true
		if probe.IsRegularFile {
			noSocketCork = true
		}
	} else if !probe.IsSocket {
		noSendfile = true
		noSocketCork = true
	}
	if probe.BlockSize > int64(optimalBlockSize) {
		bs := probe.BlockSize
		if bs > constants.MaxOptimalBlockSize {
			bs = constants.MaxOptimalBlockSize
		}
		optimalBlockSize = int(bs)
	}

	maxBufferSize := opts.MaxBufferSize
	if maxBufferSize <= 0 {
		maxBufferSize = optimalBlockSize
	}
	if optimalBlockSize > maxBufferSize {
		optimalBlockSize = maxBufferSize
	}

	p := opts.Pool
	if p == nil {
		p = pool.New()
	}

	observer := opts.Observer
	if observer == nil {
		observer = NoOpObserver{}
	}

	initial := constants.DefaultBufferSize
	if initial > maxBufferSize {
		initial = maxBufferSize
	}

	s := &OutputStream{
		fd:               fd,
		isRegularFile:    isRegularFile,
		autoclose:        opts.AutoClose,
		buf:              p.Acquire(initial),
		maxBufferSize:    maxBufferSize,
		optimalBlockSize: optimalBlockSize,
		noSocketCork:     noSocketCork,
		noSendfile:       noSendfile,
		offset:           initialOffset,
		loop:             opts.Loop,
		pool:             p,
		observer:         observer,
	}
	s.refcount.Store(1)

	// Best-effort: a failure here just means the fd stays in whatever
	// blocking mode it started in; SendV/Flush still function, they simply
	// cannot distinguish a short write from a would-block on such an fd.
	_ = ioutil.SetNonblock(fd, true)

	return s, nil
}

// Ref adds a reference to the stream, mirroring o_stream_ref.
func (s *OutputStream) Ref() {
	s.refcount.Add(1)
}

// Unref drops a reference; the caller must not use s after the refcount
// reaches zero.
func (s *OutputStream) Unref() {
	if s.refcount.Add(-1) == 0 {
		_ = s.Close()
	}
}

// BufferedLen returns the number of bytes currently held in the ring
// buffer, not yet transmitted.
func (s *OutputStream) BufferedLen() int {
	return s.used()
}

// Offset returns the logical stream offset: total bytes successfully
// enqueued via Send/SendV/SendFrom, not necessarily transmitted yet.
func (s *OutputStream) Offset() int64 {
	return s.offset
}

// Overflow reports whether any caller-supplied byte was ever neither sent
// nor buffered. The flag is sticky and never cleared by the stream.
func (s *OutputStream) Overflow() bool {
	return s.overflow
}

// StreamError returns the last recorded I/O error, or nil.
func (s *OutputStream) StreamError() error {
	return s.streamErrno
}

// Send is equivalent to SendV with a single-entry vector.
func (s *OutputStream) Send(p []byte) (int, error) {
	return s.SendV([][]byte{p})
}

// SendV is the heart of the stream: accept as much of iov as possible,
// attempting a direct scatter write when uncorked or large enough, and
// buffering the remainder.
func (s *OutputStream) SendV(iov [][]byte) (int, error) {
	if s.closed {
		return -1, NewError("SendV", ErrCodeClosed, "stream is closed")
	}

	total := 0
	for _, v := range iov {
		total += len(v)
	}
	if total == 0 {
		return 0, nil
	}

	if total > s.unusedSpace() && !s.isEmpty() {
		if _, err := s.Flush(); err != nil {
			return -1, err
		}
	}

	optimal := s.optimalBlockSize
	if optimal > s.maxBufferSize {
		optimal = s.maxBufferSize
	}

	accepted := 0
	rest := iov

	if s.isEmpty() && (!s.corked || total >= optimal) {
		n, err := s.writevDirect(iov)
		if err != nil && !isWouldBlock(err) {
			s.fail("SendV", err)
			return -1, err
		}
		accepted += n
		rest = consumeVectors(iov, n)

		if len(rest) > 0 {
			first := rest[0]
			appended := s.append(first)
			accepted += appended
			if appended < len(first) {
				s.overflow = true
				s.observer.ObserveOverflow()
				s.offset += int64(accepted)
				s.ensureWriteHandlerIfNeeded()
				s.observer.ObserveSend(uint64(accepted))
				return accepted, nil
			}
			rest = rest[1:]
		} else {
			rest = nil
		}
	}

	for _, v := range rest {
		appended := s.append(v)
		accepted += appended
		if appended < len(v) {
			s.overflow = true
			s.observer.ObserveOverflow()
			break
		}
	}

	s.offset += int64(accepted)
	s.ensureWriteHandlerIfNeeded()
	s.observer.ObserveSend(uint64(accepted))

	return accepted, nil
}

// ensureWriteHandlerIfNeeded registers the write-readiness handler when
// bytes remain buffered on a non-regular, non-corked fd with no handler
// already registered.
func (s *OutputStream) ensureWriteHandlerIfNeeded() {
	if s.isRegularFile || s.corked || s.ioRegistered || s.loop == nil {
		return
	}
	if s.isEmpty() {
		return
	}
	s.registerWriteHandler()
}

func (s *OutputStream) registerWriteHandler() {
	if s.ioRegistered || s.loop == nil {
		return
	}
	h, err := s.loop.RegisterIO(s.fd, ioloop.Writable, s.onWritable)
	if err != nil {
		// Registration failure leaves flushPending-driven retry as the
		// only path forward; the stream itself never logs (see §7).
		return
	}
	s.ioHandle = h
	s.ioRegistered = true
}

func (s *OutputStream) unregisterWriteHandler() {
	if !s.ioRegistered || s.loop == nil {
		return
	}
	s.loop.UnregisterIO(s.ioHandle)
	s.ioHandle = nil
	s.ioRegistered = false
}

// onWritable is the internal write-readiness dispatch, invoked by the
// event loop when the kernel reports the fd is writable.
func (s *OutputStream) onWritable() {
	s.flushPending = false

	s.Ref()
	defer s.Unref()

	result := 0
	if s.flushCallback != nil {
		result = s.flushCallback()
	} else {
		n, err := s.Flush()
		if err != nil {
			return
		}
		result = n
	}

	if result == 0 {
		s.flushPending = true
	}

	if !s.flushPending && s.isEmpty() {
		s.unregisterWriteHandler()
	} else {
		s.registerWriteHandler()
	}
}

// Flush drains the buffer with a single scatter write. Returns 1 if empty
// after draining, 0 if bytes remain, and a non-nil error on failure. It
// never blocks awaiting readiness.
func (s *OutputStream) Flush() (int, error) {
	if s.closed {
		return -1, NewError("Flush", ErrCodeClosed, "stream is closed")
	}
	if s.isEmpty() {
		return 1, nil
	}

	start := time.Now()
	iov := s.fillIovec()
	n, err := ioutil.Writev(s.fd, iov, constants.IOVMax)
	s.advanceHead(n)

	latency := uint64(time.Since(start).Nanoseconds())

	if err != nil && !isWouldBlock(err) {
		s.observer.ObserveFlush(latency, false, false)
		s.fail("Flush", err)
		return -1, err
	}
	if err != nil {
		s.observer.ObserveWouldBlock()
	}

	wroteAll := s.isEmpty()
	s.observer.ObserveFlush(latency, wroteAll, true)
	if !wroteAll {
		return 0, nil
	}
	return 1, nil
}

// Cork toggles corking. Uncorking from a corked state attempts a flush;
// corking tears down the write-readiness handler so bytes accumulate.
func (s *OutputStream) Cork(set bool) {
	if s.corked == set {
		return
	}
	s.corked = set
	s.observer.ObserveCorkToggle()

	if set {
		s.unregisterWriteHandler()
		if !s.isRegularFile && !s.noSocketCork {
			if err := ioutil.SetCork(s.fd, true); err != nil {
				s.noSocketCork = true
			}
		}
		return
	}

	// Uncorking.
	if !s.isRegularFile && !s.noSocketCork {
		_ = ioutil.SetCork(s.fd, false)
	}
	n, err := s.Flush()
	if err == nil && (n == 0 || s.flushPending) {
		s.registerWriteHandler()
	}
}

// Seek repositions the fd. Only valid on regular files; flushes first.
func (s *OutputStream) Seek(offset int64) error {
	if !s.isRegularFile {
		return NewError("Seek", ErrCodeInvalidArgument, "seek only valid on regular files")
	}
	if _, err := s.Flush(); err != nil {
		s.streamErrno = err
		return err
	}
	if _, err := seekFd(s.fd, offset); err != nil {
		s.streamErrno = err
		return err
	}
	s.offset = offset
	s.streamErrno = nil
	return nil
}

// SetFlushCallback installs a user hook invoked on write-readiness in
// lieu of the default flush.
func (s *OutputStream) SetFlushCallback(cb FlushCallback) {
	s.flushCallback = cb
}

// SetFlushPending sets the flush_pending flag. When setting true while
// not corked and no handler is registered, a handler is registered.
func (s *OutputStream) SetFlushPending(set bool) {
	s.flushPending = set
	if set && !s.corked {
		s.registerWriteHandler()
	}
}

// Close flushes synchronously, detaches the fd (closing it if
// AutoClose), and marks the stream terminal. Safe to call from a
// different goroutine than the stream's owner.
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	_, _ = s.Flush()
	s.unregisterWriteHandler()
	s.closed = true
	s.observer = NoOpObserver{}

	if s.pool != nil && cap(s.buf) > 0 {
		s.pool.Release(s.buf)
		s.buf = nil
	}

	if s.autoclose {
		return closeFd(s.fd)
	}
	return nil
}

func (s *OutputStream) fail(op string, err error) {
	wrapped := WrapError(op, err)
	s.streamErrno = wrapped
	s.unregisterWriteHandler()
	s.closed = true
	if s.autoclose {
		_ = closeFd(s.fd)
	}
}

// writevDirect performs the sendv fast path: a direct scatter write to
// the fd, bypassing the ring buffer entirely.
func (s *OutputStream) writevDirect(iov [][]byte) (int, error) {
	n, err := ioutil.Writev(s.fd, iov, constants.IOVMax)
	if err != nil {
		if isWouldBlock(err) {
			s.observer.ObserveWouldBlock()
			return n, err
		}
		return n, err
	}
	return n, nil
}

// consumeVectors returns the suffix of iov remaining after n bytes have
// been consumed from the front, with the first remaining entry truncated
// to its unconsumed tail.
func consumeVectors(iov [][]byte, n int) [][]byte {
	remaining := n
	for i, v := range iov {
		if remaining < len(v) {
			rest := make([][]byte, 0, len(iov)-i)
			rest = append(rest, v[remaining:])
			rest = append(rest, iov[i+1:]...)
			return rest
		}
		remaining -= len(v)
	}
	return nil
}

func isWouldBlock(err error) bool {
	if err == nil {
		return false
	}
	if IsCode(err, ErrCodeWouldBlock) {
		return true
	}
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EINTR)
}
