package constants

import "time"

// Buffer sizing constants
//
// These mirror the growth policy of a buffered output stream: start small,
// double on overflow, and refuse to grow past a hard ceiling so a stalled
// peer can't turn one stream into unbounded memory use.
const (
	// DefaultBufferSize is the initial ring buffer allocation for a new
	// output stream.
	DefaultBufferSize = 4096

	// DefaultOptimalBlockSize is the buffer size used when the caller
	// passes a zero max-buffer-size hint.
	DefaultOptimalBlockSize = 4096

	// MaxOptimalBlockSize caps the optimal block size a stream adopts
	// from its fd's filesystem block size. Ring buffer growth itself is
	// capped by the stream's max buffer size.
	MaxOptimalBlockSize = 128 * 1024

	// MinReadaheadSize is a read-ahead chunk size for input-stream
	// transfers. SendFrom's copy loop does not use it: it requests
	// ReadData(1) per iteration and takes whatever the source returns.
	MinReadaheadSize = 4096
)

// IOV_MAX is the largest iovec count passed to a single writev call.
// Linux's UIO_MAXIOV is 1024; chunk any larger vector into multiple
// writev calls rather than fail outright.
const IOVMax = 1024

// Sendfile tuning
const (
	// MaxSendfileSize bounds a single sendfile(2) call so a multi-gigabyte
	// transfer doesn't block the event loop for one syscall's duration.
	MaxSendfileSize = 8 * 1024 * 1024
)

// Polling and timer intervals for the reference event loop implementation.
const (
	// DefaultEpollTimeout bounds how long a single epoll_wait blocks when
	// no timers are registered, so loop shutdown is always noticed promptly.
	DefaultEpollTimeout = 1 * time.Second

	// NotifyDebounce is a coalescing interval for bursts of
	// filesystem-notify events. The reference event loop does not apply
	// it: every event collected in a pass is dispatched to its callbacks.
	NotifyDebounce = 20 * time.Millisecond
)
