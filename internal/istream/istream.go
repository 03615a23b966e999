// Package istream defines the input-stream contract an output stream's
// zero-copy transfer path (SendFrom) consumes: a readable, seekable byte
// source that may or may not back onto a real fd eligible for sendfile(2).
package istream

// Stream is the read side of a zero-copy transfer.
type Stream interface {
	// Stat reports the stream's total size. ok is false when the size is
	// unknown (a pipe, a growing log file without exactSize); exactSize
	// requests an accurate stat even if that costs an extra syscall.
	Stat(exactSize bool) (size int64, ok bool)

	// Fd returns the underlying file descriptor, or -1 if the stream
	// isn't fd-backed and therefore can never be a sendfile source.
	Fd() int

	// VirtualOffset is how far SendFrom has logically advanced through
	// this source, independent of the fd's own read/write position.
	VirtualOffset() int64

	// AbsoluteStartOffset is the fd offset this stream began reading
	// from; combined with VirtualOffset it lets SendFrom compute overlap
	// against the destination's own offset on the same fd.
	AbsoluteStartOffset() int64

	// Seek repositions the stream to an absolute offset.
	Seek(offset int64) error

	// ReadData returns at least minSize bytes when available, possibly
	// more. A zero-length result signals end-of-stream at the current
	// offset.
	ReadData(minSize int) ([]byte, error)

	// Skip advances the stream's virtual offset by n bytes without
	// returning their contents.
	Skip(n int64)

	// IsMemoryMapped reports whether the stream's buffer aliases a
	// memory-mapped region of the underlying fd, which forces a copy
	// before any write that might otherwise read directly from the
	// mapping.
	IsMemoryMapped() bool
}
