package gostream

import (
	"errors"
	"syscall"

	"github.com/behrlich/gostream/internal/constants"
	"github.com/behrlich/gostream/internal/ioutil"
	"github.com/behrlich/gostream/internal/istream"
)

// overlapKind classifies a same-fd transfer's relationship between the
// destination's write offset and the source's read offset.
type overlapKind int

const (
	overlapNone overlapKind = iota
	overlapSelf             // delta == 0: copying a range onto itself
	overlapForward          // delta < 0: safe to copy head-to-tail
	overlapBackward         // delta > 0: must copy tail-to-head
)

// detectOverlap computes the overlap relationship between s and src per
// the delta formula: output.offset - source.absolute_start + source.virtual_offset.
func (s *OutputStream) detectOverlap(src istream.Stream) (kind overlapKind, delta int64) {
	if src.Fd() < 0 || src.Fd() != s.fd {
		return overlapNone, 0
	}
	delta = s.offset - src.AbsoluteStartOffset() + src.VirtualOffset()
	switch {
	case delta == 0:
		return overlapSelf, delta
	case delta < 0:
		return overlapForward, delta
	default:
		return overlapBackward, delta
	}
}

// SendFrom transfers bytes from src, preferring a zero-copy sendfile(2)
// fast path and falling back to a buffered copy when sendfile is
// unsupported or the remaining bytes don't empty the source via sendfile
// alone. A transfer that overlaps backward onto itself skips both and is
// copied tail-to-head with blocking writes that bypass the ring buffer.
// It returns the number of source bytes consumed, or -1 with a non-nil
// error.
func (s *OutputStream) SendFrom(src istream.Stream) (int64, error) {
	if s.closed {
		return -1, NewError("SendFrom", ErrCodeClosed, "stream is closed")
	}

	size, sizeKnown := src.Stat(false)
	if !sizeKnown && src.Fd() >= 0 && src.Fd() == s.fd {
		return -1, NewError("SendFrom", ErrCodeInvalidArgument, "unknown size on same-fd transfer")
	}

	kind, _ := s.detectOverlap(src)
	if kind == overlapSelf {
		if sizeKnown {
			return size - src.VirtualOffset(), nil
		}
		return 0, nil
	}

	var total int64

	if kind != overlapBackward && !s.noSendfile && src.Fd() >= 0 {
		n, done, err := s.sendfileFastPath(src, size, sizeKnown)
		total += n
		if err != nil {
			return -1, err
		}
		if done {
			return total, nil
		}
	}

	if kind == overlapBackward {
		n, err := s.copyBackward(src, size)
		if err != nil {
			return -1, err
		}
		return total + n, nil
	}

	n, err := s.copyForward(src, size, sizeKnown)
	if err != nil {
		return -1, err
	}
	return total + n, nil
}

// sendfileFastPath loops calling sendfile(2) until the source is
// exhausted, the kernel rejects the transfer (EINVAL, triggering a sticky
// noSendfile fallback), or the call would block. done reports whether
// the caller should return rather than fall through to the buffered
// path: true when the source is exhausted (known size reached or a zero
// return), and also when the call would block on a source of unknown
// size. A would-block on a source of known size returns done=false.
func (s *OutputStream) sendfileFastPath(src istream.Stream, size int64, sizeKnown bool) (n int64, done bool, err error) {
	if _, ferr := s.Flush(); ferr != nil {
		return 0, false, ferr
	}

	for {
		if sizeKnown {
			remaining := size - src.VirtualOffset()
			if remaining <= 0 {
				return n, true, nil
			}
		}

		count := constants.MaxSendfileSize
		if sizeKnown {
			remaining := int(size - src.VirtualOffset())
			if remaining < count {
				count = remaining
			}
		}

		off := src.AbsoluteStartOffset() + src.VirtualOffset()
		written, serr := ioutil.Sendfile(s.fd, src.Fd(), &off, count)
		if written > 0 {
			src.Skip(int64(written))
			s.offset += int64(written)
			n += int64(written)
			s.observer.ObserveSendfile(uint64(written))
		}

		if serr != nil {
			if isWouldBlock(serr) {
				s.observer.ObserveWouldBlock()
				return n, !sizeKnown, nil
			}
			if errors.Is(serr, syscall.EINVAL) {
				s.noSendfile = true
				s.observer.ObserveSendfileFallback()
				return n, false, nil
			}
			s.fail("SendFrom", serr)
			return n, false, serr
		}

		if written == 0 {
			return n, true, nil
		}
	}
}

// copyForward handles the non-overlapping and forward-overlap cases:
// combine buffered bytes with freshly read source bytes into scatter
// writes bounded by optimalBlockSize.
func (s *OutputStream) copyForward(src istream.Stream, size int64, sizeKnown bool) (int64, error) {
	var total int64

	for {
		if sizeKnown && src.VirtualOffset() >= size {
			break
		}

		chunk, err := src.ReadData(1)
		if err != nil {
			return total, WrapError("SendFrom", err)
		}
		if len(chunk) == 0 {
			break
		}
		if len(chunk) > s.optimalBlockSize {
			chunk = chunk[:s.optimalBlockSize]
		}
		if src.IsMemoryMapped() {
			cp := make([]byte, len(chunk))
			copy(cp, chunk)
			chunk = cp
		}

		accepted, err := s.SendV([][]byte{chunk})
		if accepted > 0 {
			src.Skip(int64(accepted))
			total += int64(accepted)
		}
		if err != nil {
			return total, err
		}
		if accepted < len(chunk) {
			// Ring buffer refused the remainder; stop and let the caller
			// resume once drained (overflow is already recorded by SendV).
			break
		}
	}

	return total, nil
}

// copyBackward handles same-fd transfers where the destination offset is
// ahead of the source: copying must proceed from the end of the source
// range backward to avoid clobbering unread bytes, and each write blocks
// (write_full semantics) rather than going through the ring buffer.
func (s *OutputStream) copyBackward(src istream.Stream, size int64) (int64, error) {
	if !isSizeKnown(size) {
		return 0, NewError("SendFrom", ErrCodeInvalidArgument, "backward overlap requires a known size")
	}

	if s.optimalBlockSize > s.maxBufferSize {
		s.optimalBlockSize = s.maxBufferSize
	}
	chunkSize := int64(s.optimalBlockSize)

	// write_full below must actually block until each chunk lands, so
	// temporarily drop O_NONBLOCK for the duration of this transfer.
	_ = ioutil.SetNonblock(s.fd, false)
	defer func() { _ = ioutil.SetNonblock(s.fd, true) }()

	start := src.VirtualOffset()
	destStart := s.offset
	end := size
	var total int64

	for end > start {
		begin := end - chunkSize
		if begin < start {
			begin = start
		}
		n := end - begin

		if err := src.Seek(begin); err != nil {
			return total, WrapError("SendFrom", err)
		}
		buf, err := src.ReadData(int(n))
		if err != nil {
			return total, WrapError("SendFrom", err)
		}
		if int64(len(buf)) > n {
			buf = buf[:n]
		}
		if src.IsMemoryMapped() {
			cp := make([]byte, len(buf))
			copy(cp, buf)
			buf = cp
		}

		writeOffset := destStart + (begin - start)
		if err := s.writeFullAt(writeOffset, buf); err != nil {
			return total, err
		}

		total += int64(len(buf))
		end = begin
	}

	s.offset += total
	src.Skip(size - start)
	return total, nil
}

func isSizeKnown(size int64) bool {
	return size >= 0
}

// writeFullAt blocks until all of buf is written at the given absolute
// fd offset, used only by the backward-overlap path where a buffered,
// non-blocking write would risk the destination racing ahead of bytes
// the source hasn't read yet.
func (s *OutputStream) writeFullAt(offset int64, buf []byte) error {
	for len(buf) > 0 {
		n, err := syscall.Pwrite(s.fd, buf, offset)
		if err != nil {
			s.fail("SendFrom", err)
			return WrapError("SendFrom", err)
		}
		if n == 0 {
			s.fail("SendFrom", syscall.EIO)
			return NewErrorWithErrno("SendFrom", ErrCodeTransport, syscall.EIO)
		}
		buf = buf[n:]
		offset += int64(n)
	}
	return nil
}
