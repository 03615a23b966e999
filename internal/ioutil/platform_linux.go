//go:build linux

// Package ioutil wraps the handful of raw POSIX primitives an output
// stream needs that the standard library doesn't expose: TCP_CORK,
// sendfile(2), and a chunked writev(2).
package ioutil

import (
	"golang.org/x/sys/unix"
)

// SetNonblock marks fd non-blocking so every read/write/sendfile on it
// returns EAGAIN instead of blocking the event loop.
func SetNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

// SetCork toggles TCP_CORK on a socket fd. Corking a regular file has no
// kernel-level equivalent; callers are expected to only call this on a
// socket fd and fall back to buffer-only corking otherwise.
func SetCork(fd int, on bool) error {
	val := 0
	if on {
		val = 1
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_CORK, val)
}

// Writev writes iovecs to fd, chunking at IOVMax so the syscall never
// receives more vectors than the kernel accepts in one call. It returns
// the total bytes written across all chunks, stopping at the first error
// or the first short write (a short write means the fd is no longer
// writable; the caller re-issues the remainder on the next writable
// callback rather than this call looping on EAGAIN).
func Writev(fd int, iovecs [][]byte, iovMax int) (int, error) {
	total := 0
	for len(iovecs) > 0 {
		chunk := iovecs
		if len(chunk) > iovMax {
			chunk = chunk[:iovMax]
		}

		want := sumLen(chunk)
		n, err := writevOnce(fd, chunk)
		total += n
		if err != nil {
			return total, err
		}
		if n < want {
			return total, nil
		}
		iovecs = iovecs[len(chunk):]
	}
	return total, nil
}

func writevOnce(fd int, iovecs [][]byte) (int, error) {
	n, err := unix.Writev(fd, iovecs)
	if n < 0 {
		// A failed writev reports -1; count it as zero bytes written.
		n = 0
	}
	return n, err
}

func sumLen(iovecs [][]byte) int {
	n := 0
	for _, v := range iovecs {
		n += len(v)
	}
	return n
}

// Sendfile transfers up to count bytes from srcFd to dstFd starting at
// *offset, advancing *offset by the number of bytes actually copied. It
// returns the byte count and any error, including EINVAL when the kernel
// or fd pair doesn't support the zero-copy path.
func Sendfile(dstFd, srcFd int, offset *int64, count int) (int, error) {
	return unix.Sendfile(dstFd, srcFd, offset, count)
}

// FdProbe describes what New learns about a fd by inspecting it once at
// stream-construction time: whether it is seekable, its current position,
// whether fstat says it's a regular file, the filesystem's preferred I/O
// block size, and (for non-seekable fds) whether it's a socket at all.
type FdProbe struct {
	Seekable      bool
	InitialOffset int64
	IsRegularFile bool
	BlockSize     int64
	IsSocket      bool
}

// Probe inspects fd with lseek, fstat, and getsockname so New can seed
// offset, bump optimal_block_size, and decide whether sendfile and socket
// cork are applicable without the caller having to say so.
func Probe(fd int) FdProbe {
	var p FdProbe

	if off, err := unix.Seek(fd, 0, unix.SEEK_CUR); err == nil {
		p.Seekable = true
		p.InitialOffset = off
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err == nil {
		p.IsRegularFile = st.Mode&unix.S_IFMT == unix.S_IFREG
		if st.Blksize > 0 {
			p.BlockSize = int64(st.Blksize)
		}
	}

	if !p.Seekable {
		if _, err := unix.Getsockname(fd); err == nil {
			p.IsSocket = true
		}
	}

	return p
}
