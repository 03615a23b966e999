//go:build !linux

package ioutil

import "errors"

// ErrUnsupportedPlatform is returned by every primitive in this package on
// platforms without a native implementation.
var ErrUnsupportedPlatform = errors.New("ioutil: unsupported on this platform")

func SetNonblock(fd int, nonblocking bool) error {
	return ErrUnsupportedPlatform
}

func SetCork(fd int, on bool) error {
	return ErrUnsupportedPlatform
}

func Writev(fd int, iovecs [][]byte, iovMax int) (int, error) {
	return 0, ErrUnsupportedPlatform
}

func Sendfile(dstFd, srcFd int, offset *int64, count int) (int, error) {
	return 0, ErrUnsupportedPlatform
}

// FdProbe mirrors the linux build's fd-inspection result. On unsupported
// platforms every probe comes back as "don't know", which New treats the
// same as a pipe: sendfile and socket cork both disabled, no offset seeded.
type FdProbe struct {
	Seekable      bool
	InitialOffset int64
	IsRegularFile bool
	BlockSize     int64
	IsSocket      bool
}

func Probe(fd int) FdProbe {
	return FdProbe{}
}
