package gostream

import "syscall"

func seekFd(fd int, offset int64) (int64, error) {
	return syscall.Seek(fd, offset, 0 /* SEEK_SET */)
}

func closeFd(fd int) error {
	return syscall.Close(fd)
}
