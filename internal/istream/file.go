package istream

import (
	"io"
	"os"
)

// FileStream wraps an *os.File as a Stream, making it a sendfile(2)
// candidate for the output stream's zero-copy path. It buffers reads in
// userspace the way the teacher's memory backend buffers shard reads,
// rather than issuing one syscall per ReadData call.
type FileStream struct {
	f       *os.File
	fd      int
	start   int64
	virtual int64
	buf     []byte
	bufOff  int
	bufLen  int
}

// NewFile wraps f as a Stream, starting from f's current offset.
func NewFile(f *os.File) (*FileStream, error) {
	start, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return &FileStream{
		f:     f,
		fd:    int(f.Fd()),
		start: start,
		buf:   make([]byte, 64*1024),
	}, nil
}

func (s *FileStream) Stat(exactSize bool) (int64, bool) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

func (s *FileStream) Fd() int {
	return s.fd
}

func (s *FileStream) VirtualOffset() int64 {
	return s.virtual
}

func (s *FileStream) AbsoluteStartOffset() int64 {
	return s.start
}

func (s *FileStream) Seek(offset int64) error {
	if _, err := s.f.Seek(s.start+offset, io.SeekStart); err != nil {
		return err
	}
	s.virtual = offset
	s.bufOff, s.bufLen = 0, 0
	return nil
}

func (s *FileStream) ReadData(minSize int) ([]byte, error) {
	if s.bufLen-s.bufOff >= minSize && s.bufLen > s.bufOff {
		return s.buf[s.bufOff:s.bufLen], nil
	}

	if minSize > len(s.buf) {
		s.buf = make([]byte, minSize)
	}

	copy(s.buf, s.buf[s.bufOff:s.bufLen])
	s.bufLen -= s.bufOff
	s.bufOff = 0

	for s.bufLen < minSize {
		n, err := s.f.Read(s.buf[s.bufLen:])
		s.bufLen += n
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if n == 0 {
			break
		}
	}

	return s.buf[s.bufOff:s.bufLen], nil
}

func (s *FileStream) Skip(n int64) {
	var consume int64
	if avail := int64(s.bufLen - s.bufOff); avail > 0 {
		consume = n
		if consume > avail {
			consume = avail
		}
		s.bufOff += int(consume)
	}
	remaining := n - consume
	if remaining > 0 {
		_, _ = s.f.Seek(remaining, io.SeekCurrent)
		s.bufOff, s.bufLen = 0, 0
	}
	s.virtual += n
}

func (s *FileStream) IsMemoryMapped() bool {
	return false
}

// File returns the underlying *os.File.
func (s *FileStream) File() *os.File {
	return s.f
}

// advance marks n bytes of the buffered region as consumed and moves the
// virtual offset forward by n. Nothing in the repository calls it; the
// output stream's copy path advances the source through Skip.
func (s *FileStream) advance(n int) {
	s.bufOff += n
	s.virtual += int64(n)
}

var _ Stream = (*FileStream)(nil)
