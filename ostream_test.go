package gostream

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/behrlich/gostream/internal/istream"
)

// assertInvariants checks the ring-buffer and lifecycle invariants that
// must hold after any OutputStream operation.
func assertInvariants(t *testing.T, s *OutputStream) {
	t.Helper()
	require.GreaterOrEqual(t, s.used(), 0)
	require.LessOrEqual(t, s.used(), len(s.buf))
	require.GreaterOrEqual(t, s.head, 0)
	require.LessOrEqual(t, s.head, len(s.buf))
	require.GreaterOrEqual(t, s.tail, 0)
	require.LessOrEqual(t, s.tail, len(s.buf))
	require.GreaterOrEqual(t, s.offset, int64(0))
	if s.closed {
		require.False(t, s.ioRegistered)
	}
}

// pipeSourceStream adapts a pipe's read end to istream.Stream, reporting an
// unknown size the way a non-seekable fd does.
type pipeSourceStream struct {
	f       *os.File
	fd      int
	virtual int64
}

func newPipeSourceStream(f *os.File) *pipeSourceStream {
	return &pipeSourceStream{f: f, fd: int(f.Fd())}
}

func (s *pipeSourceStream) Stat(exactSize bool) (int64, bool) { return 0, false }
func (s *pipeSourceStream) Fd() int                            { return s.fd }
func (s *pipeSourceStream) VirtualOffset() int64               { return s.virtual }
func (s *pipeSourceStream) AbsoluteStartOffset() int64          { return 0 }
func (s *pipeSourceStream) Seek(offset int64) error {
	return NewError("Seek", ErrCodeInvalidArgument, "seek unsupported on a pipe")
}
func (s *pipeSourceStream) ReadData(minSize int) ([]byte, error) {
	buf := make([]byte, 4096)
	n, err := s.f.Read(buf)
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return buf[:n], nil
}
func (s *pipeSourceStream) Skip(n int64)        { s.virtual += n }
func (s *pipeSourceStream) IsMemoryMapped() bool { return false }

var _ istream.Stream = (*pipeSourceStream)(nil)

func TestCorkCoalescing(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	loop := NewMockLoop()
	s, err := New(int(w.Fd()), OutputStreamOptions{Loop: loop})
	require.NoError(t, err)

	s.Cork(true)
	_, err = s.Send([]byte("abc"))
	require.NoError(t, err)
	_, err = s.Send([]byte("def"))
	require.NoError(t, err)
	assertInvariants(t, s)

	require.Equal(t, 6, s.BufferedLen(), "corked small writes stay buffered")

	require.NoError(t, r.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
	buf := make([]byte, 16)
	_, err = r.Read(buf)
	require.Error(t, err, "nothing should be readable while corked")

	s.Cork(false)
	assertInvariants(t, s)
	require.Equal(t, 0, s.BufferedLen(), "uncork flushes the coalesced buffer")

	require.NoError(t, r.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(buf[:n]))
}

func TestWouldBlockPath(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	wfd := int(w.Fd())
	if _, ferr := unix.FcntlInt(uintptr(wfd), unix.F_SETPIPE_SZ, 4096); ferr != nil {
		t.Skipf("cannot shrink pipe buffer on this kernel: %v", ferr)
	}

	loop := NewMockLoop()
	s, err := New(wfd, OutputStreamOptions{Loop: loop})
	require.NoError(t, err)

	big := make([]byte, 256*1024)
	_, err = s.Send(big)
	require.NoError(t, err)
	require.Greater(t, s.BufferedLen(), 0, "pipe capacity is exhausted, remainder must buffer")
	assertInvariants(t, s)

	n, err := s.Flush()
	require.NoError(t, err, "would-block is not a fatal flush error")
	require.Equal(t, 0, n, "flush reports bytes still pending under backpressure")
	assertInvariants(t, s)
}

func TestSendfileFallback(t *testing.T) {
	srcR, srcW, err := os.Pipe()
	require.NoError(t, err)
	defer srcR.Close()
	defer srcW.Close()
	dstR, dstW, err := os.Pipe()
	require.NoError(t, err)
	defer dstR.Close()
	defer dstW.Close()

	_, err = srcW.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, srcW.Close())

	loop := NewMockLoop()
	dest, err := New(int(dstW.Fd()), OutputStreamOptions{Loop: loop})
	require.NoError(t, err)

	src := newPipeSourceStream(srcR)

	n, err := dest.SendFrom(src)
	require.NoError(t, err)
	require.Equal(t, int64(len("hello world")), n)
	require.True(t, dest.noSendfile, "a pipe destination has sendfile disabled at construction, so the copy takes the fallback")
	assertInvariants(t, dest)

	require.NoError(t, dstR.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 32)
	got, err := dstR.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(buf[:got]))
}

func TestBackwardOverlap(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "overlap"))
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("0123456789")
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)

	fd := int(f.Fd())
	src, err := istream.NewFile(f)
	require.NoError(t, err)

	loop := NewMockLoop()
	dest, err := New(fd, OutputStreamOptions{IsRegularFile: true, Loop: loop})
	require.NoError(t, err)
	dest.offset = 5 // simulate 5 bytes already written earlier in this same file

	n, err := dest.SendFrom(src)
	require.NoError(t, err)
	require.Equal(t, int64(10), n)
	require.Equal(t, int64(15), dest.Offset())
	assertInvariants(t, dest)

	content, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	require.Equal(t, "012340123456789", string(content))
}

func TestSelfCopyNoop(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "selfcopy"))
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("abcdefghij")
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)

	fd := int(f.Fd())
	src, err := istream.NewFile(f)
	require.NoError(t, err)

	loop := NewMockLoop()
	dest, err := New(fd, OutputStreamOptions{IsRegularFile: true, Loop: loop})
	require.NoError(t, err)

	n, err := dest.SendFrom(src)
	require.NoError(t, err)
	require.Equal(t, int64(10), n, "self-copy reports the remaining length with no I/O")
	require.Equal(t, int64(0), dest.Offset(), "self-copy never advances the destination offset")
	assertInvariants(t, dest)

	content, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	require.Equal(t, "abcdefghij", string(content))
}

func TestPartialVectorWrite(t *testing.T) {
	s := newTestStream(8, 8)
	s.optimalBlockSize = 100
	s.corked = true
	s.fd = -1

	n, err := s.SendV([][]byte{[]byte("12345"), []byte("678901234")})
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.True(t, s.Overflow())
	require.Equal(t, 8, s.BufferedLen())
	assertInvariants(t, s)
}
