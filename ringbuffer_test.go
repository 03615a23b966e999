package gostream

import (
	"testing"

	"github.com/behrlich/gostream/internal/pool"
)

func newTestStream(bufSize, maxSize int) *OutputStream {
	p := pool.New()
	return &OutputStream{
		buf:              make([]byte, bufSize),
		maxBufferSize:    maxSize,
		optimalBlockSize: bufSize,
		pool:             p,
		observer:         NoOpObserver{},
	}
}

func TestRingBufferAppendAndUsed(t *testing.T) {
	s := newTestStream(16, 64)

	if !s.isEmpty() {
		t.Fatal("expected empty buffer initially")
	}

	n := s.append([]byte("hello"))
	if n != 5 {
		t.Fatalf("expected 5 bytes appended, got %d", n)
	}
	if s.used() != 5 {
		t.Fatalf("expected used=5, got %d", s.used())
	}
	if s.unusedSpace() != 11 {
		t.Fatalf("expected unusedSpace=11, got %d", s.unusedSpace())
	}
}

func TestRingBufferWrapAround(t *testing.T) {
	s := newTestStream(8, 64)

	s.append([]byte("123456"))
	s.advanceHead(4) // head=4, tail=6, used=2

	n := s.append([]byte("ABCDEF")) // wraps: tail goes 6->8->4
	if n != 6 {
		t.Fatalf("expected 6 bytes appended, got %d", n)
	}
	if s.used() != 8 {
		t.Fatalf("expected full buffer used=8, got %d", s.used())
	}

	iov := s.fillIovec()
	var got []byte
	for _, v := range iov {
		got = append(got, v...)
	}
	if string(got) != "56ABCDEF" {
		t.Fatalf("expected wrapped contents %q, got %q", "56ABCDEF", string(got))
	}
}

func TestRingBufferFillIovecEmpty(t *testing.T) {
	s := newTestStream(8, 64)
	if iov := s.fillIovec(); iov != nil {
		t.Fatalf("expected nil iovec for empty buffer, got %v", iov)
	}
}

func TestRingBufferAdvanceHeadNormalizesWhenDrained(t *testing.T) {
	s := newTestStream(8, 64)
	s.append([]byte("abcd"))
	s.advanceHead(4)
	if s.head != 0 || s.tail != 0 {
		t.Fatalf("expected head/tail reset to 0 after full drain, got head=%d tail=%d", s.head, s.tail)
	}
	if !s.isEmpty() {
		t.Fatal("expected isEmpty after full drain")
	}
}

func TestRingBufferGrowRelocatesWrappedRegion(t *testing.T) {
	s := newTestStream(8, 64)

	s.append([]byte("12345678")) // fills the buffer exactly, head=tail=0, full
	s.advanceHead(4)              // consume "1234": head=4, tail=0, holds "5678"
	s.append([]byte("ABCD"))      // wraps into [0,4): holds "5678"+"ABCD", full again
	if !s.full {
		t.Fatal("expected buffer marked full")
	}

	s.grow(s.used() + 4)

	if s.used() != 8 {
		t.Fatalf("expected used preserved across grow, got %d", s.used())
	}
	iov := s.fillIovec()
	var got []byte
	for _, v := range iov {
		got = append(got, v...)
	}
	if string(got) != "5678ABCD" {
		t.Fatalf("expected contiguous contents %q after grow, got %q", "5678ABCD", string(got))
	}
	if len(s.buf) <= 8 {
		t.Fatalf("expected buffer to have grown past 8, got %d", len(s.buf))
	}
}

func TestRingBufferGrowClampsToMax(t *testing.T) {
	s := newTestStream(8, 16)
	s.append(make([]byte, 8))

	s.grow(1000)

	if len(s.buf) > 16 {
		t.Fatalf("expected buffer clamped to maxBufferSize=16, got %d", len(s.buf))
	}
}

func TestRingBufferAppendPartialOnOverflow(t *testing.T) {
	s := newTestStream(8, 8) // maxBufferSize == initial size: no room to grow

	n := s.append(make([]byte, 20))
	if n != 8 {
		t.Fatalf("expected append capped at buffer capacity 8, got %d", n)
	}
}
