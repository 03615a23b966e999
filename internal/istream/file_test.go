package istream

import (
	"os"
	"testing"
)

func writeTempFile(t *testing.T, content string) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "istream-test")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestFileStreamReadData(t *testing.T) {
	f := writeTempFile(t, "hello world")
	s, err := NewFile(f)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	data, err := s.ReadData(5)
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if string(data[:5]) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", string(data[:5]))
	}
}

func TestFileStreamSkipAndVirtualOffset(t *testing.T) {
	f := writeTempFile(t, "0123456789")
	s, err := NewFile(f)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	s.Skip(3)
	if s.VirtualOffset() != 3 {
		t.Fatalf("expected VirtualOffset=3, got %d", s.VirtualOffset())
	}

	data, err := s.ReadData(4)
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if string(data[:4]) != "3456" {
		t.Fatalf("expected %q, got %q", "3456", string(data[:4]))
	}
}

func TestFileStreamStatAndFd(t *testing.T) {
	f := writeTempFile(t, "abcde")
	s, err := NewFile(f)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	size, ok := s.Stat(true)
	if !ok || size != 5 {
		t.Fatalf("expected size=5, got size=%d ok=%v", size, ok)
	}
	if s.Fd() != int(f.Fd()) {
		t.Fatalf("expected Fd to match underlying file")
	}
	if s.IsMemoryMapped() {
		t.Fatal("expected IsMemoryMapped=false for a plain file")
	}
}

func TestFileStreamSeek(t *testing.T) {
	f := writeTempFile(t, "0123456789")
	s, err := NewFile(f)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	if err := s.Seek(5); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	data, err := s.ReadData(3)
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if string(data[:3]) != "567" {
		t.Fatalf("expected %q, got %q", "567", string(data[:3]))
	}
}
