//go:build linux

package ioutil

import (
	"os"
	"testing"
)

func TestWritevToPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	iovecs := [][]byte{[]byte("hello "), []byte("world")}
	n, err := Writev(int(w.Fd()), iovecs, 1024)
	if err != nil {
		t.Fatalf("Writev: %v", err)
	}
	if n != 11 {
		t.Fatalf("expected 11 bytes written, got %d", n)
	}

	buf := make([]byte, 11)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", string(buf))
	}
}

func TestSetNonblockOnPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if err := SetNonblock(int(w.Fd()), true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
}

func TestWritevChunksAtIovMax(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	iovecs := make([][]byte, 3)
	iovecs[0] = []byte("a")
	iovecs[1] = []byte("b")
	iovecs[2] = []byte("c")

	n, err := Writev(int(w.Fd()), iovecs, 1)
	if err != nil {
		t.Fatalf("Writev: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 bytes across chunked writev calls, got %d", n)
	}
}
