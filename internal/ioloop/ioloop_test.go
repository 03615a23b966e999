//go:build linux

package ioloop

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestRegisterIOFiresOnWritable(t *testing.T) {
	loop, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	fired := make(chan struct{}, 1)
	_, err = loop.RegisterIO(int(w.Fd()), Writable, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("RegisterIO: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		select {
		case <-fired:
			loop.Stop()
		case <-ctx.Done():
		}
	}()

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case <-fired:
	default:
		t.Fatal("expected writable callback to have fired")
	}
}

func TestRegisterTimerFires(t *testing.T) {
	loop, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	fired := make(chan struct{}, 1)
	loop.RegisterTimer(10*time.Millisecond, func() {
		fired <- struct{}{}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		<-fired
		loop.Stop()
	}()

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestUnregisterTimerPreventsFire(t *testing.T) {
	loop, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	fired := false
	h := loop.RegisterTimer(5*time.Millisecond, func() { fired = true })
	loop.UnregisterTimer(h)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = loop.Run(ctx)

	if fired {
		t.Fatal("expected canceled timer not to fire")
	}
}

func TestUnregisterIORemovesFromEpoll(t *testing.T) {
	loop, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	h, err := loop.RegisterIO(int(w.Fd()), Writable, func() {})
	if err != nil {
		t.Fatalf("RegisterIO: %v", err)
	}
	loop.UnregisterIO(h)

	if _, exists := loop.entries[int32(w.Fd())]; exists {
		t.Fatal("expected entry to be removed from handle table")
	}
}
