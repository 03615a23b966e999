// Command gostream-echo is an illustrative corked echo server: every
// accepted connection is wrapped in an OutputStream that corks writes for
// a short coalescing window before flushing, demonstrating Cork/Send/Close
// against a real event loop. It is a consumer of the package, not part of
// its tested contract.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/behrlich/gostream"
	"github.com/behrlich/gostream/internal/ioloop"
	"github.com/behrlich/gostream/internal/logging"
)

func main() {
	var (
		addr    = flag.String("addr", ":9999", "address to listen on")
		verbose = flag.Bool("v", false, "verbose output")
		corkMs  = flag.Int("cork-ms", 5, "milliseconds to coalesce writes before flushing")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	loop, err := ioloop.New(logger)
	if err != nil {
		logger.Errorf("failed to create event loop: %v", err)
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Errorf("failed to listen on %s: %v", *addr, err)
		os.Exit(1)
	}
	logger.Infof("listening on %s", ln.Addr().String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		acceptLoop(ctx, ln, loop, logger, time.Duration(*corkMs)*time.Millisecond)
	}()

	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("event loop exited: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	loop.Stop()
	ln.Close()
	wg.Wait()
}

func acceptLoop(ctx context.Context, ln net.Listener, loop ioloop.Loop, logger *logging.Logger, corkWindow time.Duration) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("accept failed: %v", err)
			continue
		}
		go handleConn(conn, loop, logger, corkWindow)
	}
}

func handleConn(conn net.Conn, loop ioloop.Loop, logger *logging.Logger, corkWindow time.Duration) {
	defer conn.Close()

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		logger.Warnf("SyscallConn failed: %v", err)
		return
	}

	var fd int
	if ctlErr := rawConn.Control(func(f uintptr) { fd = int(f) }); ctlErr != nil {
		logger.Warnf("SyscallConn.Control failed: %v", ctlErr)
		return
	}

	// Dup the fd so OutputStream owns a handle it can flip O_NONBLOCK and
	// close independently of net's own poller-registered fd.
	dupFd, err := syscall.Dup(fd)
	if err != nil {
		logger.Warnf("dup failed: %v", err)
		return
	}

	stream, err := gostream.New(dupFd, gostream.OutputStreamOptions{
		Loop:      loop,
		AutoClose: true,
	})
	if err != nil {
		logger.Warnf("failed to wrap connection: %v", err)
		syscall.Close(dupFd)
		return
	}
	defer stream.Close()

	var (
		mu      sync.Mutex
		stopped bool
	)
	var armCork func()
	armCork = func() {
		loop.RegisterTimer(corkWindow, func() {
			mu.Lock()
			done := stopped
			mu.Unlock()
			if done {
				return
			}
			stream.Cork(false)
			stream.Cork(true)
			armCork()
		})
	}
	stream.Cork(true)
	armCork()
	defer func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
	}()

	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if _, sendErr := stream.Send(buf[:n]); sendErr != nil {
				logger.Warnf("send failed: %v", sendErr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}
