//go:build !linux

package ioloop

import (
	"context"
	"errors"
	"time"

	"github.com/behrlich/gostream/internal/logging"
)

// ErrUnsupportedPlatform is returned by New on any platform without a
// native epoll-backed Loop implementation.
var ErrUnsupportedPlatform = errors.New("ioloop: unsupported on this platform")

type stubLoop struct{}

func New(log *logging.Logger) (*stubLoop, error) {
	return nil, ErrUnsupportedPlatform
}

func (*stubLoop) RegisterIO(fd int, cond Condition, cb IOCallback) (IOHandle, error) {
	return nil, ErrUnsupportedPlatform
}
func (*stubLoop) UnregisterIO(IOHandle) {}
func (*stubLoop) RegisterTimer(d time.Duration, cb TimerCallback) TimerHandle {
	return nil
}
func (*stubLoop) UnregisterTimer(TimerHandle) {}
func (*stubLoop) RegisterNotify(path string, cb NotifyCallback) (NotifyHandle, error) {
	return nil, nil
}
func (*stubLoop) UnregisterNotify(NotifyHandle) {}
func (*stubLoop) Now() time.Time                { return time.Now() }
func (*stubLoop) Run(ctx context.Context) error  { <-ctx.Done(); return ctx.Err() }
func (*stubLoop) Stop()                         {}

var _ Loop = (*stubLoop)(nil)
