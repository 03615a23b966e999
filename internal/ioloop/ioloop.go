// Package ioloop defines the reactor contract an output stream depends on
// to learn when its fd becomes writable again, when a timer fires, and
// when a watched path changes on disk. Implementations run single
// threaded: callbacks never reenter the loop and must not block.
package ioloop

import (
	"context"
	"time"
)

// Condition is a bitmask of readiness events a caller can register for.
type Condition int

const (
	Readable Condition = 1 << iota
	Writable
	ErrorCond
)

// IOCallback is invoked when a registered fd satisfies its condition.
type IOCallback func()

// TimerCallback is invoked once when a registered timer's deadline elapses.
type TimerCallback func()

// NotifyCallback is invoked with the changed path when a watched
// filesystem location is modified.
type NotifyCallback func(path string)

// IOHandle, TimerHandle, and NotifyHandle are opaque tokens returned by
// their respective Register calls, passed back to Unregister to cancel.
type IOHandle interface{ unregister() }
type TimerHandle interface{ unregister() }
type NotifyHandle interface{ unregister() }

// Loop is the event-loop contract. A single goroutine calls Run; every
// callback it invokes runs on that same goroutine, so implementations
// never need internal locking around their dispatch tables.
type Loop interface {
	// RegisterIO arms cb to fire the next time fd satisfies cond. The
	// condition is level-triggered: if fd stays ready, cb fires again on
	// every pass through Run until unregistered.
	RegisterIO(fd int, cond Condition, cb IOCallback) (IOHandle, error)

	// UnregisterIO cancels a prior RegisterIO. Safe to call from within a
	// callback running on the loop's own goroutine.
	UnregisterIO(h IOHandle)

	// RegisterTimer arms cb to fire once after d elapses.
	RegisterTimer(d time.Duration, cb TimerCallback) TimerHandle

	// UnregisterTimer cancels a pending timer before it fires.
	UnregisterTimer(h TimerHandle)

	// RegisterNotify watches path for changes, invoking cb on each event.
	// Returns (nil, nil) when the underlying watch mechanism is
	// unavailable (resource exhaustion, unsupported platform); this is
	// non-fatal and callers are expected to fall back to periodic polling.
	RegisterNotify(path string, cb NotifyCallback) (NotifyHandle, error)

	// UnregisterNotify cancels a prior RegisterNotify.
	UnregisterNotify(h NotifyHandle)

	// Now returns the loop's notion of the current time, held fixed for
	// the duration of one dispatch pass so every callback in that pass
	// observes the same timestamp.
	Now() time.Time

	// Run dispatches events until ctx is cancelled or Stop is called.
	Run(ctx context.Context) error

	// Stop requests Run return at the next opportunity.
	Stop()
}
