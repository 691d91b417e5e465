// Package timeutil abstracts wall-clock access and timer scheduling so that
// time-dependent components can be driven deterministically in tests.
package timeutil

import "time"

// Provider returns the current time.
type Provider interface {
	Now() time.Time
}

type realProvider struct{}

func (realProvider) Now() time.Time { return time.Now().UTC() }

// Default returns a Provider backed by the system clock.
func Default() Provider { return realProvider{} }

// Mock is a Provider that always returns CurrentTime.
type Mock struct {
	CurrentTime time.Time
}

// Now returns the fixed time.
func (m Mock) Now() time.Time { return m.CurrentTime }

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// DefaultScheduler returns a Scheduler backed by time.AfterFunc.
func DefaultScheduler() Scheduler { return realScheduler{} }
