package roomcore

import (
	"time"

	"github.com/opd-ai/roomcore/pending"
)

// Options contains configuration options for creating a Session.
type Options struct {
	// PendingTimeout bounds the wait for a backend reply to any control
	// operation. Operations with no reply within the bound resolve with
	// a timeout outcome, distinct from failure.
	PendingTimeout time.Duration

	// Clock supplies time to the pending-operation registry. Nil selects
	// the real system clock; tests inject a mock provider.
	Clock pending.TimeProvider
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		PendingTimeout: pending.DefaultTimeout,
	}
}
