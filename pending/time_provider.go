package pending

import "time"

// TimeProvider abstracts the clock the registry sweeps with, so tests can
// drive expiry without sleeping.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
	// NewTicker returns a ticker firing every d.
	NewTicker(d time.Duration) *time.Ticker
}

// RealTimeProvider is the wall-clock TimeProvider used outside tests.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// NewTicker returns a standard library ticker.
func (RealTimeProvider) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}
