// Package clock abstracts the time source so the engine can be driven
// by a deterministic clock in tests.
package clock

import "time"

// Clock is the time source injected into the engine, telemetry queue and
// caches. Production code uses Real(); tests use Fake().
type Clock interface {
	// Now returns the current time. Readings must carry a monotonic
	// component where the platform provides one.
	Now() time.Time

	// NewTicker returns a Ticker delivering ticks on C every d. Panics
	// if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. C has capacity 1; ticks are dropped
// when the consumer falls behind.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}
