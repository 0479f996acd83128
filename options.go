package usm

import "time"

type options struct {
	keys       *KeyCache
	saltSeed   *uint64
	timeWindow time.Duration
	now        func() time.Time
}

// Option configures modules and the coordinator.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		timeWindow: DefaultTimeWindow,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithKeyCache shares a key cache between modules.
func WithKeyCache(c *KeyCache) Option {
	return func(o *options) {
		o.keys = c
	}
}

// WithSaltSeed fixes the first privacy salt instead of drawing it at random.
func WithSaltSeed(seed uint64) Option {
	return func(o *options) {
		o.saltSeed = &seed
	}
}

// WithTimeWindow sets the accepted clock skew for authenticated messages.
func WithTimeWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeWindow = d
		}
	}
}

// WithClock replaces time.Now for time window checks and time cache estimates.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
