// Package backoff implements the reconnect delay law shared by the push
// client and the viewer subscriber: exponential growth from a base delay,
// capped at a maximum, with a hard attempt ceiling.
package backoff

import "time"

const (
	DefaultBase        = time.Second
	DefaultMax         = 30 * time.Second
	DefaultMaxAttempts = 10
)

type Policy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

func Default() Policy {
	return Policy{
		Base:        DefaultBase,
		Max:         DefaultMax,
		MaxAttempts: DefaultMaxAttempts,
	}
}

func (p Policy) withDefaults() Policy {
	if p.Base <= 0 {
		p.Base = DefaultBase
	}
	if p.Max <= 0 {
		p.Max = DefaultMax
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Delay returns the wait before retry number attempt (1-based count of
// consecutive failures). Delays are non-decreasing and never exceed Max.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Exhausted reports whether the attempt ceiling has been reached. Past this
// point the owner surfaces a terminal disconnected status and stops retrying
// until an external reconnect trigger.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.withDefaults().MaxAttempts
}
