// Package ratelimit implements the sliding-window attempt limiter that
// gates signup, login and password reset. Attempts are counted per key
// (an action plus the client address); once a key has used its quota
// inside the window further attempts are refused until the oldest one
// ages out.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter records an attempt for key and reports whether it is allowed.
// Implementations must make the check-and-record step atomic per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Policy is the quota applied to every key.
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicy allows 5 attempts per 15 minutes.
var DefaultPolicy = Policy{Limit: 5, Window: 15 * time.Minute}

func (p Policy) normalized() Policy {
	if p.Limit <= 0 {
		p.Limit = DefaultPolicy.Limit
	}
	if p.Window <= 0 {
		p.Window = DefaultPolicy.Window
	}
	return p
}

// Noop allows everything. It is used when rate limiting is disabled.
type Noop struct{}

func (Noop) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
