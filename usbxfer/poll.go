package usbxfer

import (
	"context"

	"golang.org/x/time/rate"
)

// PollLimiter throttles the finger-detection interrupt poll so a misbehaving driver cannot
// busy-loop the event loop resubmitting an interrupt transfer as fast as completions arrive.
type PollLimiter struct {
	limiter *rate.Limiter
}

// NewPollLimiter builds a PollLimiter allowing up to ratePerSec polls per second, with burst
// allowed in one go.
func NewPollLimiter(ratePerSec float64, burst int) *PollLimiter {
	return &PollLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Wait blocks until the next poll is permitted or ctx is cancelled.
func (p *PollLimiter) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Allow reports whether a poll may proceed right now without blocking, consuming a token if so.
func (p *PollLimiter) Allow() bool {
	return p.limiter.Allow()
}
