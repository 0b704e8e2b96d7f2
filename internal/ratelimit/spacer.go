// Package ratelimit spaces outbound RPC calls so the node providers
// never see bursts.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// CallSpacer enforces a minimum interval between consecutive calls.
type CallSpacer struct {
	limiter *rate.Limiter
}

// NewCallSpacer returns a spacer allowing one call per interval with a
// burst of one.
func NewCallSpacer(interval time.Duration) *CallSpacer {
	return &CallSpacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call slot is available or ctx is done.
func (s *CallSpacer) Wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}
