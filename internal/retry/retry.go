// Package retry provides bounded retry helpers with fixed or
// exponential spacing between attempts.
package retry

import (
	"context"
	"time"
)

// Result records the outcome of a retried operation.
type Result struct {
	Attempts      int
	Success       bool
	TotalDuration time.Duration
	LastError     error
}

// Do runs fn up to attempts times, waiting interval between failures.
// It stops early on success or when ctx is done.
func Do(ctx context.Context, attempts int, interval time.Duration, fn func() error) *Result {
	res := &Result{}
	start := time.Now()
	defer func() { res.TotalDuration = time.Since(start) }()

	for i := 0; i < attempts; i++ {
		res.Attempts = i + 1

		if err := ctx.Err(); err != nil {
			res.LastError = err
			return res
		}

		if err := fn(); err != nil {
			res.LastError = err
			if i == attempts-1 {
				return res
			}
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				res.LastError = ctx.Err()
				return res
			}
			continue
		}

		res.Success = true
		res.LastError = nil
		return res
	}
	return res
}

// DoWithBackoff is Do with exponential spacing: the wait doubles after
// every failure, capped at max.
func DoWithBackoff(ctx context.Context, attempts int, initial, max time.Duration, fn func() error) *Result {
	res := &Result{}
	start := time.Now()
	defer func() { res.TotalDuration = time.Since(start) }()

	wait := initial
	for i := 0; i < attempts; i++ {
		res.Attempts = i + 1

		if err := ctx.Err(); err != nil {
			res.LastError = err
			return res
		}

		if err := fn(); err != nil {
			res.LastError = err
			if i == attempts-1 {
				return res
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				res.LastError = ctx.Err()
				return res
			}
			wait *= 2
			if wait > max {
				wait = max
			}
			continue
		}

		res.Success = true
		res.LastError = nil
		return res
	}
	return res
}
