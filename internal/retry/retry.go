// Package retry provides a bounded retry combinator driven by an explicit
// result type instead of error subtypes.
//
// The unit of work reports one of three outcomes:
//
//	retry.Ok(v)           // done
//	retry.Transient(err)  // wait Policy.Delay and try again
//	retry.Permanent(err)  // give up immediately
//
// Whether an operation is wrapped in Do is the caller's decision.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/graphgate/internal/graph"
)

// Outcome classifies one attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTransient
	OutcomePermanent
)

// Result is the outcome of one attempt together with its value or error.
type Result[T any] struct {
	Value   T
	Err     error
	Outcome Outcome
}

// Ok reports success.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Outcome: OutcomeOK}
}

// Transient reports a failure that may succeed on retry.
func Transient[T any](err error) Result[T] {
	return Result[T]{Err: err, Outcome: OutcomeTransient}
}

// Permanent reports a failure that must not be retried.
func Permanent[T any](err error) Result[T] {
	return Result[T]{Err: err, Outcome: OutcomePermanent}
}

// Policy bounds the retry loop.
type Policy struct {
	// Attempts is the total number of tries including the first. Values
	// below 1 are treated as 1.
	Attempts int
	// Delay is the fixed wait between tries.
	Delay time.Duration
}

// DefaultPolicy is three attempts with a 100ms fixed delay.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Delay: 100 * time.Millisecond}
}

// Do runs fn until it succeeds, fails permanently or exhausts the policy.
//
// Permanent errors are returned unmodified. Exhaustion returns a
// RETRY_EXHAUSTED graph.Error wrapping the last transient error. Context
// cancellation during the wait returns the context error.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) Result[T]) (T, error) {
	var zero T
	attempts := max(p.Attempts, 1)

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		res := fn(ctx)
		switch res.Outcome {
		case OutcomeOK:
			return res.Value, nil
		case OutcomePermanent:
			return zero, res.Err
		}

		last = res.Err
		if attempt == attempts {
			break
		}
		slog.Debug("transient failure, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", p.Delay,
			"error", res.Err)

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, graph.WrapError(graph.ErrCodeRetryExhausted,
		fmt.Sprintf("gave up after %d attempts", attempts), last)
}

// DoErr is Do for units of work without a value.
func DoErr(ctx context.Context, p Policy, fn func(ctx context.Context) Result[struct{}]) error {
	_, err := Do(ctx, p, fn)
	return err
}
