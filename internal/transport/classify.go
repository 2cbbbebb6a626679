package transport

import (
	"context"
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/retry"
)

// IsTransient reports whether err is worth retrying: driver errors the
// Neo4j driver classifies as retryable (deadlocks, leader switches,
// connectivity loss) and graph errors explicitly marked retryable.
// Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if neo4j.IsRetryable(err) {
		return true
	}
	return graph.IsRetryable(err)
}

// Classify turns the outcome of a transport call into a retry.Result.
func Classify[T any](v T, err error) retry.Result[T] {
	switch {
	case err == nil:
		return retry.Ok(v)
	case IsTransient(err):
		return retry.Transient[T](err)
	default:
		return retry.Permanent[T](err)
	}
}
