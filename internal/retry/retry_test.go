package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphgate/internal/graph"
)

var errFlaky = errors.New("deadlock detected")

func TestDo(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []Outcome
		calls    int
		wantErr  func(error) bool
	}{
		{
			name:     "first try succeeds",
			outcomes: []Outcome{OutcomeOK},
			calls:    1,
		},
		{
			name:     "succeeds after transient failures",
			outcomes: []Outcome{OutcomeTransient, OutcomeTransient, OutcomeOK},
			calls:    3,
		},
		{
			name:     "permanent stops immediately",
			outcomes: []Outcome{OutcomePermanent, OutcomeOK},
			calls:    1,
			wantErr:  func(err error) bool { return errors.Is(err, errFlaky) && !graph.IsRetryExhausted(err) },
		},
		{
			name:     "exhausted",
			outcomes: []Outcome{OutcomeTransient, OutcomeTransient, OutcomeTransient, OutcomeOK},
			calls:    3,
			wantErr:  func(err error) bool { return graph.IsRetryExhausted(err) && errors.Is(err, errFlaky) },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			v, err := Do(context.Background(), Policy{Attempts: 3, Delay: time.Millisecond},
				func(context.Context) Result[string] {
					o := tc.outcomes[calls]
					calls++
					switch o {
					case OutcomeOK:
						return Ok("done")
					case OutcomeTransient:
						return Transient[string](errFlaky)
					default:
						return Permanent[string](errFlaky)
					}
				})

			assert.Equal(t, tc.calls, calls)
			if tc.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "done", v)
				return
			}
			require.Error(t, err)
			assert.True(t, tc.wantErr(err), "unexpected error: %v", err)
			assert.Empty(t, v)
		})
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := DoErr(context.Background(), Policy{}, func(context.Context) Result[struct{}] {
		calls++
		return Transient[struct{}](errFlaky)
	})

	assert.Equal(t, 1, calls)
	assert.True(t, graph.IsRetryExhausted(err))
}

func TestDo_CanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Do(ctx, Policy{Attempts: 5, Delay: time.Hour}, func(context.Context) Result[int] {
		calls++
		cancel()
		return Transient[int](errFlaky)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 100*time.Millisecond, p.Delay)
}
