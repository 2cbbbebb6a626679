package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/retry"
)

// stubTransport returns canned rows and records commits.
type stubTransport struct {
	nodes     []RawNode
	execErr   error
	committed bool
}

func (s *stubTransport) FetchNodes(context.Context, string, map[string]any) (Cursor[RawNode], error) {
	return NewSliceCursor(s.nodes), nil
}

func (s *stubTransport) FetchRelationships(context.Context, string, map[string]any) (Cursor[RawRelationship], error) {
	return NewSliceCursor[RawRelationship](nil), nil
}

func (s *stubTransport) FetchScalar(context.Context, string, map[string]any) (Cursor[RawRow], error) {
	return NewSliceCursor([]RawRow{{"count": int64(1)}}), nil
}

func (s *stubTransport) Exec(context.Context, string, map[string]any) (Summary, error) {
	if s.execErr != nil {
		return Summary{}, s.execErr
	}
	return Summary{PropertiesSet: 2}, nil
}

func (s *stubTransport) Commit(context.Context) error {
	s.committed = true
	return nil
}

func (s *stubTransport) Rollback(context.Context) error { return nil }

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec, tp
}

func TestSliceCursor(t *testing.T) {
	ctx := context.Background()
	cur := NewSliceCursor([]int{1, 2})

	var got []int
	for cur.Next(ctx) {
		got = append(got, cur.Record())
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, []int{1, 2}, got)
	assert.False(t, cur.Next(ctx))

	require.NoError(t, cur.Close(ctx))
	assert.True(t, cur.Closed())
}

func TestSliceCursor_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cur := NewSliceCursor([]int{1})
	assert.False(t, cur.Next(ctx))
	assert.ErrorIs(t, cur.Err(), context.Canceled)
}

func TestTraced_RecordsSpans(t *testing.T) {
	ctx := context.Background()
	rec, tp := newRecorder(t)

	inner := &stubTransport{nodes: []RawNode{{ID: 1}}}
	tr := NewTraced(inner, tp.Tracer("test"))

	cur, err := tr.FetchNodes(ctx, "MATCH (n) RETURN n", map[string]any{"p0": "secret"})
	require.NoError(t, err)
	require.True(t, cur.Next(ctx))
	assert.Equal(t, int64(1), cur.Record().ID)
	require.NoError(t, cur.Close(ctx))

	_, err = tr.Exec(ctx, "MATCH (n) SET n += $props", nil)
	require.NoError(t, err)
	require.NoError(t, tr.Commit(ctx))
	assert.True(t, inner.committed)

	spans := rec.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, SpanFetchNodes, spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String(AttrStatement, "MATCH (n) RETURN n"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int(AttrParamCount, 1))
	assert.Contains(t, spans[0].Attributes(), attribute.Int(AttrRowCount, 1))
	for _, kv := range spans[0].Attributes() {
		assert.NotEqual(t, "secret", kv.Value.Emit(), "parameter values are never recorded")
	}

	assert.Equal(t, SpanExec, spans[1].Name())
	assert.Contains(t, spans[1].Attributes(), attribute.Int("graphgate.properties_set", 2))
	assert.Equal(t, SpanCommit, spans[2].Name())
}

func TestTraced_FetchSpanCoversCursor(t *testing.T) {
	tests := []struct {
		name     string
		rows     []RawNode
		read     int
		cancel   bool
		wantRows int
		wantCode codes.Code
	}{
		{name: "drained", rows: []RawNode{{ID: 1}, {ID: 2}, {ID: 3}}, read: 3, wantRows: 3, wantCode: codes.Ok},
		{name: "closed early", rows: []RawNode{{ID: 1}, {ID: 2}, {ID: 3}}, read: 1, wantRows: 1, wantCode: codes.Ok},
		{name: "empty", read: 0, wantRows: 0, wantCode: codes.Ok},
		{name: "cursor error", rows: []RawNode{{ID: 1}}, read: 1, cancel: true, wantRows: 0, wantCode: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			rec, tp := newRecorder(t)
			tr := NewTraced(&stubTransport{nodes: tt.rows}, tp.Tracer("test"))

			cur, err := tr.FetchNodes(ctx, "MATCH (n) RETURN n", nil)
			require.NoError(t, err)
			if tt.cancel {
				cancel()
			}
			for range tt.read {
				cur.Next(ctx)
			}
			assert.Empty(t, rec.Ended(), "span stays open while the cursor is read")

			require.NoError(t, cur.Close(ctx))
			require.NoError(t, cur.Close(ctx))

			spans := rec.Ended()
			require.Len(t, spans, 1, "closing twice ends the span once")
			assert.Equal(t, SpanFetchNodes, spans[0].Name())
			assert.Contains(t, spans[0].Attributes(), attribute.Int(AttrRowCount, tt.wantRows))
			assert.Equal(t, tt.wantCode, spans[0].Status().Code)
		})
	}
}

func TestTraced_FetchErrorEndsSpan(t *testing.T) {
	rec, tp := newRecorder(t)
	tr := NewTraced(failingFetch{stubTransport: &stubTransport{}, err: graph.NewError(graph.ErrCodeTransportFailed, "syntax error")}, tp.Tracer("test"))

	cur, err := tr.FetchRelationships(context.Background(), "MATCH", nil)
	require.Error(t, err)
	assert.Nil(t, cur)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, SpanFetchRelationships, spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(AttrErrorCode, "TRANSPORT_FAILED"))
}

// failingFetch fails every fetch.
type failingFetch struct {
	*stubTransport
	err error
}

func (f failingFetch) FetchRelationships(context.Context, string, map[string]any) (Cursor[RawRelationship], error) {
	return nil, f.err
}

func TestTraced_RecordsErrors(t *testing.T) {
	ctx := context.Background()
	rec, tp := newRecorder(t)

	inner := &stubTransport{execErr: graph.NewError(graph.ErrCodeNotFound, "gone")}
	tr := NewTraced(inner, tp.Tracer("test"))

	_, err := tr.Exec(ctx, "MATCH (n) DELETE n", nil)
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(AttrErrorCode, "NOT_FOUND"))
}

func TestTracedOpener(t *testing.T) {
	_, tp := newRecorder(t)
	inner := &stubTransport{}
	opener := NewTracedOpener(openerFunc(func(context.Context) (Transport, error) { return inner, nil }), tp.Tracer("test"))

	tr, err := opener.Begin(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &Traced{}, tr)
}

type openerFunc func(context.Context) (Transport, error)

func (f openerFunc) Begin(ctx context.Context) (Transport, error) { return f(ctx) }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"retryable graph error", &graph.Error{Code: graph.ErrCodeTransportFailed, Retryable: true}, true},
		{"non-retryable graph error", graph.NewError(graph.ErrCodeTransportFailed, "syntax"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, retry.OutcomeOK, Classify(1, nil).Outcome)
	assert.Equal(t, retry.OutcomeTransient,
		Classify(0, &graph.Error{Code: graph.ErrCodeTransportFailed, Retryable: true}).Outcome)
	assert.Equal(t, retry.OutcomePermanent, Classify(0, errors.New("boom")).Outcome)
}
