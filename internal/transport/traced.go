package transport

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/graphgate/internal/graph"
)

// Span names.
const (
	SpanFetchNodes         = "graphgate.fetch.nodes"
	SpanFetchRelationships = "graphgate.fetch.relationships"
	SpanFetchScalar        = "graphgate.fetch.scalar"
	SpanExec               = "graphgate.exec"
	SpanCommit             = "graphgate.commit"
	SpanRollback           = "graphgate.rollback"
)

// Attribute keys.
const (
	AttrStatement  = "db.statement"
	AttrParamCount = "graphgate.param_count"
	AttrRowCount   = "graphgate.row_count"
	AttrErrorCode  = "error.code"
	AttrErrorType  = "error.type"
)

var (
	_ Transport = (*Neo4jTx)(nil)
	_ Committer = (*Neo4jTx)(nil)
	_ Opener    = (*Neo4jClient)(nil)
	_ Transport = (*Traced)(nil)
	_ Committer = (*Traced)(nil)
)

// Traced decorates a Transport with one span per call. Statement text is
// recorded; parameter values never are.
type Traced struct {
	next   Transport
	tracer trace.Tracer
}

// NewTraced wraps next.
func NewTraced(next Transport, tracer trace.Tracer) *Traced {
	return &Traced{next: next, tracer: tracer}
}

// FetchNodes implements Transport. The span ends when the cursor is closed.
func (t *Traced) FetchNodes(ctx context.Context, statement string, params map[string]any) (Cursor[RawNode], error) {
	ctx, span := t.start(ctx, SpanFetchNodes, statement, params)
	cur, err := t.next.FetchNodes(ctx, statement, params)
	return traceCursor(span, cur, err)
}

// FetchRelationships implements Transport. The span ends when the cursor is closed.
func (t *Traced) FetchRelationships(ctx context.Context, statement string, params map[string]any) (Cursor[RawRelationship], error) {
	ctx, span := t.start(ctx, SpanFetchRelationships, statement, params)
	cur, err := t.next.FetchRelationships(ctx, statement, params)
	return traceCursor(span, cur, err)
}

// FetchScalar implements Transport. The span ends when the cursor is closed.
func (t *Traced) FetchScalar(ctx context.Context, statement string, params map[string]any) (Cursor[RawRow], error) {
	ctx, span := t.start(ctx, SpanFetchScalar, statement, params)
	cur, err := t.next.FetchScalar(ctx, statement, params)
	return traceCursor(span, cur, err)
}

func traceCursor[T any](span trace.Span, cur Cursor[T], err error) (Cursor[T], error) {
	if err != nil {
		finish(span, err)
		span.End()
		return nil, err
	}
	return &tracedCursor[T]{Cursor: cur, span: span}, nil
}

// tracedCursor counts the rows read and ends its fetch span on Close.
type tracedCursor[T any] struct {
	Cursor[T]
	span  trace.Span
	rows  int
	ended bool
}

func (c *tracedCursor[T]) Next(ctx context.Context) bool {
	if !c.Cursor.Next(ctx) {
		return false
	}
	c.rows++
	return true
}

func (c *tracedCursor[T]) Close(ctx context.Context) error {
	err := c.Cursor.Close(ctx)
	if c.ended {
		return err
	}
	c.ended = true

	failure := c.Cursor.Err()
	if failure == nil {
		failure = err
	}
	c.span.SetAttributes(attribute.Int(AttrRowCount, c.rows))
	finish(c.span, failure)
	c.span.End()
	return err
}

// Exec implements Transport.
func (t *Traced) Exec(ctx context.Context, statement string, params map[string]any) (Summary, error) {
	ctx, span := t.start(ctx, SpanExec, statement, params)
	defer span.End()
	sum, err := t.next.Exec(ctx, statement, params)
	if err == nil {
		span.SetAttributes(
			attribute.Int("graphgate.nodes_created", sum.NodesCreated),
			attribute.Int("graphgate.nodes_deleted", sum.NodesDeleted),
			attribute.Int("graphgate.relationships_created", sum.RelationshipsCreated),
			attribute.Int("graphgate.relationships_deleted", sum.RelationshipsDeleted),
			attribute.Int("graphgate.properties_set", sum.PropertiesSet),
		)
	}
	finish(span, err)
	return sum, err
}

// Commit forwards to the wrapped transport when it is a Committer.
func (t *Traced) Commit(ctx context.Context) error {
	c, ok := t.next.(Committer)
	if !ok {
		return nil
	}
	ctx, span := t.tracer.Start(ctx, SpanCommit)
	defer span.End()
	err := c.Commit(ctx)
	finish(span, err)
	return err
}

// Rollback forwards to the wrapped transport when it is a Committer.
func (t *Traced) Rollback(ctx context.Context) error {
	c, ok := t.next.(Committer)
	if !ok {
		return nil
	}
	ctx, span := t.tracer.Start(ctx, SpanRollback)
	defer span.End()
	err := c.Rollback(ctx)
	finish(span, err)
	return err
}

func (t *Traced) start(ctx context.Context, name, statement string, params map[string]any) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrStatement, statement),
			attribute.Int(AttrParamCount, len(params)),
		))
}

func finish(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	code := string(graph.ErrCodeTransportFailed)
	var ge *graph.Error
	if errors.As(err, &ge) {
		code = string(ge.Code)
	}
	span.SetAttributes(
		attribute.String(AttrErrorCode, code),
		attribute.String(AttrErrorType, fmt.Sprintf("%T", err)),
	)
}

// TracedOpener wraps every transport begun by next in a Traced decorator.
type TracedOpener struct {
	next   Opener
	tracer trace.Tracer
}

// NewTracedOpener wraps next.
func NewTracedOpener(next Opener, tracer trace.Tracer) *TracedOpener {
	return &TracedOpener{next: next, tracer: tracer}
}

// Begin implements Opener.
func (o *TracedOpener) Begin(ctx context.Context) (Transport, error) {
	tr, err := o.next.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return NewTraced(tr, o.tracer), nil
}
