// Package transport defines the narrow boundary between graphgate and the
// remote graph database, plus the concrete adapters: a Neo4j Bolt client and
// an OpenTelemetry tracing decorator.
//
// Statements are Cypher text with named parameters ($name). Parameter values
// are always passed separately; only identifiers are part of the text.
package transport

import "context"

// RawNode is one node row as returned by the database.
type RawNode struct {
	ID         int64
	Labels     []string
	Properties map[string]any
}

// RawRelationship is one relationship row as returned by the database.
type RawRelationship struct {
	ID         int64
	StartID    int64
	EndID      int64
	Type       string
	Properties map[string]any
}

// RawRow is one scalar row keyed by column name.
type RawRow map[string]any

// Summary reports the effect of a write statement.
type Summary struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
}

// Cursor iterates the rows of one statement execution.
//
// Usage follows database/sql.Rows:
//
//	defer cur.Close(ctx)
//	for cur.Next(ctx) {
//	    row := cur.Record()
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor[T any] interface {
	Next(ctx context.Context) bool
	Record() T
	Err() error
	Close(ctx context.Context) error
}

// Transport executes statements against the database. Implementations are
// typically bound to one database transaction and are not safe for
// concurrent use; each goroutine uses its own.
type Transport interface {
	// FetchNodes runs a statement whose single column is a node.
	FetchNodes(ctx context.Context, statement string, params map[string]any) (Cursor[RawNode], error)

	// FetchRelationships runs a statement whose single column is a relationship.
	FetchRelationships(ctx context.Context, statement string, params map[string]any) (Cursor[RawRelationship], error)

	// FetchScalar runs a statement returning arbitrary columns.
	FetchScalar(ctx context.Context, statement string, params map[string]any) (Cursor[RawRow], error)

	// Exec runs a write statement and discards its rows.
	Exec(ctx context.Context, statement string, params map[string]any) (Summary, error)
}

// Committer is implemented by transports bound to an explicit transaction.
type Committer interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SliceCursor is a Cursor over an in-memory slice. It is used by test
// transports and by adapters that must buffer a result.
type SliceCursor[T any] struct {
	rows   []T
	pos    int
	closed bool
	err    error
}

// NewSliceCursor returns a cursor yielding rows in order.
func NewSliceCursor[T any](rows []T) *SliceCursor[T] {
	return &SliceCursor[T]{rows: rows, pos: -1}
}

// Next advances to the next row.
func (c *SliceCursor[T]) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos+1 >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

// Record returns the current row.
func (c *SliceCursor[T]) Record() T {
	return c.rows[c.pos]
}

// Err returns the error that stopped iteration, if any.
func (c *SliceCursor[T]) Err() error {
	return c.err
}

// Close releases the cursor. It is safe to call more than once.
func (c *SliceCursor[T]) Close(context.Context) error {
	c.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (c *SliceCursor[T]) Closed() bool {
	return c.closed
}

// Opener begins transaction-bound transports.
type Opener interface {
	Begin(ctx context.Context) (Transport, error)
}
