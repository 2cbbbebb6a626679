// Package index provides query facades over nodes and relationships.
//
// An index compiles a predicate.Query into a CompiledQuery, hands it to a
// lazy stream and maps every raw row onto the shared wrapper from the
// entity identity caches. More than one type label turns the statement into
// a UNION of per-label branches; the tenant label of the Tx's graph scopes
// every node pattern.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/graphgate/internal/cypher"
	"github.com/roach88/graphgate/internal/entity"
	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/predicate"
	"github.com/roach88/graphgate/internal/stream"
	"github.com/roach88/graphgate/internal/transport"
)

// DefaultPageSize is the number of rows fetched per page when Options
// leaves PageSize zero.
const DefaultPageSize = 100

// Options configures an index.
type Options struct {
	// PageSize is the number of rows per page. Negative disables paging.
	PageSize int
}

func (o Options) pageSize() int {
	if o.PageSize == 0 {
		return DefaultPageSize
	}
	return o.PageSize
}

// NodeIndex queries nodes.
type NodeIndex struct {
	compiler *cypher.Compiler
	opts     Options
}

// NewNodeIndex returns a node index compiling with c.
func NewNodeIndex(c *cypher.Compiler, opts Options) *NodeIndex {
	return &NodeIndex{compiler: c, opts: opts}
}

// Compile compiles q for tenant without executing it.
func (ix *NodeIndex) Compile(tenant string, q *predicate.Query) (*CompiledQuery, error) {
	return compile(ix.compiler, graph.KindNode, tenant, q, ix.opts.pageSize())
}

// Query returns a lazy stream of the nodes matching q. The caller must
// drain or Close the stream.
//
// Ping queries fetch at most one row and resolve it without admitting a new
// wrapper into the identity cache.
func (ix *NodeIndex) Query(ctx context.Context, tx *entity.Tx, q *predicate.Query) (*stream.Stream[*entity.Node], error) {
	cq, err := ix.Compile(tx.Graph().Tenant(), q)
	if err != nil {
		return nil, err
	}
	slog.Debug("node query compiled",
		"tx", tx.ID().String(),
		"types", cq.types,
		"params", len(cq.params),
		"page_size", cq.pageSize)

	materialize := tx.MaterializeNode
	if q != nil && q.Ping {
		materialize = tx.PeekNode
	}
	open := stream.Map(tx.Transport().FetchNodes, func(_ context.Context, raw transport.RawNode) (*entity.Node, error) {
		return materialize(raw), nil
	})
	return stream.New(cq, open), nil
}

// Count returns how many nodes match q, ignoring its sort and slice.
func (ix *NodeIndex) Count(ctx context.Context, tx *entity.Tx, q *predicate.Query) (int64, error) {
	cq, err := ix.Compile(tx.Graph().Tenant(), q)
	if err != nil {
		return 0, err
	}
	return count(ctx, tx, cq)
}

// RelationshipIndex queries relationships. Results are de-duplicated with
// RETURN DISTINCT.
type RelationshipIndex struct {
	compiler *cypher.Compiler
	opts     Options
}

// NewRelationshipIndex returns a relationship index compiling with c.
func NewRelationshipIndex(c *cypher.Compiler, opts Options) *RelationshipIndex {
	return &RelationshipIndex{compiler: c, opts: opts}
}

// Compile compiles q for tenant without executing it.
func (ix *RelationshipIndex) Compile(tenant string, q *predicate.Query) (*CompiledQuery, error) {
	return compile(ix.compiler, graph.KindRelationship, tenant, q, ix.opts.pageSize())
}

// Query returns a lazy stream of the relationships matching q.
func (ix *RelationshipIndex) Query(ctx context.Context, tx *entity.Tx, q *predicate.Query) (*stream.Stream[*entity.Relationship], error) {
	cq, err := ix.Compile(tx.Graph().Tenant(), q)
	if err != nil {
		return nil, err
	}
	slog.Debug("relationship query compiled",
		"tx", tx.ID().String(),
		"types", cq.types,
		"params", len(cq.params),
		"page_size", cq.pageSize)

	materialize := tx.MaterializeRelationship
	if q != nil && q.Ping {
		materialize = tx.PeekRelationship
	}
	open := stream.Map(tx.Transport().FetchRelationships, func(_ context.Context, raw transport.RawRelationship) (*entity.Relationship, error) {
		return materialize(raw), nil
	})
	return stream.New(cq, open), nil
}

// Count returns how many relationships match q, ignoring its sort and
// slice.
func (ix *RelationshipIndex) Count(ctx context.Context, tx *entity.Tx, q *predicate.Query) (int64, error) {
	cq, err := ix.Compile(tx.Graph().Tenant(), q)
	if err != nil {
		return 0, err
	}
	return count(ctx, tx, cq)
}

func count(ctx context.Context, tx *entity.Tx, cq *CompiledQuery) (int64, error) {
	cur, err := tx.Transport().FetchScalar(ctx, cq.CountStatement(), cq.Parameters())
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", cq.kind, err)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return 0, fmt.Errorf("count %s: %w", cq.kind, err)
		}
		return 0, nil
	}
	switch n := cur.Record()["count"].(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, graph.NewError(graph.ErrCodeTransportFailed,
			fmt.Sprintf("count %s: unexpected count value %T", cq.kind, n))
	}
}
