package entity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/graphgate/internal/cypher"
	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/transport"
	"github.com/roach88/graphgate/internal/value"
)

// Tx binds entity operations to one transport.
//
// Close ends the Tx. When Success was called it commits (if the transport
// is a transport.Committer) and then expunges every deleted identity from
// the caches. Otherwise it rolls back and marks every wrapper it touched
// stale so their snapshots are re-read.
type Tx struct {
	id    uuid.UUID
	graph *Graph
	tr    transport.Transport

	mu           sync.Mutex
	touchedNodes map[int64]*Node
	touchedRels  map[int64]*Relationship
	deletedNodes map[int64]struct{}
	deletedRels  map[int64]struct{}
	success      bool
	closed       bool
}

func newTx(g *Graph, tr transport.Transport) *Tx {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Tx{
		id:           id,
		graph:        g,
		tr:           tr,
		touchedNodes: make(map[int64]*Node),
		touchedRels:  make(map[int64]*Relationship),
		deletedNodes: make(map[int64]struct{}),
		deletedRels:  make(map[int64]struct{}),
	}
}

// ID identifies the Tx in logs.
func (tx *Tx) ID() uuid.UUID {
	return tx.id
}

// Graph returns the session context the Tx belongs to.
func (tx *Tx) Graph() *Graph {
	return tx.graph
}

// Transport returns the bound transport.
func (tx *Tx) Transport() transport.Transport {
	return tx.tr
}

// Success marks the Tx for commit on Close.
func (tx *Tx) Success() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.success = true
}

// Close commits or rolls back. It is safe to call more than once; only the
// first call has an effect.
func (tx *Tx) Close(ctx context.Context) error {
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return nil
	}
	tx.closed = true
	success := tx.success
	touchedNodes, touchedRels := tx.touchedNodes, tx.touchedRels
	deletedNodes, deletedRels := keys(tx.deletedNodes), keys(tx.deletedRels)
	tx.mu.Unlock()

	committer, _ := tx.tr.(transport.Committer)

	if success {
		var err error
		if committer != nil {
			err = committer.Commit(ctx)
		}
		if err == nil {
			tx.graph.nodes.Expunge(deletedNodes)
			tx.graph.rels.Expunge(deletedRels)
			slog.Debug("transaction committed",
				"tx", tx.id.String(),
				"touched_nodes", len(touchedNodes),
				"touched_relationships", len(touchedRels),
				"deleted_nodes", len(deletedNodes),
				"deleted_relationships", len(deletedRels))
			return nil
		}
		staleAll(touchedNodes, touchedRels)
		return fmt.Errorf("commit transaction %s: %w", tx.id, err)
	}

	staleAll(touchedNodes, touchedRels)
	slog.Debug("transaction rolled back",
		"tx", tx.id.String(),
		"staled_nodes", len(touchedNodes),
		"staled_relationships", len(touchedRels))
	if committer != nil {
		if err := committer.Rollback(ctx); err != nil {
			return fmt.Errorf("rollback transaction %s: %w", tx.id, err)
		}
	}
	return nil
}

func staleAll(nodes map[int64]*Node, rels map[int64]*Relationship) {
	for _, n := range nodes {
		n.MarkStale()
	}
	for _, r := range rels {
		r.MarkStale()
	}
}

func keys[V any](m map[int64]V) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (tx *Tx) touchNode(n *Node) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.touchedNodes[n.id] = n
}

func (tx *Tx) touchRelationship(r *Relationship) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.touchedRels[r.id] = r
}

func (tx *Tx) deleteNode(n *Node) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.touchedNodes[n.id] = n
	tx.deletedNodes[n.id] = struct{}{}
}

func (tx *Tx) deleteRelationship(r *Relationship) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.touchedRels[r.id] = r
	tx.deletedRels[r.id] = struct{}{}
}

// Node returns the shared wrapper for id, fetching it on a cache miss and
// refreshing it when stale. A missing node yields a NOT_FOUND error.
func (tx *Tx) Node(ctx context.Context, id int64) (*Node, error) {
	n, err := tx.graph.nodes.GetOrLoad(ctx, id, func(ctx context.Context) (*Node, error) {
		raw, err := tx.fetchNode(ctx, id)
		if err != nil {
			return nil, err
		}
		return newNode(tx.graph, raw), nil
	})
	if err != nil {
		return nil, err
	}
	if err := n.ensureFresh(ctx, tx); err != nil {
		return nil, err
	}
	return n, nil
}

// Relationship returns the shared wrapper for id, like Node.
func (tx *Tx) Relationship(ctx context.Context, id int64) (*Relationship, error) {
	r, err := tx.graph.rels.GetOrLoad(ctx, id, func(ctx context.Context) (*Relationship, error) {
		raw, err := tx.fetchRelationship(ctx, id)
		if err != nil {
			return nil, err
		}
		return newRelationship(tx.graph, raw), nil
	})
	if err != nil {
		return nil, err
	}
	if err := r.ensureFresh(ctx, tx); err != nil {
		return nil, err
	}
	return r, nil
}

// MaterializeNode returns the shared wrapper for a node row, admitting a
// new wrapper when none is cached. A stale cached wrapper takes the row as
// its new snapshot.
func (tx *Tx) MaterializeNode(raw transport.RawNode) *Node {
	if n, ok := tx.graph.nodes.Get(raw.ID); ok {
		if n.Stale() {
			n.replace(raw)
		}
		return n
	}
	n, _ := tx.graph.nodes.Add(raw.ID, newNode(tx.graph, raw))
	return n
}

// MaterializeRelationship is MaterializeNode for relationship rows.
func (tx *Tx) MaterializeRelationship(raw transport.RawRelationship) *Relationship {
	if r, ok := tx.graph.rels.Get(raw.ID); ok {
		if r.Stale() {
			r.replace(raw)
		}
		return r
	}
	r, _ := tx.graph.rels.Add(raw.ID, newRelationship(tx.graph, raw))
	return r
}

// PeekNode returns the cached wrapper for a node row, or a detached wrapper
// that is not admitted to the cache.
func (tx *Tx) PeekNode(raw transport.RawNode) *Node {
	if n, ok := tx.graph.nodes.Peek(raw.ID); ok {
		return n
	}
	return newNode(tx.graph, raw)
}

// PeekRelationship is PeekNode for relationship rows.
func (tx *Tx) PeekRelationship(raw transport.RawRelationship) *Relationship {
	if r, ok := tx.graph.rels.Peek(raw.ID); ok {
		return r
	}
	return newRelationship(tx.graph, raw)
}

// CreateNode creates a node carrying labels (plus the tenant label) and
// props, and admits its wrapper.
func (tx *Tx) CreateNode(ctx context.Context, labels []string, props map[string]any) (*Node, error) {
	cur, err := tx.tr.FetchNodes(ctx, cypher.CreateNode(tx.graph.tenant, labels), map[string]any{
		"props": writable(value.NormalizeMap(props)),
	})
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	raw, found, err := first(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	if !found {
		return nil, graph.NewError(graph.ErrCodeTransportFailed, "create node returned no row")
	}

	n := tx.MaterializeNode(raw)
	tx.touchNode(n)
	return n, nil
}

// CreateRelationship creates a relationship of relType from start to end.
// Both endpoints' adjacency caches are invalidated.
func (tx *Tx) CreateRelationship(ctx context.Context, start, end *Node, relType string, props map[string]any) (*Relationship, error) {
	if err := start.ensureFresh(ctx, tx); err != nil {
		return nil, err
	}
	if err := end.ensureFresh(ctx, tx); err != nil {
		return nil, err
	}

	cur, err := tx.tr.FetchRelationships(ctx, cypher.CreateRelationship(tx.graph.tenant, relType), map[string]any{
		"start": start.id,
		"end":   end.id,
		"props": writable(value.NormalizeMap(props)),
	})
	if err != nil {
		return nil, fmt.Errorf("create relationship: %w", err)
	}
	raw, found, err := first(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("create relationship: %w", err)
	}
	if !found {
		return nil, graph.NewError(graph.ErrCodeNotFound,
			fmt.Sprintf("create relationship: endpoint %d or %d not found", start.id, end.id))
	}

	r := tx.MaterializeRelationship(raw)
	start.InvalidateAdjacency()
	end.InvalidateAdjacency()
	tx.touchRelationship(r)
	tx.touchNode(start)
	tx.touchNode(end)
	return r, nil
}

func (tx *Tx) fetchNode(ctx context.Context, id int64) (transport.RawNode, error) {
	cur, err := tx.tr.FetchNodes(ctx, cypher.NodeByID(tx.graph.tenant), map[string]any{"id": id})
	if err != nil {
		return transport.RawNode{}, fmt.Errorf("fetch node %d: %w", id, err)
	}
	raw, found, err := first(ctx, cur)
	if err != nil {
		return transport.RawNode{}, fmt.Errorf("fetch node %d: %w", id, err)
	}
	if !found {
		return transport.RawNode{}, graph.NewNotFound(graph.KindNode, id)
	}
	return raw, nil
}

func (tx *Tx) fetchRelationship(ctx context.Context, id int64) (transport.RawRelationship, error) {
	cur, err := tx.tr.FetchRelationships(ctx, cypher.RelationshipByID(tx.graph.tenant), map[string]any{"id": id})
	if err != nil {
		return transport.RawRelationship{}, fmt.Errorf("fetch relationship %d: %w", id, err)
	}
	raw, found, err := first(ctx, cur)
	if err != nil {
		return transport.RawRelationship{}, fmt.Errorf("fetch relationship %d: %w", id, err)
	}
	if !found {
		return transport.RawRelationship{}, graph.NewNotFound(graph.KindRelationship, id)
	}
	return raw, nil
}

// first reads at most one row and closes the cursor.
func first[T any](ctx context.Context, cur transport.Cursor[T]) (T, bool, error) {
	defer cur.Close(ctx)

	var zero T
	if cur.Next(ctx) {
		return cur.Record(), true, nil
	}
	return zero, false, cur.Err()
}

// all drains a cursor and closes it.
func all[T any](ctx context.Context, cur transport.Cursor[T]) ([]T, error) {
	defer cur.Close(ctx)

	var out []T
	for cur.Next(ctx) {
		out = append(out, cur.Record())
	}
	return out, cur.Err()
}

// writable drops nil values from props.
func writable(props map[string]any) map[string]any {
	for k, v := range props {
		if v == nil {
			delete(props, k)
		}
	}
	return props
}
