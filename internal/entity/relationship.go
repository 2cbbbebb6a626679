package entity

import (
	"context"
	"fmt"

	"github.com/roach88/graphgate/internal/cypher"
	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/transport"
)

// Relationship is the shared wrapper for one remote relationship. Its type
// and endpoints never change; only the property snapshot is refreshed.
type Relationship struct {
	snapshot

	id      int64
	graph   *Graph
	relType string
	startID int64
	endID   int64
}

func newRelationship(g *Graph, raw transport.RawRelationship) *Relationship {
	r := &Relationship{
		id:      raw.ID,
		graph:   g,
		relType: raw.Type,
		startID: raw.StartID,
		endID:   raw.EndID,
	}
	r.reset(raw.Properties)
	return r
}

// ID returns the relationship identity.
func (r *Relationship) ID() int64 { return r.id }

// Type returns the relationship type.
func (r *Relationship) Type() string { return r.relType }

// StartID returns the identity of the start node.
func (r *Relationship) StartID() int64 { return r.startID }

// EndID returns the identity of the end node.
func (r *Relationship) EndID() int64 { return r.endID }

// Other returns the identity of the endpoint opposite nodeID.
func (r *Relationship) Other(nodeID int64) int64 {
	if r.startID == nodeID {
		return r.endID
	}
	return r.startID
}

// StartNode resolves the start node through the node cache.
func (r *Relationship) StartNode(ctx context.Context, tx *Tx) (*Node, error) {
	if err := r.ensureFresh(ctx, tx); err != nil {
		return nil, err
	}
	return tx.Node(ctx, r.startID)
}

// EndNode resolves the end node through the node cache.
func (r *Relationship) EndNode(ctx context.Context, tx *Tx) (*Node, error) {
	if err := r.ensureFresh(ctx, tx); err != nil {
		return nil, err
	}
	return tx.Node(ctx, r.endID)
}

// Get returns the value of key and whether it is set.
func (r *Relationship) Get(ctx context.Context, tx *Tx, key string) (any, bool, error) {
	if err := r.ensureFresh(ctx, tx); err != nil {
		return nil, false, err
	}
	v, ok := r.get(key)
	return v, ok, nil
}

// Keys returns the property keys in canonical order.
func (r *Relationship) Keys(ctx context.Context, tx *Tx) ([]string, error) {
	if err := r.ensureFresh(ctx, tx); err != nil {
		return nil, err
	}
	return r.keys(), nil
}

// Properties returns a copy of the property snapshot.
func (r *Relationship) Properties(ctx context.Context, tx *Tx) (map[string]any, error) {
	if err := r.ensureFresh(ctx, tx); err != nil {
		return nil, err
	}
	return r.properties(), nil
}

// Set writes one property; see Node.Set.
func (r *Relationship) Set(ctx context.Context, tx *Tx, key string, v any) error {
	return r.SetAll(ctx, tx, map[string]any{key: v})
}

// SetAll writes every changed property in one statement.
func (r *Relationship) SetAll(ctx context.Context, tx *Tx, props map[string]any) error {
	if err := r.ensureFresh(ctx, tx); err != nil {
		return err
	}

	changes := r.changes(props)
	if len(changes) == 0 {
		return nil
	}
	_, err := tx.tr.Exec(ctx, cypher.SetRelationshipProperties(r.graph.tenant), map[string]any{
		"id":    r.id,
		"props": changes,
	})
	if err != nil {
		return fmt.Errorf("set properties on relationship %d: %w", r.id, err)
	}

	r.apply(changes)
	tx.touchRelationship(r)
	return nil
}

// Remove deletes one property.
func (r *Relationship) Remove(ctx context.Context, tx *Tx, key string) error {
	return r.SetAll(ctx, tx, map[string]any{key: nil})
}

// Delete deletes the relationship and invalidates both endpoints'
// adjacency caches.
func (r *Relationship) Delete(ctx context.Context, tx *Tx) error {
	if err := r.ensureFresh(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.tr.Exec(ctx, cypher.DeleteRelationship(r.graph.tenant), map[string]any{"id": r.id}); err != nil {
		return fmt.Errorf("delete relationship %d: %w", r.id, err)
	}

	r.MarkStale()
	tx.deleteRelationship(r)
	return nil
}

// MarkStale forces a refresh on next access and invalidates the adjacency
// caches of both endpoints.
func (r *Relationship) MarkStale() {
	r.setStale()
	r.graph.invalidateAdjacency(r.startID, r.endID)
}

func (r *Relationship) ensureFresh(ctx context.Context, tx *Tx) error {
	if !r.Stale() {
		return nil
	}

	raw, err := tx.fetchRelationship(ctx, r.id)
	if err != nil {
		if graph.IsNotFound(err) {
			if cached, ok := r.graph.rels.Peek(r.id); ok && cached == r {
				r.graph.rels.Remove(r.id)
			}
		}
		return notFoundOrWrap(err, graph.KindRelationship, r.id, "refresh")
	}
	r.replace(raw)
	return nil
}

func (r *Relationship) replace(raw transport.RawRelationship) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset(raw.Properties)
}
