package entity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/graphgate/internal/cypher"
	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/transport"
)

type adjacencyKey struct {
	dir     graph.Direction
	relType string
}

// Node is the shared wrapper for one remote node.
type Node struct {
	snapshot

	id     int64
	graph  *Graph
	labels []string

	// adjacency holds relationship identities per (direction, type); an
	// empty type is the wildcard. Guarded by snapshot.mu.
	adjacency map[adjacencyKey][]int64
}

func newNode(g *Graph, raw transport.RawNode) *Node {
	n := &Node{id: raw.ID, graph: g}
	n.replaceLocked(raw)
	return n
}

// ID returns the node identity.
func (n *Node) ID() int64 {
	return n.id
}

// Labels returns the node's labels.
func (n *Node) Labels(ctx context.Context, tx *Tx) ([]string, error) {
	if err := n.ensureFresh(ctx, tx); err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.labels...), nil
}

// Get returns the value of key and whether it is set.
func (n *Node) Get(ctx context.Context, tx *Tx, key string) (any, bool, error) {
	if err := n.ensureFresh(ctx, tx); err != nil {
		return nil, false, err
	}
	v, ok := n.get(key)
	return v, ok, nil
}

// Keys returns the property keys in canonical order.
func (n *Node) Keys(ctx context.Context, tx *Tx) ([]string, error) {
	if err := n.ensureFresh(ctx, tx); err != nil {
		return nil, err
	}
	return n.keys(), nil
}

// Properties returns a copy of the property snapshot.
func (n *Node) Properties(ctx context.Context, tx *Tx) (map[string]any, error) {
	if err := n.ensureFresh(ctx, tx); err != nil {
		return nil, err
	}
	return n.properties(), nil
}

// Set writes one property. Setting a value equal to the cached one issues
// no write; a nil value removes the key.
func (n *Node) Set(ctx context.Context, tx *Tx, key string, v any) error {
	return n.SetAll(ctx, tx, map[string]any{key: v})
}

// SetAll writes every property in props that differs from the snapshot, in
// one statement.
func (n *Node) SetAll(ctx context.Context, tx *Tx, props map[string]any) error {
	if err := n.ensureFresh(ctx, tx); err != nil {
		return err
	}

	changes := n.changes(props)
	if len(changes) == 0 {
		return nil
	}
	_, err := tx.tr.Exec(ctx, cypher.SetNodeProperties(n.graph.tenant), map[string]any{
		"id":    n.id,
		"props": changes,
	})
	if err != nil {
		return fmt.Errorf("set properties on node %d: %w", n.id, err)
	}

	n.apply(changes)
	tx.touchNode(n)
	return nil
}

// Remove deletes one property. Removing an absent key issues no write.
func (n *Node) Remove(ctx context.Context, tx *Tx, key string) error {
	return n.SetAll(ctx, tx, map[string]any{key: nil})
}

// Delete deletes the node. With cascade its relationships are deleted too
// and their wrappers marked stale; without it the database refuses to
// delete a node that still has relationships.
func (n *Node) Delete(ctx context.Context, tx *Tx, cascade bool) error {
	if err := n.ensureFresh(ctx, tx); err != nil {
		return err
	}

	var incident []*Relationship
	if cascade {
		var err error
		if incident, err = n.fetchAdjacent(ctx, tx, graph.DirectionBoth, ""); err != nil {
			return err
		}
	}

	if _, err := tx.tr.Exec(ctx, cypher.DeleteNode(n.graph.tenant, cascade), map[string]any{"id": n.id}); err != nil {
		return fmt.Errorf("delete node %d: %w", n.id, err)
	}

	for _, r := range incident {
		r.MarkStale()
		tx.deleteRelationship(r)
	}
	n.MarkStale()
	tx.deleteNode(n)
	return nil
}

// Relationships returns the node's relationships in dir, limited to relType
// unless it is empty. The identity list is cached per (dir, relType) until
// any relationship touching the node is created or deleted.
func (n *Node) Relationships(ctx context.Context, tx *Tx, dir graph.Direction, relType string) ([]*Relationship, error) {
	if err := n.ensureFresh(ctx, tx); err != nil {
		return nil, err
	}

	key := adjacencyKey{dir: dir, relType: relType}
	n.mu.RLock()
	ids, cached := n.adjacency[key]
	n.mu.RUnlock()

	if !cached {
		return n.fetchAdjacent(ctx, tx, dir, relType)
	}

	out := make([]*Relationship, 0, len(ids))
	for _, id := range ids {
		r, err := tx.Relationship(ctx, id)
		if graph.IsNotFound(err) {
			slog.Debug("cached adjacency references a missing relationship, refetching",
				"node", n.id, "relationship", id)
			n.InvalidateAdjacency()
			return n.fetchAdjacent(ctx, tx, dir, relType)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (n *Node) fetchAdjacent(ctx context.Context, tx *Tx, dir graph.Direction, relType string) ([]*Relationship, error) {
	cur, err := tx.tr.FetchRelationships(ctx, cypher.Adjacent(n.graph.tenant, dir, relType), map[string]any{"id": n.id})
	if err != nil {
		return nil, fmt.Errorf("fetch relationships of node %d: %w", n.id, err)
	}
	rows, err := all(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("fetch relationships of node %d: %w", n.id, err)
	}

	out := make([]*Relationship, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, raw := range rows {
		r := tx.MaterializeRelationship(raw)
		out = append(out, r)
		ids = append(ids, r.id)
	}

	n.mu.Lock()
	n.adjacency[adjacencyKey{dir: dir, relType: relType}] = ids
	n.mu.Unlock()
	return out, nil
}

// InvalidateAdjacency drops every cached adjacency list of the node.
func (n *Node) InvalidateAdjacency() {
	n.mu.Lock()
	defer n.mu.Unlock()
	clear(n.adjacency)
}

// MarkStale forces a refresh on next access.
func (n *Node) MarkStale() {
	n.setStale()
}

func (n *Node) ensureFresh(ctx context.Context, tx *Tx) error {
	if !n.Stale() {
		return nil
	}

	raw, err := tx.fetchNode(ctx, n.id)
	if err != nil {
		if graph.IsNotFound(err) {
			if cached, ok := n.graph.nodes.Peek(n.id); ok && cached == n {
				n.graph.nodes.Remove(n.id)
			}
		}
		return notFoundOrWrap(err, graph.KindNode, n.id, "refresh")
	}
	n.replace(raw)
	return nil
}

func (n *Node) replace(raw transport.RawNode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replaceLocked(raw)
}

func (n *Node) replaceLocked(raw transport.RawNode) {
	n.labels = append([]string(nil), raw.Labels...)
	n.reset(raw.Properties)
	n.adjacency = make(map[adjacencyKey][]int64)
}
