// Package entity maintains shared, mutable wrappers for remote graph
// entities.
//
// A Graph owns two bounded identity caches, one for nodes and one for
// relationships. While a wrapper is cached, every lookup of its identity
// returns the same *Node or *Relationship. Wrappers carry a property
// snapshot and a staleness flag: a stale wrapper re-fetches itself by
// identity on next access, or fails with a NOT_FOUND error when the entity
// is gone.
//
// Every operation that talks to the database takes the *Tx it runs in.
// A Tx is bound to one transport (usually one database transaction) and
// records which entities it touched and deleted so the caches can be
// corrected when it ends.
//
// Node adjacency is cached as relationship identities, resolved through the
// relationship cache on read; wrappers never point at each other directly.
package entity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/retry"
	"github.com/roach88/graphgate/internal/transport"
)

// Options configures a Graph.
type Options struct {
	// Tenant is an extra label applied to every node pattern. Empty means
	// no tenant scoping.
	Tenant string

	NodeCacheSize         int
	RelationshipCacheSize int

	// Retry is the policy used by Run.
	Retry retry.Policy
}

// DefaultOptions returns the defaults used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		NodeCacheSize:         10000,
		RelationshipCacheSize: 10000,
		Retry:                 retry.DefaultPolicy(),
	}
}

// Graph is the session context shared by every transaction of a process.
// It is safe for concurrent use.
type Graph struct {
	nodes  *Cache[*Node]
	rels   *Cache[*Relationship]
	tenant string
	retry  retry.Policy
}

// NewGraph creates the identity caches.
func NewGraph(opts Options) (*Graph, error) {
	def := DefaultOptions()
	if opts.NodeCacheSize <= 0 {
		opts.NodeCacheSize = def.NodeCacheSize
	}
	if opts.RelationshipCacheSize <= 0 {
		opts.RelationshipCacheSize = def.RelationshipCacheSize
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = def.Retry
	}

	nodes, err := NewCache[*Node]("node", opts.NodeCacheSize)
	if err != nil {
		return nil, err
	}
	rels, err := NewCache[*Relationship]("relationship", opts.RelationshipCacheSize)
	if err != nil {
		return nil, err
	}

	return &Graph{
		nodes:  nodes,
		rels:   rels,
		tenant: opts.Tenant,
		retry:  opts.Retry,
	}, nil
}

// Tenant returns the tenant label, or "".
func (g *Graph) Tenant() string {
	return g.tenant
}

// Nodes returns the node identity cache.
func (g *Graph) Nodes() *Cache[*Node] {
	return g.nodes
}

// Relationships returns the relationship identity cache.
func (g *Graph) Relationships() *Cache[*Relationship] {
	return g.rels
}

// Begin binds a new Tx to tr.
func (g *Graph) Begin(tr transport.Transport) *Tx {
	return newTx(g, tr)
}

// Open begins a database transaction through opener and binds a Tx to it.
func (g *Graph) Open(ctx context.Context, opener transport.Opener) (*Tx, error) {
	tr, err := opener.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return newTx(g, tr), nil
}

// Run executes fn in a transaction opened through opener, committing when
// fn returns nil. Transient failures re-run the whole unit of work under the
// graph's retry policy.
func (g *Graph) Run(ctx context.Context, opener transport.Opener, fn func(ctx context.Context, tx *Tx) error) error {
	return retry.DoErr(ctx, g.retry, func(ctx context.Context) retry.Result[struct{}] {
		tx, err := g.Open(ctx, opener)
		if err != nil {
			return transport.Classify(struct{}{}, err)
		}

		err = fn(ctx, tx)
		if err == nil {
			tx.Success()
		}
		if closeErr := tx.Close(ctx); err == nil {
			err = closeErr
		}
		if err != nil {
			slog.Debug("unit of work failed", "tx", tx.ID().String(), "error", err)
		}
		return transport.Classify(struct{}{}, err)
	})
}

// Expunge drops the listed identities from both caches without marking the
// wrappers stale. Use it after bulk changes made outside this process;
// callers must re-resolve any wrapper they hold for those identities.
func (g *Graph) Expunge(nodeIDs, relationshipIDs []int64) {
	g.nodes.Expunge(nodeIDs)
	g.rels.Expunge(relationshipIDs)
}

// Clear empties both caches.
func (g *Graph) Clear() {
	g.nodes.Clear()
	g.rels.Clear()
}

// invalidateAdjacency drops the adjacency cache of every listed node that
// is currently cached.
func (g *Graph) invalidateAdjacency(ids ...int64) {
	for _, id := range ids {
		if n, ok := g.nodes.Peek(id); ok {
			n.InvalidateAdjacency()
		}
	}
}

func notFoundOrWrap(err error, kind graph.Kind, id int64, op string) error {
	if graph.IsNotFound(err) {
		return err
	}
	return fmt.Errorf("%s %s %d: %w", op, kind, id, err)
}
