package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphgate/internal/cypher"
	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/transport"
)

func drain[T any](t *testing.T, cur transport.Cursor[T]) []T {
	t.Helper()
	ctx := context.Background()
	defer cur.Close(ctx)
	var out []T
	for cur.Next(ctx) {
		out = append(out, cur.Record())
	}
	require.NoError(t, cur.Err())
	return out
}

func TestMemGraph_NodeByIDRespectsTenant(t *testing.T) {
	ctx := context.Background()
	g := NewMemGraph()
	id := g.AddNode([]string{"Person", "acme"}, map[string]any{"name": "Ada"})
	other := g.AddNode([]string{"Person"}, nil)

	cur, err := g.FetchNodes(ctx, cypher.NodeByID("acme"), map[string]any{"id": id})
	require.NoError(t, err)
	rows := drain(t, cur)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ada", rows[0].Properties["name"])

	cur, err = g.FetchNodes(ctx, cypher.NodeByID("acme"), map[string]any{"id": other})
	require.NoError(t, err)
	assert.Empty(t, drain(t, cur))

	cur, err = g.FetchNodes(ctx, cypher.NodeByID(""), map[string]any{"id": other})
	require.NoError(t, err)
	assert.Len(t, drain(t, cur), 1)
}

func TestMemGraph_SetAndRemoveProperties(t *testing.T) {
	ctx := context.Background()
	g := NewMemGraph()
	id := g.AddNode(nil, map[string]any{"a": 1, "b": 2})

	sum, err := g.Exec(ctx, cypher.SetNodeProperties(""), map[string]any{
		"id":    id,
		"props": map[string]any{"a": 10, "b": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.PropertiesSet)

	props, ok := g.NodeProperties(id)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": int64(10)}, props)
}

func TestMemGraph_DeleteConnectedNode(t *testing.T) {
	ctx := context.Background()
	g := NewMemGraph()
	a := g.AddNode(nil, nil)
	b := g.AddNode(nil, nil)
	r := g.AddRelationship(a, b, "KNOWS", nil)

	_, err := g.Exec(ctx, cypher.DeleteNode("", false), map[string]any{"id": a})
	assert.Error(t, err)
	assert.True(t, g.HasNode(a))

	sum, err := g.Exec(ctx, cypher.DeleteNode("", true), map[string]any{"id": a})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.NodesDeleted)
	assert.Equal(t, 1, sum.RelationshipsDeleted)
	assert.False(t, g.HasNode(a))
	assert.False(t, g.HasRelationship(r))
}

func TestMemGraph_Adjacent(t *testing.T) {
	ctx := context.Background()
	g := NewMemGraph()
	a := g.AddNode(nil, nil)
	b := g.AddNode(nil, nil)
	c := g.AddNode(nil, nil)
	ab := g.AddRelationship(a, b, "KNOWS", nil)
	ca := g.AddRelationship(c, a, "LIKES", nil)

	tests := []struct {
		name    string
		dir     graph.Direction
		relType string
		want    []int64
	}{
		{name: "outgoing", dir: graph.DirectionOutgoing, want: []int64{ab}},
		{name: "incoming", dir: graph.DirectionIncoming, want: []int64{ca}},
		{name: "both", dir: graph.DirectionBoth, want: []int64{ab, ca}},
		{name: "typed", dir: graph.DirectionBoth, relType: "LIKES", want: []int64{ca}},
		{name: "no match", dir: graph.DirectionOutgoing, relType: "LIKES", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur, err := g.FetchRelationships(ctx, cypher.Adjacent("", tt.dir, tt.relType), map[string]any{"id": a})
			require.NoError(t, err)
			var ids []int64
			for _, r := range drain(t, cur) {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemGraph_TransactionIsolation(t *testing.T) {
	ctx := context.Background()
	g := NewMemGraph()
	id := g.AddNode(nil, map[string]any{"v": 1})

	tr, err := g.Begin(ctx)
	require.NoError(t, err)
	_, err = tr.Exec(ctx, cypher.SetNodeProperties(""), map[string]any{"id": id, "props": map[string]any{"v": 2}})
	require.NoError(t, err)

	props, _ := g.NodeProperties(id)
	assert.Equal(t, int64(1), props["v"], "uncommitted change is private")

	require.NoError(t, tr.(transport.Committer).Rollback(ctx))
	props, _ = g.NodeProperties(id)
	assert.Equal(t, int64(1), props["v"])
	assert.Equal(t, 1, g.Rollbacks())

	tr, err = g.Begin(ctx)
	require.NoError(t, err)
	_, err = tr.Exec(ctx, cypher.SetNodeProperties(""), map[string]any{"id": id, "props": map[string]any{"v": 3}})
	require.NoError(t, err)
	require.NoError(t, tr.(transport.Committer).Commit(ctx))

	props, _ = g.NodeProperties(id)
	assert.Equal(t, int64(3), props["v"])
	assert.Equal(t, 1, g.Commits())

	_, err = tr.Exec(ctx, cypher.SetNodeProperties(""), map[string]any{"id": id, "props": map[string]any{"v": 4}})
	assert.Error(t, err, "finished transaction")
}

func TestMemGraph_CreateRelationship(t *testing.T) {
	ctx := context.Background()
	g := NewMemGraph()
	a := g.AddNode([]string{"t"}, nil)
	b := g.AddNode([]string{"t"}, nil)

	cur, err := g.FetchRelationships(ctx, cypher.CreateRelationship("t", "KNOWS"), map[string]any{
		"start": a, "end": b, "props": map[string]any{"since": 2020},
	})
	require.NoError(t, err)
	rows := drain(t, cur)
	require.Len(t, rows, 1)
	assert.Equal(t, "KNOWS", rows[0].Type)
	assert.Equal(t, a, rows[0].StartID)
	assert.Equal(t, b, rows[0].EndID)
	assert.True(t, g.HasRelationship(rows[0].ID))
}

func TestMemGraph_CannedRowsArePaged(t *testing.T) {
	ctx := context.Background()
	g := NewMemGraph()
	const stmt = "MATCH (n) RETURN n"
	g.OnNodes(stmt,
		transport.RawNode{ID: 1}, transport.RawNode{ID: 2}, transport.RawNode{ID: 3},
	)

	cur, err := g.FetchNodes(ctx, stmt+" SKIP 1 LIMIT 5", nil)
	require.NoError(t, err)
	rows := drain(t, cur)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].ID)

	cur, err = g.FetchNodes(ctx, stmt+" SKIP 9 LIMIT 5", nil)
	require.NoError(t, err)
	assert.Empty(t, drain(t, cur))

	cur, err = g.FetchNodes(ctx, stmt+" LIMIT 1", nil)
	require.NoError(t, err)
	assert.Len(t, drain(t, cur), 1)

	cur, err = g.FetchNodes(ctx, stmt+" SKIP 2", nil)
	require.NoError(t, err)
	assert.Len(t, drain(t, cur), 1)
}

func TestMemGraph_FailNextAndCalls(t *testing.T) {
	ctx := context.Background()
	g := NewMemGraph()
	boom := errors.New("boom")
	g.FailNext(boom)

	_, err := g.Exec(ctx, cypher.DeleteRelationship(""), map[string]any{"id": int64(1)})
	assert.ErrorIs(t, err, boom)

	_, err = g.Exec(ctx, cypher.DeleteRelationship(""), map[string]any{"id": int64(1)})
	assert.NoError(t, err)

	_, err = g.Exec(ctx, "RETURN 1", nil)
	assert.Error(t, err, "unsupported statement")

	assert.Equal(t, 3, g.CallCount(MethodExec))
	assert.Len(t, g.Calls(), 3)
	g.ResetCalls()
	assert.Empty(t, g.Calls())
}
