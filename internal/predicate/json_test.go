package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphgate/internal/graph"
)

func TestDecodeQuery(t *testing.T) {
	data := []byte(`{
		"where": {"kind": "group", "or": true, "children": [
			{"kind": "type", "types": ["Person"]},
			{"kind": "exact", "key": "age", "value": 42, "op": ">="},
			{"kind": "range", "key": "score", "from": 1.5, "to": 3},
			{"kind": "not", "child": {"kind": "empty", "key": "email"}},
			{"kind": "relationship", "type": "KNOWS", "direction": "out", "other_ids": [7]},
			{"kind": "array_contains", "key": "tags", "value": "go"},
			{"kind": "exact", "key": "deleted", "value": null}
		]},
		"sort": {"key": "age", "numeric": true, "descending": true},
		"slice": {"skip": 5, "limit": 10},
		"ping": true
	}`)

	q, err := DecodeQuery(data)
	require.NoError(t, err)

	g, ok := q.Where.(*Group)
	require.True(t, ok)
	assert.True(t, g.Or)
	require.Len(t, g.Children, 7)

	assert.Equal(t, &TypeFilter{Types: []string{"Person"}}, g.Children[0])
	assert.Equal(t, &Exact{Key: "age", Value: int64(42), Op: OpGreaterEqual}, g.Children[1])
	assert.Equal(t, &Range{Key: "score", From: 1.5, To: int64(3)}, g.Children[2])
	assert.Equal(t, &Not{Child: &Empty{Key: "email"}}, g.Children[3])
	assert.Equal(t, &RelationshipFilter{Type: "KNOWS", Direction: graph.DirectionOutgoing, OtherIDs: []int64{7}}, g.Children[4])
	assert.Equal(t, &ArrayContains{Key: "tags", Value: "go"}, g.Children[5])
	assert.True(t, IsNull(g.Children[6].(*Exact).Value))

	assert.Equal(t, &Sort{Key: "age", Kind: SortNumeric, Descending: true}, q.Sort)
	assert.Equal(t, &Slice{Skip: 5, Limit: 10}, q.Slice)
	assert.True(t, q.Ping)
}

func TestDecodeQuery_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", `{"where":`},
		{"unknown field", `{"wher": {}}`},
		{"unknown kind", `{"where": {"kind": "regex"}}`},
		{"not without child", `{"where": {"kind": "not"}}`},
		{"bad direction", `{"where": {"kind": "relationship", "direction": "sideways"}}`},
		{"null child", `{"where": {"kind": "group", "children": [null]}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeQuery([]byte(tc.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, &graph.Error{Code: graph.ErrCodeInvalidPredicate})
		})
	}
}
