package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/graphgate/internal/entity"
	"github.com/roach88/graphgate/internal/value"
)

// NodeView is the printed form of a node.
type NodeView struct {
	ID         int64          `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// RelationshipView is the printed form of a relationship.
type RelationshipView struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	StartID    int64          `json:"start_id"`
	EndID      int64          `json:"end_id"`
	Properties map[string]any `json:"properties"`
}

func viewNode(ctx context.Context, tx *entity.Tx, n *entity.Node) (NodeView, error) {
	labels, err := n.Labels(ctx, tx)
	if err != nil {
		return NodeView{}, err
	}
	props, err := n.Properties(ctx, tx)
	if err != nil {
		return NodeView{}, err
	}
	return NodeView{ID: n.ID(), Labels: labels, Properties: props}, nil
}

func viewRelationship(ctx context.Context, tx *entity.Tx, r *entity.Relationship) (RelationshipView, error) {
	props, err := r.Properties(ctx, tx)
	if err != nil {
		return RelationshipView{}, err
	}
	return RelationshipView{
		ID:         r.ID(),
		Type:       r.Type(),
		StartID:    r.StartID(),
		EndID:      r.EndID(),
		Properties: props,
	}, nil
}

// String renders the node as (id:Label {key: value}).
func (v NodeView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(%d", v.ID)
	for _, l := range v.Labels {
		sb.WriteString(":" + l)
	}
	writeProperties(&sb, v.Properties)
	sb.WriteString(")")
	return sb.String()
}

// String renders the relationship as (start)-[id:TYPE {key: value}]->(end).
func (v RelationshipView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(%d)-[%d:%s", v.StartID, v.ID, v.Type)
	writeProperties(&sb, v.Properties)
	fmt.Fprintf(&sb, "]->(%d)", v.EndID)
	return sb.String()
}

func writeProperties(sb *strings.Builder, props map[string]any) {
	if len(props) == 0 {
		return
	}
	sb.WriteString(" {")
	for i, k := range value.SortedKeys(props) {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "%s: %v", k, props[k])
	}
	sb.WriteString("}")
}

// lines joins the String form of each item.
func lines[T fmt.Stringer](items []T) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = item.String()
	}
	return strings.Join(parts, "\n")
}
