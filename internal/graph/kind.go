// Package graph holds the vocabulary shared by every layer of graphgate:
// entity kinds, traversal directions and the structured error type.
package graph

// Kind distinguishes node-like from relationship-like entities.
type Kind int

const (
	KindNode Kind = iota + 1
	KindRelationship
)

// String returns "node" or "relationship".
func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindRelationship:
		return "relationship"
	default:
		return "unknown"
	}
}

// Direction selects which relationships of a node are traversed.
type Direction int

const (
	// DirectionBoth matches relationships regardless of orientation.
	DirectionBoth Direction = iota
	// DirectionOutgoing matches relationships starting at the node.
	DirectionOutgoing
	// DirectionIncoming matches relationships ending at the node.
	DirectionIncoming
)

// String returns a short name used in logs and cache keys.
func (d Direction) String() string {
	switch d {
	case DirectionOutgoing:
		return "out"
	case DirectionIncoming:
		return "in"
	default:
		return "both"
	}
}
