package predicate

import "github.com/roach88/graphgate/internal/graph"

// Kind identifies a predicate kind. The cypher compiler registry is keyed by it.
type Kind int

const (
	KindExact Kind = iota + 1
	KindRange
	KindFullText
	KindSpatial
	KindArrayContains
	KindTypeFilter
	KindIdentityFilter
	KindRelationshipFilter
	KindGroup
	KindNot
	KindEmpty
	KindNotEmpty
)

var kindNames = map[Kind]string{
	KindExact:              "exact",
	KindRange:              "range",
	KindFullText:           "fulltext",
	KindSpatial:            "spatial",
	KindArrayContains:      "array_contains",
	KindTypeFilter:         "type",
	KindIdentityFilter:     "identity",
	KindRelationshipFilter: "relationship",
	KindGroup:              "group",
	KindNot:                "not",
	KindEmpty:              "empty",
	KindNotEmpty:           "not_empty",
}

// String returns the wire name of the kind (also used by the JSON decoder).
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Predicate is one filterable condition over graph entities.
//
// This is a sealed interface; the marker method keeps implementations inside
// this package so compilers can rely on the set of kinds being closed.
type Predicate interface {
	Kind() Kind
	predicateNode()
}

// Op is a comparison operator used by Exact and ArrayContains.
type Op string

const (
	OpEqual        Op = "="
	OpNotEqual     Op = "<>"
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpStartsWith   Op = "STARTS WITH"
	OpEndsWith     Op = "ENDS WITH"
	OpContains     Op = "CONTAINS"
)

// Valid reports whether op is one of the known operators.
func (op Op) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual,
		OpStartsWith, OpEndsWith, OpContains:
		return true
	}
	return false
}

// nullValue is the type of the Null sentinel.
type nullValue struct{}

// Null is the "no value" sentinel. Comparing against it renders IS NULL /
// IS NOT NULL instead of binding a parameter.
var Null = nullValue{}

// IsNull reports whether v is the Null sentinel or a Go nil.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(nullValue)
	return ok
}

// Exact compares a property against a single value.
//
//	Exact{Key: "name", Value: "Alice"}              -> n.`name` = $p0
//	Exact{Key: "name", Value: "al", Op: OpStartsWith, CaseInsensitive: true}
//	                                                -> toLower(n.`name`) STARTS WITH toLower($p0)
//
// An empty Op means OpEqual.
type Exact struct {
	Key             string
	Value           any
	Op              Op
	CaseInsensitive bool
}

func (*Exact) Kind() Kind     { return KindExact }
func (*Exact) predicateNode() {}

// Range bounds a property on one or both sides. A nil bound is open.
type Range struct {
	Key         string
	From        any
	To          any
	IncludeFrom bool
	IncludeTo   bool
}

func (*Range) Kind() Kind     { return KindRange }
func (*Range) predicateNode() {}

// FullText matches entities whose property contains the search text,
// case-insensitively.
type FullText struct {
	Key  string
	Text string
}

func (*FullText) Kind() Kind     { return KindFullText }
func (*FullText) predicateNode() {}

// Spatial matches entities within Distance meters of (Latitude, Longitude).
// LatitudeKey and LongitudeKey name the properties holding the entity's
// coordinates; they default to "latitude" and "longitude".
type Spatial struct {
	LatitudeKey  string
	LongitudeKey string
	Latitude     float64
	Longitude    float64
	Distance     float64
}

func (*Spatial) Kind() Kind     { return KindSpatial }
func (*Spatial) predicateNode() {}

// ArrayContains matches entities whose array property has at least one
// element satisfying Op against Value.
type ArrayContains struct {
	Key   string
	Value any
	Op    Op
}

func (*ArrayContains) Kind() Kind     { return KindArrayContains }
func (*ArrayContains) predicateNode() {}

// TypeFilter restricts results to entities carrying one of Types (labels for
// nodes, relationship types for relationships). More than one type compiles
// into a UNION of per-type statements.
type TypeFilter struct {
	Types []string
}

func (*TypeFilter) Kind() Kind     { return KindTypeFilter }
func (*TypeFilter) predicateNode() {}

// IdentityFilter matches entities by their numeric identity.
type IdentityFilter struct {
	IDs []int64
}

func (*IdentityFilter) Kind() Kind     { return KindIdentityFilter }
func (*IdentityFilter) predicateNode() {}

// RelationshipFilter matches through relationships.
//
// On a node query it matches nodes having a relationship of Type in Direction
// to any node in OtherIDs (or any relationship at all when OtherIDs is empty).
// On a relationship query it constrains both ends: StartIDs and EndIDs.
type RelationshipFilter struct {
	Type      string
	Direction graph.Direction
	OtherIDs  []int64
	StartIDs  []int64
	EndIDs    []int64
}

func (*RelationshipFilter) Kind() Kind     { return KindRelationshipFilter }
func (*RelationshipFilter) predicateNode() {}

// Group combines children with AND (default) or OR. A Not child is rendered
// as AND NOT / OR NOT, or a leading NOT when it comes first.
type Group struct {
	Children []Predicate
	Or       bool
}

func (*Group) Kind() Kind     { return KindGroup }
func (*Group) predicateNode() {}

// Not negates its child.
type Not struct {
	Child Predicate
}

func (*Not) Kind() Kind     { return KindNot }
func (*Not) predicateNode() {}

// Empty matches entities that have no value for Key.
type Empty struct {
	Key string
}

func (*Empty) Kind() Kind     { return KindEmpty }
func (*Empty) predicateNode() {}

// NotEmpty matches entities that have a value for Key.
type NotEmpty struct {
	Key string
}

func (*NotEmpty) Kind() Kind     { return KindNotEmpty }
func (*NotEmpty) predicateNode() {}

// And is shorthand for an AND group.
func And(children ...Predicate) *Group {
	return &Group{Children: children}
}

// Or is shorthand for an OR group.
func Or(children ...Predicate) *Group {
	return &Group{Children: children, Or: true}
}

// Eq is shorthand for an equality predicate.
func Eq(key string, v any) *Exact {
	return &Exact{Key: key, Value: v, Op: OpEqual}
}

// Types is shorthand for a type filter.
func Types(types ...string) *TypeFilter {
	return &TypeFilter{Types: types}
}
