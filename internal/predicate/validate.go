package predicate

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/roach88/graphgate/internal/graph"
)

// maxIdentifierLength bounds property keys, labels and relationship types.
const maxIdentifierLength = 255

// Validate checks a query before compilation.
//
// It enforces the identifier trust boundary (keys, labels and types are
// interpolated into statement text) and rejects structurally broken trees
// such as a Not without a child or an unknown operator. A TypeFilter only
// narrows the match, so it may not sit under a Not or inside an OR group.
// All problems are
// collected and returned as one INVALID_PREDICATE error.
//
// Validate is a pure function with no side effects.
func Validate(q *Query) error {
	if q == nil {
		return graph.NewError(graph.ErrCodeInvalidPredicate, "nil query")
	}

	v := &validator{}
	if q.Where != nil {
		v.validatePredicate(q.Where)
	}
	if q.Sort != nil {
		v.checkIdentifier("sort key", q.Sort.Key)
	}
	if q.Slice != nil {
		if q.Slice.Skip < 0 {
			v.addProblem("slice skip must not be negative: %d", q.Slice.Skip)
		}
		if q.Slice.Limit < 0 {
			v.addProblem("slice limit must not be negative: %d", q.Slice.Limit)
		}
	}

	if len(v.problems) == 0 {
		return nil
	}
	return graph.NewError(graph.ErrCodeInvalidPredicate, strings.Join(v.problems, "; "))
}

// ValidIdentifier reports whether s may be interpolated as a quoted identifier.
func ValidIdentifier(s string) bool {
	return identifierProblem(s) == ""
}

// validator accumulates problems during traversal. excluded counts the
// enclosing NOT nodes and OR groups.
type validator struct {
	problems []string
	excluded int
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) checkIdentifier(what, s string) {
	if problem := identifierProblem(s); problem != "" {
		v.addProblem("%s %q %s", what, s, problem)
	}
}

func identifierProblem(s string) string {
	if strings.TrimSpace(s) == "" {
		return "is empty"
	}
	if len(s) > maxIdentifierLength {
		return fmt.Sprintf("exceeds %d bytes", maxIdentifierLength)
	}
	for _, r := range s {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return "contains a control or invalid character"
		}
	}
	return ""
}

func (v *validator) checkOp(op Op) {
	if op != "" && !op.Valid() {
		v.addProblem("unknown operator %q", op)
	}
}

// validatePredicate recursively validates a predicate node.
func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.addProblem("nil predicate")
	case *Exact:
		v.checkIdentifier("property key", pred.Key)
		v.checkOp(pred.Op)
	case *Range:
		v.checkIdentifier("property key", pred.Key)
	case *FullText:
		v.checkIdentifier("property key", pred.Key)
	case *Spatial:
		if pred.LatitudeKey != "" {
			v.checkIdentifier("latitude key", pred.LatitudeKey)
		}
		if pred.LongitudeKey != "" {
			v.checkIdentifier("longitude key", pred.LongitudeKey)
		}
		if pred.Distance < 0 || math.IsNaN(pred.Distance) {
			v.addProblem("spatial distance must be a non-negative number")
		}
		if math.Abs(pred.Latitude) > 90 || math.Abs(pred.Longitude) > 180 {
			v.addProblem("spatial coordinates out of range: (%v, %v)", pred.Latitude, pred.Longitude)
		}
	case *ArrayContains:
		v.checkIdentifier("property key", pred.Key)
		v.checkOp(pred.Op)
	case *TypeFilter:
		if len(pred.Types) == 0 {
			v.addProblem("type filter without types")
		}
		if v.excluded > 0 {
			v.addProblem("type filter %v cannot appear under a NOT or inside an OR group", pred.Types)
		}
		for _, t := range pred.Types {
			v.checkIdentifier("type", t)
		}
	case *IdentityFilter:
		// Empty ID lists are legal and match nothing.
	case *RelationshipFilter:
		if pred.Type != "" {
			v.checkIdentifier("relationship type", pred.Type)
		}
	case *Group:
		if pred.Or {
			v.excluded++
			defer func() { v.excluded-- }()
		}
		for _, child := range pred.Children {
			v.validatePredicate(child)
		}
	case *Not:
		if pred.Child == nil {
			v.addProblem("not without child")
			return
		}
		v.excluded++
		v.validatePredicate(pred.Child)
		v.excluded--
	case *Empty:
		v.checkIdentifier("property key", pred.Key)
	case *NotEmpty:
		v.checkIdentifier("property key", pred.Key)
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}
