package cypher

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/predicate"
)

// Factory compiles one predicate kind into buf.
//
// It reports whether it wrote a condition; a factory may legitimately write
// nothing (a type filter only records labels). first is true when nothing
// has been written yet at the current group level.
type Factory func(c *Compiler, p predicate.Predicate, buf *Buffer, first bool) (bool, error)

// Options configures a Compiler.
type Options struct {
	// Strict turns a predicate kind without a registered factory into a
	// COMPILATION_GAP error. When false the predicate is skipped with a
	// warning, which widens the result set.
	Strict bool
}

// Compiler dispatches predicates to per-kind factories.
//
// The registry is fixed at construction. Register exists for tests and for
// embedders that deliberately replace a rendering; it is not safe to call
// concurrently with Compile.
type Compiler struct {
	factories map[predicate.Kind]Factory
	opts      Options
}

// NewCompiler returns a compiler with every built-in kind registered.
func NewCompiler(opts Options) *Compiler {
	return &Compiler{
		factories: map[predicate.Kind]Factory{
			predicate.KindExact:              compileExact,
			predicate.KindRange:              compileRange,
			predicate.KindFullText:           compileFullText,
			predicate.KindSpatial:            compileSpatial,
			predicate.KindArrayContains:      compileArrayContains,
			predicate.KindTypeFilter:         compileTypeFilter,
			predicate.KindIdentityFilter:     compileIdentityFilter,
			predicate.KindRelationshipFilter: compileRelationshipFilter,
			predicate.KindGroup:              compileGroup,
			predicate.KindNot:                compileNot,
			predicate.KindEmpty:              compileEmpty,
			predicate.KindNotEmpty:           compileNotEmpty,
		},
		opts: opts,
	}
}

// Register replaces the factory for kind. A nil factory unregisters it.
func (c *Compiler) Register(kind predicate.Kind, f Factory) {
	if f == nil {
		delete(c.factories, kind)
		return
	}
	c.factories[kind] = f
}

// Options returns the compiler's options.
func (c *Compiler) Options() Options {
	return c.opts
}

// Compile renders p into buf. A nil predicate writes nothing.
func (c *Compiler) Compile(p predicate.Predicate, buf *Buffer, first bool) (bool, error) {
	if p == nil {
		return false, nil
	}

	f, ok := c.factories[p.Kind()]
	if !ok {
		if c.opts.Strict {
			return false, graph.NewError(graph.ErrCodeCompilationGap,
				fmt.Sprintf("no compiler registered for predicate kind %s", p.Kind()))
		}
		slog.Warn("no compiler registered for predicate kind, skipping",
			"kind", p.Kind().String(),
			"entity", buf.Kind().String())
		buf.recordGap(p.Kind())
		return false, nil
	}
	return f(c, p, buf, first)
}

// Where compiles p into a fresh buffer for kind, scoped to tenant.
func (c *Compiler) Where(kind graph.Kind, tenant string, p predicate.Predicate) (*Buffer, error) {
	buf := NewBuffer(kind, tenant)
	if _, err := c.Compile(p, buf, true); err != nil {
		return nil, err
	}
	return buf, nil
}

func compileExact(_ *Compiler, p predicate.Predicate, buf *Buffer, _ bool) (bool, error) {
	e := p.(*predicate.Exact)
	op := e.Op
	if op == "" {
		op = predicate.OpEqual
	}

	prop := buf.Property(e.Key)
	if predicate.IsNull(e.Value) {
		switch op {
		case predicate.OpEqual:
			buf.Write(prop + " IS NULL")
			return true, nil
		case predicate.OpNotEqual:
			buf.Write(prop + " IS NOT NULL")
			return true, nil
		}
		slog.Debug("null comparison has no meaning, skipping", "key", e.Key, "op", string(op))
		return false, nil
	}

	if _, isString := e.Value.(string); isString && e.CaseInsensitive {
		buf.Write(fmt.Sprintf("toLower(%s) %s toLower(%s)", prop, op, buf.Param(e.Value)))
		return true, nil
	}
	buf.Write(fmt.Sprintf("%s %s %s", prop, op, buf.Param(e.Value)))
	return true, nil
}

func compileRange(_ *Compiler, p predicate.Predicate, buf *Buffer, _ bool) (bool, error) {
	r := p.(*predicate.Range)
	prop := buf.Property(r.Key)

	var parts []string
	if !predicate.IsNull(r.From) {
		op := ">"
		if r.IncludeFrom {
			op = ">="
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", prop, op, buf.Param(r.From)))
	}
	if !predicate.IsNull(r.To) {
		op := "<"
		if r.IncludeTo {
			op = "<="
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", prop, op, buf.Param(r.To)))
	}

	switch len(parts) {
	case 0:
		return false, nil
	case 1:
		buf.Write(parts[0])
	default:
		buf.Write("(" + strings.Join(parts, " AND ") + ")")
	}
	return true, nil
}

func compileFullText(_ *Compiler, p predicate.Predicate, buf *Buffer, _ bool) (bool, error) {
	f := p.(*predicate.FullText)
	text := norm.NFC.String(strings.TrimSpace(f.Text))
	if text == "" {
		return false, nil
	}
	buf.Write(fmt.Sprintf("toLower(%s) CONTAINS toLower(%s)", buf.Property(f.Key), buf.Param(text)))
	return true, nil
}

func compileSpatial(_ *Compiler, p predicate.Predicate, buf *Buffer, _ bool) (bool, error) {
	s := p.(*predicate.Spatial)
	latKey := s.LatitudeKey
	if latKey == "" {
		latKey = "latitude"
	}
	lonKey := s.LongitudeKey
	if lonKey == "" {
		lonKey = "longitude"
	}

	buf.Write(fmt.Sprintf(
		"point.distance(point({latitude: %s, longitude: %s}), point({latitude: %s, longitude: %s})) <= %s",
		buf.Property(latKey), buf.Property(lonKey),
		buf.Param(s.Latitude), buf.Param(s.Longitude),
		buf.Param(s.Distance)))
	return true, nil
}

func compileArrayContains(_ *Compiler, p predicate.Predicate, buf *Buffer, _ bool) (bool, error) {
	a := p.(*predicate.ArrayContains)
	op := a.Op
	if op == "" {
		op = predicate.OpEqual
	}

	var cond string
	switch {
	case predicate.IsNull(a.Value) && op == predicate.OpNotEqual:
		cond = "x IS NOT NULL"
	case predicate.IsNull(a.Value):
		cond = "x IS NULL"
	default:
		cond = fmt.Sprintf("x %s %s", op, buf.Param(a.Value))
	}
	buf.Write(fmt.Sprintf("ANY(x IN %s WHERE %s)", buf.Property(a.Key), cond))
	return true, nil
}

func compileTypeFilter(_ *Compiler, p predicate.Predicate, buf *Buffer, _ bool) (bool, error) {
	if !buf.Scoping() {
		return false, errUnscopedType()
	}
	buf.AddTypes(p.(*predicate.TypeFilter).Types...)
	return false, nil
}

func errUnscopedType() error {
	return graph.NewError(graph.ErrCodeInvalidPredicate,
		"type filter cannot appear under a NOT or inside an OR group")
}

func compileIdentityFilter(_ *Compiler, p predicate.Predicate, buf *Buffer, _ bool) (bool, error) {
	ids := p.(*predicate.IdentityFilter).IDs
	switch len(ids) {
	case 0:
		buf.Write("false")
	case 1:
		buf.Write(fmt.Sprintf("id(%s) = %s", buf.Var(), buf.Param(ids[0])))
	default:
		buf.Write(fmt.Sprintf("id(%s) IN %s", buf.Var(), buf.Param(append([]int64(nil), ids...))))
	}
	return true, nil
}

func compileRelationshipFilter(_ *Compiler, p predicate.Predicate, buf *Buffer, _ bool) (bool, error) {
	rf := p.(*predicate.RelationshipFilter)

	if buf.Kind() == graph.KindRelationship {
		if rf.Type != "" {
			if !buf.Scoping() {
				return false, errUnscopedType()
			}
			buf.AddTypes(rf.Type)
		}
		var parts []string
		if len(rf.StartIDs) > 0 {
			parts = append(parts, fmt.Sprintf("id(%s) IN %s", StartVar, buf.Param(append([]int64(nil), rf.StartIDs...))))
		}
		if len(rf.EndIDs) > 0 {
			parts = append(parts, fmt.Sprintf("id(%s) IN %s", EndVar, buf.Param(append([]int64(nil), rf.EndIDs...))))
		}
		switch len(parts) {
		case 0:
			return false, nil
		case 1:
			buf.Write(parts[0])
		default:
			buf.Write("(" + strings.Join(parts, " AND ") + ")")
		}
		return true, nil
	}

	pattern := Pattern(NodeVar, rf.Type, rf.Direction, "x"+Labels(buf.Tenant()))
	if len(rf.OtherIDs) == 0 {
		buf.Write(fmt.Sprintf("size([%s | x]) > 0", pattern))
		return true, nil
	}
	buf.Write(fmt.Sprintf("ANY(m IN [%s | x] WHERE id(m) IN %s)",
		pattern, buf.Param(append([]int64(nil), rf.OtherIDs...))))
	return true, nil
}

func compileGroup(c *Compiler, p predicate.Predicate, buf *Buffer, _ bool) (bool, error) {
	g := p.(*predicate.Group)
	joiner := " AND "
	if g.Or {
		joiner = " OR "
	}

	inner := buf.Sub()
	parts := 0
	for _, child := range g.Children {
		target, negated := child, false
		if n, ok := child.(*predicate.Not); ok {
			target, negated = n.Child, true
		}

		sub := buf.Sub()
		if g.Or || negated {
			sub = buf.excluding()
		}
		wrote, err := c.Compile(target, sub, parts == 0)
		if err != nil {
			return false, err
		}
		if !wrote {
			continue
		}
		if parts > 0 {
			inner.Write(joiner)
		}
		if negated {
			inner.Write("NOT (" + sub.Text() + ")")
		} else {
			inner.Write(sub.Text())
		}
		parts++
	}

	switch parts {
	case 0:
		return false, nil
	case 1:
		buf.Write(inner.Text())
	default:
		buf.Write("(" + inner.Text() + ")")
	}
	return true, nil
}

func compileNot(c *Compiler, p predicate.Predicate, buf *Buffer, first bool) (bool, error) {
	sub := buf.excluding()
	wrote, err := c.Compile(p.(*predicate.Not).Child, sub, first)
	if err != nil || !wrote {
		return false, err
	}
	buf.Write("NOT (" + sub.Text() + ")")
	return true, nil
}

func compileEmpty(_ *Compiler, p predicate.Predicate, buf *Buffer, _ bool) (bool, error) {
	buf.Write(buf.Property(p.(*predicate.Empty).Key) + " IS NULL")
	return true, nil
}

func compileNotEmpty(_ *Compiler, p predicate.Predicate, buf *Buffer, _ bool) (bool, error) {
	buf.Write(buf.Property(p.(*predicate.NotEmpty).Key) + " IS NOT NULL")
	return true, nil
}

// Pattern renders a one-hop relationship pattern from variable from to
// variable to. An empty relType matches any type.
func Pattern(from, relType string, dir graph.Direction, to string) string {
	rel := "[]"
	if relType != "" {
		rel = "[:" + Quote(relType) + "]"
	}
	switch dir {
	case graph.DirectionOutgoing:
		return fmt.Sprintf("(%s)-%s->(%s)", from, rel, to)
	case graph.DirectionIncoming:
		return fmt.Sprintf("(%s)<-%s-(%s)", from, rel, to)
	default:
		return fmt.Sprintf("(%s)-%s-(%s)", from, rel, to)
	}
}
