// Package cypher compiles predicate trees into parameterized Cypher.
//
// Values are NEVER interpolated into statement text: every value becomes a
// named parameter ($p0, $p1, ...). Only identifiers (labels, relationship
// types, property keys) appear in the text, always backtick-quoted.
//
// Compiling the same tree twice yields byte-identical text and the same
// parameter map; parameter names are assigned in traversal order.
package cypher

import (
	"fmt"
	"maps"
	"strings"

	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/predicate"
)

// Variable names used in compiled statements.
const (
	NodeVar         = "n"
	RelationshipVar = "r"
	StartVar        = "s"
	EndVar          = "t"
)

// bufferState is shared by a buffer and all of its sub-buffers so parameter
// numbering and collected types stay global to one compilation.
type bufferState struct {
	params map[string]any
	next   int
	types  []string
	seen   map[string]bool
	gaps   []predicate.Kind
}

// Buffer accumulates a WHERE fragment for one entity kind.
type Buffer struct {
	kind    graph.Kind
	tenant  string
	exclude bool
	text    strings.Builder
	state   *bufferState
}

// NewBuffer returns an empty buffer compiling against kind. A non-empty
// tenant label is applied to every node the fragment introduces.
func NewBuffer(kind graph.Kind, tenant string) *Buffer {
	return &Buffer{
		kind:   kind,
		tenant: tenant,
		state: &bufferState{
			params: make(map[string]any),
			seen:   make(map[string]bool),
		},
	}
}

// Sub returns an empty buffer sharing this buffer's parameters and types.
func (b *Buffer) Sub() *Buffer {
	return &Buffer{kind: b.kind, tenant: b.tenant, exclude: b.exclude, state: b.state}
}

// excluding returns a sub-buffer whose matches may be excluded from the
// result by an enclosing NOT or OR.
func (b *Buffer) excluding() *Buffer {
	sub := b.Sub()
	sub.exclude = true
	return sub
}

// Kind returns the entity kind the buffer compiles against.
func (b *Buffer) Kind() graph.Kind {
	return b.kind
}

// Tenant returns the tenant label, or "" when unscoped.
func (b *Buffer) Tenant() string {
	return b.tenant
}

// Scoping reports whether a type recorded here narrows the whole match.
// It is false below a NOT or inside an OR group.
func (b *Buffer) Scoping() bool {
	return !b.exclude
}

// Var returns the statement variable of the entity being filtered.
func (b *Buffer) Var() string {
	if b.kind == graph.KindRelationship {
		return RelationshipVar
	}
	return NodeVar
}

// Property renders a property access on the filtered entity.
func (b *Buffer) Property(key string) string {
	return b.Var() + "." + Quote(key)
}

// Param binds v to the next parameter name and returns its placeholder.
func (b *Buffer) Param(v any) string {
	name := fmt.Sprintf("p%d", b.state.next)
	b.state.next++
	b.state.params[name] = v
	return "$" + name
}

// Write appends text.
func (b *Buffer) Write(s string) {
	b.text.WriteString(s)
}

// Len returns the length of the text written so far.
func (b *Buffer) Len() int {
	return b.text.Len()
}

// Text returns the accumulated WHERE fragment.
func (b *Buffer) Text() string {
	return b.text.String()
}

// AddTypes records labels or relationship types, preserving first-seen order.
func (b *Buffer) AddTypes(types ...string) {
	for _, t := range types {
		if b.state.seen[t] {
			continue
		}
		b.state.seen[t] = true
		b.state.types = append(b.state.types, t)
	}
}

// Types returns the collected labels or relationship types.
func (b *Buffer) Types() []string {
	return append([]string(nil), b.state.types...)
}

// Params returns a copy of the bound parameters.
func (b *Buffer) Params() map[string]any {
	return maps.Clone(b.state.params)
}

// Gaps returns the predicate kinds that were skipped for lack of a compiler.
func (b *Buffer) Gaps() []predicate.Kind {
	return append([]predicate.Kind(nil), b.state.gaps...)
}

func (b *Buffer) recordGap(k predicate.Kind) {
	b.state.gaps = append(b.state.gaps, k)
}

// Quote renders an identifier in backticks, doubling embedded backticks.
func Quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

// Labels renders ":`A`:`B`" for a label list; empty labels are skipped.
func Labels(labels ...string) string {
	var sb strings.Builder
	for _, l := range labels {
		if l == "" {
			continue
		}
		sb.WriteString(":")
		sb.WriteString(Quote(l))
	}
	return sb.String()
}
