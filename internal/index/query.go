package index

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/roach88/graphgate/internal/cypher"
	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/predicate"
	"github.com/roach88/graphgate/internal/stream"
	"github.com/roach88/graphgate/internal/value"
)

// missingNumber is the coalesce sentinel for numeric sort keys. Entities
// without the key compare as the largest integer, so they sort last in
// ascending order and first in descending order.
const missingNumber = "9223372036854775807"

var _ stream.Pageable = (*CompiledQuery)(nil)

// CompiledQuery is a compiled index query plus its paging state.
//
// The statement is assembled from its parts on every Statement call, so it
// is never mutated in place; only the page index changes.
//
// Thread-safety: a CompiledQuery is owned by one stream and is not safe for
// concurrent use.
type CompiledQuery struct {
	kind     graph.Kind
	tenant   string
	types    []string
	where    string
	params   map[string]any
	sort     *predicate.Sort
	slice    *predicate.Slice
	pageSize int
	page     int
	gaps     []predicate.Kind
}

// compile validates q and renders its WHERE clause. pageSize <= 0 produces
// an unpaged query.
func compile(c *cypher.Compiler, kind graph.Kind, tenant string, q *predicate.Query, pageSize int) (*CompiledQuery, error) {
	if q == nil {
		q = &predicate.Query{}
	}
	if err := predicate.Validate(q); err != nil {
		return nil, err
	}
	if tenant != "" && !predicate.ValidIdentifier(tenant) {
		return nil, graph.NewError(graph.ErrCodeInvalidConfig, fmt.Sprintf("invalid tenant label %q", tenant))
	}

	buf, err := c.Where(kind, tenant, q.Where)
	if err != nil {
		return nil, fmt.Errorf("compile %s query: %w", kind, err)
	}

	cq := &CompiledQuery{
		kind:     kind,
		tenant:   tenant,
		types:    buf.Types(),
		where:    buf.Text(),
		params:   buf.Params(),
		sort:     q.Sort,
		slice:    q.Slice,
		pageSize: pageSize,
		gaps:     buf.Gaps(),
	}
	if q.Ping {
		cq.pageSize = 0
		cq.slice = &predicate.Slice{Limit: 1}
	}
	return cq, nil
}

// Kind returns the entity kind the query returns.
func (q *CompiledQuery) Kind() graph.Kind { return q.kind }

// Types returns the labels or relationship types the query is scoped to.
func (q *CompiledQuery) Types() []string { return append([]string(nil), q.types...) }

// Gaps lists predicate kinds that were skipped for lack of a compiler.
func (q *CompiledQuery) Gaps() []predicate.Kind { return append([]predicate.Kind(nil), q.gaps...) }

// Page returns the current page index.
func (q *CompiledQuery) Page() int { return q.page }

// PageSize implements stream.Pageable.
func (q *CompiledQuery) PageSize() int { return q.pageSize }

// AdvancePage implements stream.Pageable.
func (q *CompiledQuery) AdvancePage() { q.page++ }

// Parameters implements stream.Pageable. The map is a copy.
func (q *CompiledQuery) Parameters() map[string]any { return maps.Clone(q.params) }

// Statement implements stream.Pageable: the full statement for the current
// page.
func (q *CompiledQuery) Statement() string {
	var sb strings.Builder
	wrap := q.needsWrapper()
	q.writeBody(&sb, wrap)
	if wrap {
		sb.WriteString(q.returnVar())
	}
	if order := q.orderBy(); order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}
	sb.WriteString(q.window())
	return sb.String()
}

// CountStatement counts every match of the WHERE clause, ignoring sort and
// slice.
func (q *CompiledQuery) CountStatement() string {
	v := q.returnVar()
	var sb strings.Builder
	if len(q.types) > 1 {
		q.writeBody(&sb, true)
		fmt.Fprintf(&sb, "count(%s) AS count", v)
		return sb.String()
	}
	q.writeBranch(&sb, q.scope())
	if q.kind == graph.KindRelationship {
		fmt.Fprintf(&sb, " RETURN count(DISTINCT %s) AS count", v)
	} else {
		fmt.Fprintf(&sb, " RETURN count(%s) AS count", v)
	}
	return sb.String()
}

// Fingerprint hashes the canonical form of the current statement and
// parameters. Equal fingerprints mean byte-identical statements with equal
// parameters.
func (q *CompiledQuery) Fingerprint() (string, error) {
	return value.Fingerprint(value.DomainStatement, map[string]any{
		"statement":  q.Statement(),
		"parameters": q.params,
	})
}

func (q *CompiledQuery) returnVar() string {
	if q.kind == graph.KindRelationship {
		return cypher.RelationshipVar
	}
	return cypher.NodeVar
}

// needsWrapper reports whether a UNION must be wrapped in CALL so ORDER BY
// and paging apply to the union instead of its last branch.
func (q *CompiledQuery) needsWrapper() bool {
	return len(q.types) > 1 && (q.sort != nil || q.window() != "")
}

// writeBody writes one branch per type joined with UNION. When wrap is set
// the union is enclosed in CALL { ... } and the text ends with the outer
// RETURN keyword; the caller writes the projection.
func (q *CompiledQuery) writeBody(sb *strings.Builder, wrap bool) {
	scopes := q.scopes()
	if wrap {
		sb.WriteString("CALL { ")
	}
	for i, scope := range scopes {
		if i > 0 {
			sb.WriteString(" UNION ")
		}
		q.writeBranch(sb, scope)
		sb.WriteString(q.returnClause())
	}
	if wrap {
		sb.WriteString(" } RETURN ")
	}
}

func (q *CompiledQuery) returnClause() string {
	if q.kind == graph.KindRelationship {
		return " RETURN DISTINCT " + cypher.RelationshipVar
	}
	return " RETURN " + cypher.NodeVar
}

// scopes returns the type scoping of each branch; "" means unscoped.
func (q *CompiledQuery) scopes() []string {
	if len(q.types) == 0 {
		return []string{""}
	}
	return q.types
}

func (q *CompiledQuery) scope() string {
	if len(q.types) == 1 {
		return q.types[0]
	}
	return ""
}

// writeBranch writes MATCH and WHERE for one type scope.
func (q *CompiledQuery) writeBranch(sb *strings.Builder, scope string) {
	sb.WriteString("MATCH ")
	if q.kind == graph.KindRelationship {
		rel := cypher.RelationshipVar
		if scope != "" {
			rel += ":" + cypher.Quote(scope)
		}
		fmt.Fprintf(sb, "(%s%s)-[%s]->(%s%s)",
			cypher.StartVar, cypher.Labels(q.tenant), rel, cypher.EndVar, cypher.Labels(q.tenant))
	} else {
		fmt.Fprintf(sb, "(%s%s)", cypher.NodeVar, cypher.Labels(scope, q.tenant))
	}
	if q.where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(q.where)
	}
}

func (q *CompiledQuery) orderBy() string {
	if q.sort == nil {
		return ""
	}
	expr := q.returnVar() + "." + cypher.Quote(q.sort.Key)
	if q.sort.Kind == predicate.SortNumeric {
		expr = "coalesce(" + expr + ", " + missingNumber + ")"
	}
	if q.sort.Descending {
		expr += " DESC"
	}
	return expr
}

// window renders SKIP and LIMIT for the current page, combining the page
// with the caller's slice.
func (q *CompiledQuery) window() string {
	skip, limit := 0, 0
	if q.slice != nil {
		skip, limit = q.slice.Skip, q.slice.Limit
	}

	if q.pageSize > 0 {
		offset := q.page * q.pageSize
		size := q.pageSize
		if limit > 0 {
			size = max(min(size, limit-offset), 0)
		}
		skip, limit = skip+offset, size
		return " SKIP " + strconv.Itoa(skip) + " LIMIT " + strconv.Itoa(limit)
	}

	var out string
	if skip > 0 {
		out += " SKIP " + strconv.Itoa(skip)
	}
	if limit > 0 {
		out += " LIMIT " + strconv.Itoa(limit)
	}
	return out
}
