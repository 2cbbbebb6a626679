// Package testutil provides test doubles for graphgate.
//
// MemGraph is an in-memory graph that answers the fixed entity statements
// produced by the cypher package (fetch by id, set properties, delete,
// create, adjacency). Compiled index queries carry arbitrary WHERE clauses
// and are answered from canned rows registered with OnNodes,
// OnRelationships and OnScalar; a trailing "SKIP x" and/or "LIMIT y" is
// applied to the canned rows so paging behaves like a real server.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/graphgate/internal/transport"
	"github.com/roach88/graphgate/internal/value"
)

// Call records one transport call.
type Call struct {
	Method    string
	Statement string
	Params    map[string]any
}

// Transport method names recorded in Call.Method.
const (
	MethodFetchNodes         = "FetchNodes"
	MethodFetchRelationships = "FetchRelationships"
	MethodFetchScalar        = "FetchScalar"
	MethodExec               = "Exec"
)

type memNode struct {
	labels []string
	props  map[string]any
}

type memRel struct {
	relType string
	start   int64
	end     int64
	props   map[string]any
}

type memState struct {
	nodes map[int64]*memNode
	rels  map[int64]*memRel
}

func newMemState() *memState {
	return &memState{nodes: make(map[int64]*memNode), rels: make(map[int64]*memRel)}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for id, n := range s.nodes {
		out.nodes[id] = &memNode{labels: slices.Clone(n.labels), props: cloneProps(n.props)}
	}
	for id, r := range s.rels {
		out.rels[id] = &memRel{relType: r.relType, start: r.start, end: r.end, props: cloneProps(r.props)}
	}
	return out
}

type canned struct {
	nodes []transport.RawNode
	rels  []transport.RawRelationship
	rows  []transport.RawRow
}

// MemGraph is an in-memory Transport and Opener. Calls made directly on it
// auto-commit; Begin returns a MemTx working on a private copy that replaces
// the committed state on Commit.
//
// Thread-safety: all methods are safe for concurrent use.
type MemGraph struct {
	mu        sync.Mutex
	state     *memState
	nodeIDs   *IDSequence
	relIDs    *IDSequence
	canned    map[string]canned
	calls     []Call
	failures  []error
	commits   int
	rollbacks int
}

var (
	_ transport.Transport = (*MemGraph)(nil)
	_ transport.Opener    = (*MemGraph)(nil)
	_ transport.Transport = (*MemTx)(nil)
	_ transport.Committer = (*MemTx)(nil)
)

// NewMemGraph returns an empty graph. Identities start at 1.
func NewMemGraph() *MemGraph {
	return &MemGraph{
		state:   newMemState(),
		nodeIDs: NewIDSequence(1),
		relIDs:  NewIDSequence(1),
		canned:  make(map[string]canned),
	}
}

// AddNode stores a committed node and returns its identity.
func (g *MemGraph) AddNode(labels []string, props map[string]any) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nodeIDs.Next()
	g.state.nodes[id] = &memNode{labels: slices.Clone(labels), props: cloneProps(value.NormalizeMap(props))}
	return id
}

// AddRelationship stores a committed relationship and returns its identity.
func (g *MemGraph) AddRelationship(start, end int64, relType string, props map[string]any) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.relIDs.Next()
	g.state.rels[id] = &memRel{relType: relType, start: start, end: end, props: cloneProps(value.NormalizeMap(props))}
	return id
}

// RemoveNode deletes a committed node and its relationships, as a
// concurrent writer would.
func (g *MemGraph) RemoveNode(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for rid, r := range g.state.rels {
		if r.start == id || r.end == id {
			delete(g.state.rels, rid)
		}
	}
	delete(g.state.nodes, id)
}

// SetNodeProperty changes a committed node property, as a concurrent
// writer would.
func (g *MemGraph) SetNodeProperty(id int64, key string, v any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.state.nodes[id]; ok {
		n.props[key] = value.Normalize(v)
	}
}

// NodeProperties returns a copy of a committed node's properties.
func (g *MemGraph) NodeProperties(id int64) (map[string]any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.state.nodes[id]
	if !ok {
		return nil, false
	}
	return cloneProps(n.props), true
}

// HasNode reports whether a committed node exists.
func (g *MemGraph) HasNode(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.state.nodes[id]
	return ok
}

// HasRelationship reports whether a committed relationship exists.
func (g *MemGraph) HasRelationship(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.state.rels[id]
	return ok
}

// OnNodes answers statement with rows.
func (g *MemGraph) OnNodes(statement string, rows ...transport.RawNode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canned[statement] = canned{nodes: rows}
}

// OnRelationships answers statement with rows.
func (g *MemGraph) OnRelationships(statement string, rows ...transport.RawRelationship) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canned[statement] = canned{rels: rows}
}

// OnScalar answers statement with rows.
func (g *MemGraph) OnScalar(statement string, rows ...transport.RawRow) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canned[statement] = canned{rows: rows}
}

// FailNext makes the next len(errs) calls fail with errs in order.
func (g *MemGraph) FailNext(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, errs...)
}

// Calls returns every call recorded so far.
func (g *MemGraph) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

// CallCount returns how many calls used method.
func (g *MemGraph) CallCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls.
func (g *MemGraph) ResetCalls() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = nil
}

// Commits returns how many MemTx were committed.
func (g *MemGraph) Commits() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.commits
}

// Rollbacks returns how many MemTx were rolled back.
func (g *MemGraph) Rollbacks() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rollbacks
}

// Begin implements transport.Opener.
func (g *MemGraph) Begin(ctx context.Context) (transport.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return &MemTx{g: g, state: g.state.clone()}, nil
}

// FetchNodes implements transport.Transport.
func (g *MemGraph) FetchNodes(ctx context.Context, statement string, params map[string]any) (transport.Cursor[transport.RawNode], error) {
	res, err := g.handle(ctx, nil, MethodFetchNodes, statement, params)
	if err != nil {
		return nil, err
	}
	return transport.NewSliceCursor(res.nodes), nil
}

// FetchRelationships implements transport.Transport.
func (g *MemGraph) FetchRelationships(ctx context.Context, statement string, params map[string]any) (transport.Cursor[transport.RawRelationship], error) {
	res, err := g.handle(ctx, nil, MethodFetchRelationships, statement, params)
	if err != nil {
		return nil, err
	}
	return transport.NewSliceCursor(res.rels), nil
}

// FetchScalar implements transport.Transport.
func (g *MemGraph) FetchScalar(ctx context.Context, statement string, params map[string]any) (transport.Cursor[transport.RawRow], error) {
	res, err := g.handle(ctx, nil, MethodFetchScalar, statement, params)
	if err != nil {
		return nil, err
	}
	return transport.NewSliceCursor(res.rows), nil
}

// Exec implements transport.Transport.
func (g *MemGraph) Exec(ctx context.Context, statement string, params map[string]any) (transport.Summary, error) {
	res, err := g.handle(ctx, nil, MethodExec, statement, params)
	if err != nil {
		return transport.Summary{}, err
	}
	return res.summary, nil
}

// MemTx is a MemGraph transaction.
type MemTx struct {
	g     *MemGraph
	state *memState
	done  bool
}

// FetchNodes implements transport.Transport.
func (t *MemTx) FetchNodes(ctx context.Context, statement string, params map[string]any) (transport.Cursor[transport.RawNode], error) {
	res, err := t.g.handle(ctx, t, MethodFetchNodes, statement, params)
	if err != nil {
		return nil, err
	}
	return transport.NewSliceCursor(res.nodes), nil
}

// FetchRelationships implements transport.Transport.
func (t *MemTx) FetchRelationships(ctx context.Context, statement string, params map[string]any) (transport.Cursor[transport.RawRelationship], error) {
	res, err := t.g.handle(ctx, t, MethodFetchRelationships, statement, params)
	if err != nil {
		return nil, err
	}
	return transport.NewSliceCursor(res.rels), nil
}

// FetchScalar implements transport.Transport.
func (t *MemTx) FetchScalar(ctx context.Context, statement string, params map[string]any) (transport.Cursor[transport.RawRow], error) {
	res, err := t.g.handle(ctx, t, MethodFetchScalar, statement, params)
	if err != nil {
		return nil, err
	}
	return transport.NewSliceCursor(res.rows), nil
}

// Exec implements transport.Transport.
func (t *MemTx) Exec(ctx context.Context, statement string, params map[string]any) (transport.Summary, error) {
	res, err := t.g.handle(ctx, t, MethodExec, statement, params)
	if err != nil {
		return transport.Summary{}, err
	}
	return res.summary, nil
}

// Commit replaces the graph's committed state with the transaction's.
func (t *MemTx) Commit(context.Context) error {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	if t.done {
		return errors.New("memgraph: transaction already finished")
	}
	t.done = true
	t.g.state = t.state
	t.g.commits++
	return nil
}

// Rollback discards the transaction's changes.
func (t *MemTx) Rollback(context.Context) error {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	if t.done {
		return errors.New("memgraph: transaction already finished")
	}
	t.done = true
	t.g.rollbacks++
	return nil
}

type result struct {
	nodes   []transport.RawNode
	rels    []transport.RawRelationship
	rows    []transport.RawRow
	summary transport.Summary
}

const ident = "`(?:[^`]|``)*`"

var (
	labelsPattern = "((?::" + ident + ")*)"
	relPattern    = `\(s` + labelsPattern + `\)-\[r\]->\(t` + labelsPattern + `\) WHERE id\(r\) = \$id `

	reNodeByID    = regexp.MustCompile(`^MATCH \(n` + labelsPattern + `\) WHERE id\(n\) = \$id RETURN n$`)
	reSetNode     = regexp.MustCompile(`^MATCH \(n` + labelsPattern + `\) WHERE id\(n\) = \$id SET n \+= \$props$`)
	reDeleteNode  = regexp.MustCompile(`^MATCH \(n` + labelsPattern + `\) WHERE id\(n\) = \$id (DETACH )?DELETE n$`)
	reCreateNode  = regexp.MustCompile(`^CREATE \(n` + labelsPattern + `\) SET n = \$props RETURN n$`)
	reRelByID     = regexp.MustCompile(`^MATCH ` + relPattern + `RETURN r$`)
	reSetRel      = regexp.MustCompile(`^MATCH ` + relPattern + `SET r \+= \$props$`)
	reDeleteRel   = regexp.MustCompile(`^MATCH ` + relPattern + `DELETE r$`)
	reCreateRel   = regexp.MustCompile(`^MATCH \(s` + labelsPattern + `\), \(t` + labelsPattern + `\) WHERE id\(s\) = \$start AND id\(t\) = \$end CREATE \(s\)-\[r:(` + ident + `)\]->\(t\) SET r = \$props RETURN r$`)
	reAdjacent    = regexp.MustCompile(`^MATCH \(n` + labelsPattern + `\)(-|<-)\[r(?::(` + ident + `))?\](->|-)\(m` + labelsPattern + `\) WHERE id\(n\) = \$id RETURN DISTINCT r ORDER BY id\(r\)$`)
	rePaging      = regexp.MustCompile(`^(.*?)(?: SKIP (\d+))?(?: LIMIT (\d+))?$`)
	reIdentifiers = regexp.MustCompile(ident)
)

func (g *MemGraph) handle(ctx context.Context, tx *MemTx, method, statement string, params map[string]any) (result, error) {
	if err := ctx.Err(); err != nil {
		return result{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, Call{Method: method, Statement: statement, Params: params})
	if len(g.failures) > 0 {
		err := g.failures[0]
		g.failures = g.failures[1:]
		return result{}, err
	}

	state := g.state
	if tx != nil {
		if tx.done {
			return result{}, errors.New("memgraph: transaction already finished")
		}
		state = tx.state
	}

	if res, ok := g.cannedResult(statement); ok {
		return res, nil
	}
	return g.evaluate(state, statement, params)
}

func (g *MemGraph) cannedResult(statement string) (result, bool) {
	if c, ok := g.canned[statement]; ok {
		return result{nodes: c.nodes, rels: c.rels, rows: c.rows}, true
	}

	m := rePaging.FindStringSubmatch(statement)
	if m == nil || (m[2] == "" && m[3] == "") {
		return result{}, false
	}
	c, ok := g.canned[m[1]]
	if !ok {
		return result{}, false
	}
	skip, limit := 0, -1
	if m[2] != "" {
		skip, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		limit, _ = strconv.Atoi(m[3])
	}
	return result{
		nodes: window(c.nodes, skip, limit),
		rels:  window(c.rels, skip, limit),
		rows:  window(c.rows, skip, limit),
	}, true
}

// window applies SKIP and LIMIT; a negative limit means unbounded.
func window[T any](rows []T, skip, limit int) []T {
	lo := min(skip, len(rows))
	if limit < 0 {
		return rows[lo:]
	}
	hi := min(lo+limit, len(rows))
	return rows[lo:hi]
}

func (g *MemGraph) evaluate(s *memState, statement string, params map[string]any) (result, error) {
	if m := reNodeByID.FindStringSubmatch(statement); m != nil {
		id := int64Param(params, "id")
		n, ok := s.nodes[id]
		if !ok || !hasLabels(n.labels, parseLabels(m[1])) {
			return result{}, nil
		}
		return result{nodes: []transport.RawNode{rawNode(id, n)}}, nil
	}

	if m := reSetNode.FindStringSubmatch(statement); m != nil {
		id := int64Param(params, "id")
		n, ok := s.nodes[id]
		if !ok || !hasLabels(n.labels, parseLabels(m[1])) {
			return result{}, nil
		}
		return result{summary: transport.Summary{PropertiesSet: merge(n.props, params["props"])}}, nil
	}

	if m := reDeleteNode.FindStringSubmatch(statement); m != nil {
		id := int64Param(params, "id")
		n, ok := s.nodes[id]
		if !ok || !hasLabels(n.labels, parseLabels(m[1])) {
			return result{}, nil
		}
		var incident []int64
		for rid, r := range s.rels {
			if r.start == id || r.end == id {
				incident = append(incident, rid)
			}
		}
		if len(incident) > 0 && m[2] == "" {
			return result{}, fmt.Errorf("memgraph: cannot delete node %d, it still has relationships", id)
		}
		for _, rid := range incident {
			delete(s.rels, rid)
		}
		delete(s.nodes, id)
		return result{summary: transport.Summary{NodesDeleted: 1, RelationshipsDeleted: len(incident)}}, nil
	}

	if m := reCreateNode.FindStringSubmatch(statement); m != nil {
		id := g.nodeIDs.Next()
		n := &memNode{labels: parseLabels(m[1]), props: make(map[string]any)}
		set := merge(n.props, params["props"])
		s.nodes[id] = n
		return result{
			nodes:   []transport.RawNode{rawNode(id, n)},
			summary: transport.Summary{NodesCreated: 1, PropertiesSet: set},
		}, nil
	}

	if m := reRelByID.FindStringSubmatch(statement); m != nil {
		id := int64Param(params, "id")
		r, ok := matchRel(s, id, m[1], m[2])
		if !ok {
			return result{}, nil
		}
		return result{rels: []transport.RawRelationship{rawRel(id, r)}}, nil
	}

	if m := reSetRel.FindStringSubmatch(statement); m != nil {
		r, ok := matchRel(s, int64Param(params, "id"), m[1], m[2])
		if !ok {
			return result{}, nil
		}
		return result{summary: transport.Summary{PropertiesSet: merge(r.props, params["props"])}}, nil
	}

	if m := reDeleteRel.FindStringSubmatch(statement); m != nil {
		id := int64Param(params, "id")
		if _, ok := matchRel(s, id, m[1], m[2]); !ok {
			return result{}, nil
		}
		delete(s.rels, id)
		return result{summary: transport.Summary{RelationshipsDeleted: 1}}, nil
	}

	if m := reCreateRel.FindStringSubmatch(statement); m != nil {
		start, end := int64Param(params, "start"), int64Param(params, "end")
		sn, ok1 := s.nodes[start]
		en, ok2 := s.nodes[end]
		if !ok1 || !ok2 || !hasLabels(sn.labels, parseLabels(m[1])) || !hasLabels(en.labels, parseLabels(m[2])) {
			return result{}, nil
		}
		id := g.relIDs.Next()
		r := &memRel{relType: unquote(m[3]), start: start, end: end, props: make(map[string]any)}
		set := merge(r.props, params["props"])
		s.rels[id] = r
		return result{
			rels:    []transport.RawRelationship{rawRel(id, r)},
			summary: transport.Summary{RelationshipsCreated: 1, PropertiesSet: set},
		}, nil
	}

	if m := reAdjacent.FindStringSubmatch(statement); m != nil {
		id := int64Param(params, "id")
		n, ok := s.nodes[id]
		tenant := parseLabels(m[1])
		if !ok || !hasLabels(n.labels, tenant) {
			return result{}, nil
		}
		outgoing, incoming := m[2] == "-" && m[4] == "->", m[2] == "<-"
		relType := ""
		if m[3] != "" {
			relType = unquote(m[3])
		}

		var ids []int64
		for rid, r := range s.rels {
			if relType != "" && r.relType != relType {
				continue
			}
			var other int64
			switch {
			case outgoing && r.start == id:
				other = r.end
			case incoming && r.end == id:
				other = r.start
			case !outgoing && !incoming && r.start == id:
				other = r.end
			case !outgoing && !incoming && r.end == id:
				other = r.start
			default:
				continue
			}
			if o, ok := s.nodes[other]; !ok || !hasLabels(o.labels, parseLabels(m[5])) {
				continue
			}
			ids = append(ids, rid)
		}
		slices.Sort(ids)

		rels := make([]transport.RawRelationship, 0, len(ids))
		for _, rid := range ids {
			rels = append(rels, rawRel(rid, s.rels[rid]))
		}
		return result{rels: rels}, nil
	}

	return result{}, fmt.Errorf("memgraph: unsupported statement: %s", statement)
}

func matchRel(s *memState, id int64, startLabels, endLabels string) (*memRel, bool) {
	r, ok := s.rels[id]
	if !ok {
		return nil, false
	}
	sn, ok1 := s.nodes[r.start]
	en, ok2 := s.nodes[r.end]
	if !ok1 || !ok2 || !hasLabels(sn.labels, parseLabels(startLabels)) || !hasLabels(en.labels, parseLabels(endLabels)) {
		return nil, false
	}
	return r, true
}

// merge applies a property map, removing keys whose value is nil. It
// returns the number of properties written.
func merge(dst map[string]any, props any) int {
	m, _ := props.(map[string]any)
	for k, v := range m {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = value.Clone(value.Normalize(v))
	}
	return len(m)
}

func rawNode(id int64, n *memNode) transport.RawNode {
	return transport.RawNode{ID: id, Labels: slices.Clone(n.labels), Properties: cloneProps(n.props)}
}

func rawRel(id int64, r *memRel) transport.RawRelationship {
	return transport.RawRelationship{ID: id, StartID: r.start, EndID: r.end, Type: r.relType, Properties: cloneProps(r.props)}
}

func cloneProps(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = value.Clone(v)
	}
	return out
}

func parseLabels(s string) []string {
	var out []string
	for _, q := range reIdentifiers.FindAllString(s, -1) {
		out = append(out, unquote(q))
	}
	return out
}

func unquote(q string) string {
	return strings.ReplaceAll(q[1:len(q)-1], "``", "`")
}

func hasLabels(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}
	return true
}

func int64Param(params map[string]any, name string) int64 {
	switch v := params[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return -1
	}
}
