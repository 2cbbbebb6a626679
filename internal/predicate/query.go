package predicate

// SortKind selects how a sort key is compared.
type SortKind int

const (
	// SortString compares the property directly.
	SortString SortKind = iota
	// SortNumeric compares through a coalesce sentinel so entities missing
	// the property still sort deterministically.
	SortNumeric
)

// Sort orders results by one property.
type Sort struct {
	Key        string
	Kind       SortKind
	Descending bool
}

// Slice limits results to a window. A zero Limit means unbounded.
type Slice struct {
	Skip  int
	Limit int
}

// Query is a predicate tree plus presentation options.
//
// Ping marks a lightweight existence check: the index fetches at most one
// row and never admits new wrappers into the identity cache for it.
type Query struct {
	Where Predicate
	Sort  *Sort
	Slice *Slice
	Ping  bool
}

// NewQuery wraps a predicate in a Query with no sort or slice.
func NewQuery(where Predicate) *Query {
	return &Query{Where: where}
}

// OrderBy sets a string sort key and returns q for chaining.
func (q *Query) OrderBy(key string, descending bool) *Query {
	q.Sort = &Sort{Key: key, Kind: SortString, Descending: descending}
	return q
}

// OrderByNumber sets a numeric sort key and returns q for chaining.
func (q *Query) OrderByNumber(key string, descending bool) *Query {
	q.Sort = &Sort{Key: key, Kind: SortNumeric, Descending: descending}
	return q
}

// Window sets skip and limit and returns q for chaining.
func (q *Query) Window(skip, limit int) *Query {
	q.Slice = &Slice{Skip: skip, Limit: limit}
	return q
}
