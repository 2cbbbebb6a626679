package predicate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/graphgate/internal/graph"
)

// wireQuery is the JSON form of a Query accepted by the CLI.
//
//	{
//	  "where": {"kind": "group", "or": false, "children": [
//	    {"kind": "type", "types": ["Person"]},
//	    {"kind": "exact", "key": "name", "value": "Alice"}
//	  ]},
//	  "sort": {"key": "age", "numeric": true},
//	  "slice": {"skip": 0, "limit": 10}
//	}
type wireQuery struct {
	Where *wirePredicate `json:"where"`
	Sort  *wireSort      `json:"sort,omitempty"`
	Slice *wireSlice     `json:"slice,omitempty"`
	Ping  bool           `json:"ping,omitempty"`
}

type wireSort struct {
	Key        string `json:"key"`
	Numeric    bool   `json:"numeric,omitempty"`
	Descending bool   `json:"descending,omitempty"`
}

type wireSlice struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

type wirePredicate struct {
	Kind            string           `json:"kind"`
	Key             string           `json:"key,omitempty"`
	Value           any              `json:"value,omitempty"`
	Op              string           `json:"op,omitempty"`
	CaseInsensitive bool             `json:"case_insensitive,omitempty"`
	From            any              `json:"from,omitempty"`
	To              any              `json:"to,omitempty"`
	IncludeFrom     bool             `json:"include_from,omitempty"`
	IncludeTo       bool             `json:"include_to,omitempty"`
	Text            string           `json:"text,omitempty"`
	LatitudeKey     string           `json:"latitude_key,omitempty"`
	LongitudeKey    string           `json:"longitude_key,omitempty"`
	Latitude        float64          `json:"latitude,omitempty"`
	Longitude       float64          `json:"longitude,omitempty"`
	Distance        float64          `json:"distance,omitempty"`
	Types           []string         `json:"types,omitempty"`
	IDs             []int64          `json:"ids,omitempty"`
	Type            string           `json:"type,omitempty"`
	Direction       string           `json:"direction,omitempty"`
	OtherIDs        []int64          `json:"other_ids,omitempty"`
	StartIDs        []int64          `json:"start_ids,omitempty"`
	EndIDs          []int64          `json:"end_ids,omitempty"`
	Children        []*wirePredicate `json:"children,omitempty"`
	Or              bool             `json:"or,omitempty"`
	Child           *wirePredicate   `json:"child,omitempty"`
}

// DecodeQuery parses the JSON form of a Query. Numbers that are integral
// decode as int64, all others as float64.
func DecodeQuery(data []byte) (*Query, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var w wireQuery
	if err := dec.Decode(&w); err != nil {
		return nil, graph.WrapError(graph.ErrCodeInvalidPredicate, "decode query", err)
	}

	q := &Query{Ping: w.Ping}
	if w.Where != nil {
		p, err := w.Where.toPredicate()
		if err != nil {
			return nil, err
		}
		q.Where = p
	}
	if w.Sort != nil {
		q.Sort = &Sort{Key: w.Sort.Key, Descending: w.Sort.Descending}
		if w.Sort.Numeric {
			q.Sort.Kind = SortNumeric
		}
	}
	if w.Slice != nil {
		q.Slice = &Slice{Skip: w.Slice.Skip, Limit: w.Slice.Limit}
	}
	return q, nil
}

func (w *wirePredicate) toPredicate() (Predicate, error) {
	switch w.Kind {
	case "exact":
		return &Exact{Key: w.Key, Value: jsonValue(w.Value), Op: Op(w.Op), CaseInsensitive: w.CaseInsensitive}, nil
	case "range":
		return &Range{Key: w.Key, From: jsonValue(w.From), To: jsonValue(w.To), IncludeFrom: w.IncludeFrom, IncludeTo: w.IncludeTo}, nil
	case "fulltext":
		return &FullText{Key: w.Key, Text: w.Text}, nil
	case "spatial":
		return &Spatial{
			LatitudeKey:  w.LatitudeKey,
			LongitudeKey: w.LongitudeKey,
			Latitude:     w.Latitude,
			Longitude:    w.Longitude,
			Distance:     w.Distance,
		}, nil
	case "array_contains":
		return &ArrayContains{Key: w.Key, Value: jsonValue(w.Value), Op: Op(w.Op)}, nil
	case "type":
		return &TypeFilter{Types: w.Types}, nil
	case "identity":
		return &IdentityFilter{IDs: w.IDs}, nil
	case "relationship":
		dir, err := parseDirection(w.Direction)
		if err != nil {
			return nil, err
		}
		return &RelationshipFilter{
			Type:      w.Type,
			Direction: dir,
			OtherIDs:  w.OtherIDs,
			StartIDs:  w.StartIDs,
			EndIDs:    w.EndIDs,
		}, nil
	case "group":
		g := &Group{Or: w.Or}
		for i, child := range w.Children {
			if child == nil {
				return nil, graph.NewError(graph.ErrCodeInvalidPredicate, fmt.Sprintf("group child %d is null", i))
			}
			p, err := child.toPredicate()
			if err != nil {
				return nil, err
			}
			g.Children = append(g.Children, p)
		}
		return g, nil
	case "not":
		if w.Child == nil {
			return nil, graph.NewError(graph.ErrCodeInvalidPredicate, "not without child")
		}
		p, err := w.Child.toPredicate()
		if err != nil {
			return nil, err
		}
		return &Not{Child: p}, nil
	case "empty":
		return &Empty{Key: w.Key}, nil
	case "not_empty":
		return &NotEmpty{Key: w.Key}, nil
	default:
		return nil, graph.NewError(graph.ErrCodeInvalidPredicate, fmt.Sprintf("unknown predicate kind %q", w.Kind))
	}
}

func parseDirection(s string) (graph.Direction, error) {
	switch s {
	case "", "both":
		return graph.DirectionBoth, nil
	case "out", "outgoing":
		return graph.DirectionOutgoing, nil
	case "in", "incoming":
		return graph.DirectionIncoming, nil
	}
	return graph.DirectionBoth, graph.NewError(graph.ErrCodeInvalidPredicate, fmt.Sprintf("unknown direction %q", s))
}

// jsonValue converts json.Number (and numbers nested in arrays) into int64
// or float64.
func jsonValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = jsonValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = jsonValue(elem)
		}
		return out
	}
	return v
}
