package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/graphgate/internal/entity"
	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/predicate"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Kind  string // "node" | "relationship"
	Count bool
}

// QueryResult is the output of the query command.
type QueryResult struct {
	Kind          string             `json:"kind"`
	Count         *int64             `json:"count,omitempty"`
	Nodes         []NodeView         `json:"nodes,omitempty"`
	Relationships []RelationshipView `json:"relationships,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <query.json|->",
		Short: "Run a JSON query against the database",
		Long: `Compile a JSON predicate query and run it against the configured
database, fetching results page by page.

Example:
  graphgate query --config ./graphgate.yaml ./people.json
  graphgate query --kind relationship --count ./knows.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Kind, "kind", "k", "node", "entity kind (node|relationship)")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the number of matches instead of the matches")

	return cmd
}

func runQuery(opts *QueryOptions, source string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	kind, err := parseKind(opts.Kind)
	if err != nil {
		return formatter.Fail("invalid --kind", err)
	}
	q, err := readQuery(source, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail("reading query", err)
	}
	if err := predicate.Validate(q); err != nil {
		return formatter.Fail("invalid query", err)
	}

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return formatter.Fail("connecting", err)
	}
	defer s.Close(ctx)

	var result QueryResult
	err = s.graph.Run(ctx, s.opener, func(ctx context.Context, tx *entity.Tx) error {
		result = QueryResult{Kind: kind.String()}

		if opts.Count {
			var n int64
			var err error
			if kind == graph.KindNode {
				n, err = s.nodes.Count(ctx, tx, q)
			} else {
				n, err = s.relationships.Count(ctx, tx, q)
			}
			if err != nil {
				return err
			}
			result.Count = &n
			return nil
		}

		if kind == graph.KindNode {
			return collectNodes(ctx, s, tx, q, &result)
		}
		return collectRelationships(ctx, s, tx, q, &result)
	})
	if err != nil {
		return formatter.Fail("running query", err)
	}

	formatter.VerboseLog("Matched %d %s(s)", len(result.Nodes)+len(result.Relationships), result.Kind)
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(result.String())
}

func collectNodes(ctx context.Context, s *session, tx *entity.Tx, q *predicate.Query, result *QueryResult) error {
	st, err := s.nodes.Query(ctx, tx, q)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	for st.Next(ctx) {
		v, err := viewNode(ctx, tx, st.Value())
		if err != nil {
			return err
		}
		result.Nodes = append(result.Nodes, v)
	}
	return st.Err()
}

func collectRelationships(ctx context.Context, s *session, tx *entity.Tx, q *predicate.Query, result *QueryResult) error {
	st, err := s.relationships.Query(ctx, tx, q)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	for st.Next(ctx) {
		v, err := viewRelationship(ctx, tx, st.Value())
		if err != nil {
			return err
		}
		result.Relationships = append(result.Relationships, v)
	}
	return st.Err()
}

// String renders the result for text output.
func (r QueryResult) String() string {
	switch {
	case r.Count != nil:
		return fmt.Sprintf("%d", *r.Count)
	case len(r.Nodes) > 0:
		return lines(r.Nodes)
	case len(r.Relationships) > 0:
		return lines(r.Relationships)
	default:
		return "No matches"
	}
}
