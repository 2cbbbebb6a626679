package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/graphgate/internal/entity"
	"github.com/roach88/graphgate/internal/graph"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Relationship bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Look up a node or relationship by identity",
		Long: `Fetch one node (or, with --relationship, one relationship) by its
database identity. Exits with status 1 when it does not exist or is
outside the configured tenant.

Example:
  graphgate get 42
  graphgate get --relationship 7 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Relationship, "relationship", "r", false, "look up a relationship instead of a node")

	return cmd
}

func runGet(opts *GetOptions, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		_ = formatter.Error("INVALID_ID", "identity must be an integer: "+arg, nil)
		return WrapExitError(ExitCommandError, "parsing identity", err)
	}

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return formatter.Fail("connecting", err)
	}
	defer s.Close(ctx)

	var view any
	err = s.graph.Run(ctx, s.opener, func(ctx context.Context, tx *entity.Tx) error {
		if opts.Relationship {
			r, err := tx.Relationship(ctx, id)
			if err != nil {
				return err
			}
			view, err = viewRelationship(ctx, tx, r)
			return err
		}
		n, err := tx.Node(ctx, id)
		if err != nil {
			return err
		}
		view, err = viewNode(ctx, tx, n)
		return err
	})
	if err != nil {
		kind := graph.KindNode
		if opts.Relationship {
			kind = graph.KindRelationship
		}
		return formatter.Fail("getting "+kind.String(), err)
	}

	return formatter.Success(view)
}
