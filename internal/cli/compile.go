package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/graphgate/internal/config"
	"github.com/roach88/graphgate/internal/cypher"
	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/index"
	"github.com/roach88/graphgate/internal/predicate"
	"github.com/roach88/graphgate/internal/value"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Kind     string // "node" | "relationship"
	Tenant   string
	PageSize int
	Strict   bool
	Output   string // output file path
}

// CompilationResult is a compiled query as printed by the compile command.
type CompilationResult struct {
	Kind           string         `json:"kind"`
	Statement      string         `json:"statement"`
	CountStatement string         `json:"count_statement"`
	Parameters     map[string]any `json:"parameters"`
	Types          []string       `json:"types,omitempty"`
	Gaps           []string       `json:"gaps,omitempty"`
	Fingerprint    string         `json:"fingerprint"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query.json|->",
		Short: "Compile a JSON query to Cypher",
		Long: `Compile a JSON predicate query to a parameterized Cypher statement
without contacting the database.

The statement shown is the first page; later pages differ only in SKIP.

Example:
  graphgate compile ./people.json
  echo '{"where":{"kind":"type","types":["Person"]}}' | graphgate compile -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Kind, "kind", "k", "node", "entity kind (node|relationship)")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant label (overrides config)")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "page size, negative for unpaged (overrides config)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on predicates with no compiler (overrides config)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, source string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	kind, err := parseKind(opts.Kind)
	if err != nil {
		return formatter.Fail("invalid --kind", err)
	}
	q, err := readQuery(source, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail("reading query", err)
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return formatter.Fail("loading config", err)
	}

	flags := cmd.Flags()
	if flags.Changed("tenant") {
		cfg.Tenant = opts.Tenant
	}
	if flags.Changed("page-size") {
		cfg.PageSize = opts.PageSize
	}
	if flags.Changed("strict") {
		cfg.StrictCompile = opts.Strict
	}

	compiler := cypher.NewCompiler(cfg.Compiler())
	var cq *index.CompiledQuery
	if kind == graph.KindNode {
		cq, err = index.NewNodeIndex(compiler, cfg.Index()).Compile(cfg.Tenant, q)
	} else {
		cq, err = index.NewRelationshipIndex(compiler, cfg.Index()).Compile(cfg.Tenant, q)
	}
	if err != nil {
		return formatter.Fail("compiling query", err)
	}

	result, err := compilationResult(cq)
	if err != nil {
		return formatter.Fail("fingerprinting query", err)
	}
	for _, gap := range result.Gaps {
		formatter.VerboseLog("No compiler for %s predicate; filter dropped", gap)
	}

	if opts.Output != "" {
		if err := writeResultToFile(result, opts.Output); err != nil {
			_ = formatter.Error("WRITE_FAILED", err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
		formatter.VerboseLog("Wrote compiled query to %s", opts.Output)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(result.String())
}

func compilationResult(cq *index.CompiledQuery) (*CompilationResult, error) {
	fp, err := cq.Fingerprint()
	if err != nil {
		return nil, err
	}
	result := &CompilationResult{
		Kind:           cq.Kind().String(),
		Statement:      cq.Statement(),
		CountStatement: cq.CountStatement(),
		Parameters:     cq.Parameters(),
		Types:          cq.Types(),
		Fingerprint:    fp,
	}
	for _, gap := range cq.Gaps() {
		result.Gaps = append(result.Gaps, gap.String())
	}
	return result, nil
}

// String renders the result for text output.
func (r *CompilationResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "statement:   %s\n", r.Statement)
	fmt.Fprintf(&sb, "count:       %s\n", r.CountStatement)
	if len(r.Types) > 0 {
		fmt.Fprintf(&sb, "types:       %s\n", strings.Join(r.Types, ", "))
	}
	if len(r.Gaps) > 0 {
		fmt.Fprintf(&sb, "gaps:        %s\n", strings.Join(r.Gaps, ", "))
	}
	if len(r.Parameters) > 0 {
		sb.WriteString("parameters:\n")
		for _, name := range value.SortedKeys(r.Parameters) {
			fmt.Fprintf(&sb, "  $%s = %s\n", name, formatParameter(r.Parameters[name]))
		}
	}
	fmt.Fprintf(&sb, "fingerprint: %s", r.Fingerprint)
	return sb.String()
}

// formatParameter renders v as canonical JSON.
func formatParameter(v any) string {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// parseKind accepts "node" or "relationship".
func parseKind(s string) (graph.Kind, error) {
	switch s {
	case "node":
		return graph.KindNode, nil
	case "relationship", "rel":
		return graph.KindRelationship, nil
	default:
		return 0, graph.NewError(graph.ErrCodeInvalidPredicate,
			fmt.Sprintf("unknown kind %q: must be node or relationship", s))
	}
}

// readQuery decodes a JSON query from a file, or from stdin when source
// is "-".
func readQuery(source string, stdin io.Reader) (*predicate.Query, error) {
	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, graph.WrapError(graph.ErrCodeInvalidPredicate, "read query", err)
	}
	return predicate.DecodeQuery(data)
}

// writeResultToFile writes the compilation result as indented JSON.
func writeResultToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	if err := os.WriteFile(filename, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
