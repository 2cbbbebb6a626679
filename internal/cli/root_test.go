package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphgate/internal/config"
	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/testutil"
	"github.com/roach88/graphgate/internal/transport"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, opts *RootOptions, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := newRootCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// memConnector connects every command to mg.
func memConnector(mg *testutil.MemGraph) Connector {
	return func(context.Context, config.Config) (transport.Opener, func(context.Context) error, error) {
		return mg, nil, nil
	}
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "graphgate", cmd.Use)
	assert.Contains(t, cmd.Long, "Cypher")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "query", "get", "version"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command   string
		flag      string
		shorthand string
		defValue  string
	}{
		{"compile", "output", "o", ""},
		{"compile", "kind", "k", "node"},
		{"compile", "tenant", "", ""},
		{"compile", "page-size", "", "0"},
		{"compile", "strict", "", "false"},
		{"query", "kind", "k", "node"},
		{"query", "count", "", "false"},
		{"get", "relationship", "r", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{tt.command})
			require.NoError(t, err)

			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.shorthand, f.Shorthand)
			assert.Equal(t, tt.defValue, f.DefValue)
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, &RootOptions{}, "version", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestConnectFailure(t *testing.T) {
	refused := graph.WrapError(graph.ErrCodeTransportFailed, "connect", errors.New("connection refused"))
	opts := &RootOptions{
		Connect: func(context.Context, config.Config) (transport.Opener, func(context.Context) error, error) {
			return nil, nil, refused
		},
	}

	out, _, err := execute(t, opts, "get", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, graph.ErrTransportFailed)
	assert.Contains(t, out, "Error [TRANSPORT_FAILED]")
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, &RootOptions{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "graphgate "+Version)

	out, _, err = execute(t, &RootOptions{}, "version", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version":"`+Version+`"`)
}
