// Command graphgate compiles and runs predicate queries against a graph
// store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/graphgate/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
