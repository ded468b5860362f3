// Command stratagem authors, instantiates, and drives strategy graphs on a
// simulated chain.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/stratagem/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
