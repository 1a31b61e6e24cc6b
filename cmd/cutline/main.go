// Command cutline edits, plays and exports clip timelines.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cutline/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
