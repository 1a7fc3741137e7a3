// Completion: 100% - Entry point complete
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

const versionString = "elf2efi 1.0.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the exit status
func run(args []string, stdout, stderr io.Writer) int {
	ctx := &CommandContext{
		Config: loadConfig(),
		Stdout: stdout,
		Stderr: stderr,
	}

	root := newRootCommand(ctx)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		te := classifyError(err)
		fmt.Fprint(stderr, te.Format(!ctx.NoColor && !color.NoColor))
		return te.ExitCode()
	}
	return 0
}
