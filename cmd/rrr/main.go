package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/runrunrun/rrr/internal/cli"
	"github.com/runrunrun/rrr/pkg/version"
)

func main() {
	cmd := cli.NewRootCmd()

	// No signal-cancelled context here: an interrupt during a child
	// process's execution belongs to the child, whose exit disposition
	// decides the fallback cascade.
	err := fang.Execute(context.Background(), cmd,
		fang.WithVersion(version.GetVersion()),
		fang.WithErrorHandler(cli.ErrorHandler),
	)
	if err != nil {
		os.Exit(1)
	}
}
