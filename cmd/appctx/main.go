// Command appctx runs a component container assembled from configuration.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/GoCodeAlone/appctx/cmd/appctx/cmd"
)

func main() {
	if err := cmd.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "appctx:", err)
		os.Exit(1)
	}
}
