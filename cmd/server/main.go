// Command server is the FHIR resource-interchange process: cobra root
// command with `serve`, `migrate`, `worker`, and `reindex` subcommands.
// Grounded on the teacher's cmd/api/main.go (single flat main wiring one
// HTTP server) generalized to cobra, which spf13/cobra already being a
// direct dependency made the natural multi-command shape once the
// worker and migration paths needed their own entrypoints.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "server",
		Short: "zunder is a FHIR resource-interchange server",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newReindexCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
