// clusterctl launches the nodes of a cluster file in one process and keeps
// them running until interrupted.
//
// Usage:
//
//	clusterctl run --config cluster.toml [--common common.toml] [--shutdown-timeout 30s]
//	clusterctl validate --config cluster.toml
//	clusterctl init --output cluster.toml [--kind toml|yaml] [--force]
//	clusterctl roles
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clusterctl",
		Short:         "Run cluster nodes from a cluster file",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newRolesCmd())
	root.Version = version
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "clusterctl: %v\n", err)
		os.Exit(1)
	}
}
