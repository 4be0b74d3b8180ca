package main

import (
	"fmt"

	"github.com/danmuck/clusternode/internal/config"
	"github.com/danmuck/clusternode/internal/workers"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var path, common string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a cluster file against the built-in roles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := validateCluster(path, common)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Validated %s: %d node(s)\n", path, len(file.Nodes))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "cluster.toml", "cluster file (.toml, .yaml)")
	cmd.Flags().StringVar(&common, "common", "", "extra shared configuration (TOML)")
	return cmd
}

func newInitCmd() *cobra.Command {
	var output, kind string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a cluster file template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteTemplate(output, kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s cluster template to %s\n", kind, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "cluster.toml", "output path")
	cmd.Flags().StringVar(&kind, "kind", "toml", "template kind: toml|yaml")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List the built-in roles",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, role := range workers.Registry().Roles() {
				fmt.Fprintln(cmd.OutOrStdout(), role)
			}
		},
	}
}

// validateCluster loads the file, resolves every role and checks the node
// context bindings in strict mode.
func validateCluster(path, common string) (config.File, error) {
	file, err := loadClusterConfig(path, common)
	if err != nil {
		return config.File{}, err
	}
	reg := workers.Registry()
	for _, node := range file.Nodes {
		if _, err := reg.ResolveEntries(node.Roles); err != nil {
			return config.File{}, fmt.Errorf("node port=%d: %w", node.Port, err)
		}
	}
	if err := workers.NewContext().Bindings().Validate(); err != nil {
		return config.File{}, err
	}
	return file, nil
}
