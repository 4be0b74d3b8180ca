package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/clusternode/internal/logging"
	"github.com/danmuck/clusternode/internal/runner"
	"github.com/danmuck/clusternode/internal/workers"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type runOptions struct {
	configPath      string
	commonPath      string
	shutdownTimeout time.Duration
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch every node of the cluster file and wait for a signal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.ConfigureRuntime()
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runCluster(ctx, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "cluster.toml", "cluster file (.toml, .yaml)")
	cmd.Flags().StringVar(&opts.commonPath, "common", "", "extra shared configuration (TOML) under the cluster file")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 30*time.Second, "bound on the whole shutdown")
	return cmd
}

// runCluster launches the cluster and blocks until ctx ends, then shuts down.
func runCluster(ctx context.Context, opts runOptions) error {
	file, err := loadClusterConfig(opts.configPath, opts.commonPath)
	if err != nil {
		return err
	}
	r := runner.New(file.Common, workers.Registry(), runner.WithContextFactory(workers.NewContext))

	launchErr := r.Launch(ctx, file.Nodes)
	if launchErr == nil {
		log.Info().Int("nodes", len(r.Nodes())).Msg("cluster running")
		<-ctx.Done()
	} else {
		log.Error().Err(launchErr).Msg("cluster launch failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
	defer cancel()
	return errors.Join(launchErr, r.Shutdown(shutdownCtx))
}
