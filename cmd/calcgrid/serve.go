package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfabric/calcgrid/internal/config"
	"github.com/quantfabric/calcgrid/internal/server"
	"github.com/quantfabric/calcgrid/internal/snapshot"
)

func serveCmd() *cobra.Command {
	var (
		configPath   string
		snapshotPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calculation engine over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			snap, err := snapshot.Load(snapshotPath)
			if err != nil {
				return err
			}

			p, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			srv := server.New(cfg.Server, p.runner, snap, p.metrics.Handler())
			srv.SetLogger(log.Logger)

			log.Info().
				Str("addr", cfg.Server.Host).
				Int("port", cfg.Server.Port).
				Time("valuation_date", snap.ValuationDate.Time).
				Msg("serving calculation engine")
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config/calcgrid.yaml", "engine configuration file")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "config/snapshot.yaml", "market data snapshot file")
	return cmd
}
