package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/quantfabric/calcgrid/internal/config"
	"github.com/quantfabric/calcgrid/internal/feed"
	"github.com/quantfabric/calcgrid/internal/snapshot"
)

func fetchCmd() *cobra.Command {
	var (
		configPath string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch configured quotes from the feed chain into a snapshot file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if len(cfg.Feeds) == 0 {
				return fmt.Errorf("no feeds configured")
			}

			providers := make([]*feed.Provider, len(cfg.Feeds))
			for i, fc := range cfg.Feeds {
				p := feed.NewProvider(fc)
				p.SetLogger(log.Logger)
				providers[i] = p
			}
			client := feed.NewClient(providers...)
			client.SetLogger(log.Logger)

			// Every quote the curve configuration can ask for.
			byFeed := make(map[string]map[string]struct{})
			for _, def := range cfg.MarketData.Curves {
				for _, node := range def.Nodes {
					if byFeed[node.Feed] == nil {
						byFeed[node.Feed] = make(map[string]struct{})
					}
					byFeed[node.Feed][node.Ticker] = struct{}{}
				}
			}

			snap := snapshot.Snapshot{
				ValuationDate: snapshot.Date{Time: time.Now().UTC().Truncate(24 * time.Hour)},
			}
			for feedName, tickers := range byFeed {
				sorted := make([]string, 0, len(tickers))
				for ticker := range tickers {
					sorted = append(sorted, ticker)
				}
				sort.Strings(sorted)
				for _, ticker := range sorted {
					q, err := client.Fetch(ctx, ticker)
					if err != nil {
						return fmt.Errorf("fetch %s: %w", ticker, err)
					}
					snap.Quotes = append(snap.Quotes, snapshot.Quote{
						Ticker: ticker,
						Feed:   feedName,
						Value:  q.Value,
					})
				}
			}

			raw, err := yaml.Marshal(&snap)
			if err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			if err := os.WriteFile(outPath, raw, 0o644); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			log.Info().Int("quotes", len(snap.Quotes)).Str("path", outPath).Msg("snapshot written")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config/calcgrid.yaml", "engine configuration file")
	cmd.Flags().StringVar(&outPath, "out", "config/snapshot.yaml", "snapshot output file")
	return cmd
}
