package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/quantfabric/calcgrid/internal/cache"
	"github.com/quantfabric/calcgrid/internal/config"
	"github.com/quantfabric/calcgrid/internal/engine"
	"github.com/quantfabric/calcgrid/internal/marketdata"
	"github.com/quantfabric/calcgrid/internal/mdfunc"
	"github.com/quantfabric/calcgrid/internal/metrics"
	"github.com/quantfabric/calcgrid/internal/pricer"
)

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Portfolio calculation engine over a market data dependency graph",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Accept snake_case spellings of every flag.
	root.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	root.AddCommand(calcCmd(), serveCmd(), fetchCmd())
	return root.ExecuteContext(ctx)
}

// pipeline is the wired-up engine for one configuration.
type pipeline struct {
	cfg      config.Config
	runner   *engine.Runner
	resolver *marketdata.Resolver
	metrics  *metrics.Registry
	redis    *cache.Redis
}

// buildPipeline assembles registry, resolver, plan cache and runner from the
// loaded configuration.
func buildPipeline(ctx context.Context, cfg config.Config) (*pipeline, error) {
	registry := marketdata.NewRegistry()
	if err := mdfunc.Register(registry, cfg.MarketData); err != nil {
		return nil, fmt.Errorf("register market data functions: %w", err)
	}

	m := metrics.NewRegistry()
	resolver := marketdata.NewResolver(registry, cfg.Resolver)
	resolver.SetObserver(m)
	resolver.SetLogger(log.Logger)

	p := &pipeline{cfg: cfg, resolver: resolver, metrics: m}
	switch cfg.Cache.Mode {
	case config.CacheMemory:
		resolver.SetPlanCache(cache.NewMemory(cfg.Cache.TTL))
	case config.CacheRedis:
		r, err := cache.NewRedis(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect plan cache: %w", err)
		}
		r.SetLogger(log.Logger)
		resolver.SetPlanCache(r)
		p.redis = r
	}

	rules := pricer.StandardRules(cfg.Selector)
	runner := engine.NewRunner(rules, cfg.Reporting, resolver, cfg.Runner)
	runner.SetObserver(m)
	runner.SetLogger(log.Logger)
	p.runner = runner
	return p, nil
}

// Close releases external connections.
func (p *pipeline) Close() {
	if p.redis != nil {
		_ = p.redis.Close()
	}
}

// parseColumns turns a comma separated measure list into grid columns.
func parseColumns(measures string) ([]engine.Column, error) {
	known := map[string]engine.Measure{
		strings.ToLower(string(engine.MeasurePresentValue)): engine.MeasurePresentValue,
		strings.ToLower(string(engine.MeasureParRate)):      engine.MeasureParRate,
		strings.ToLower(string(engine.MeasurePV01)):         engine.MeasurePV01,
	}
	var out []engine.Column
	for _, part := range strings.Split(measures, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m, ok := known[strings.ToLower(part)]
		if !ok {
			return nil, fmt.Errorf("unknown measure %q", part)
		}
		out = append(out, engine.Column{Name: string(m), Measure: m})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no measures requested")
	}
	return out, nil
}
