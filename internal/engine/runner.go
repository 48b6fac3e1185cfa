package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfabric/calcgrid/internal/marketdata"
	"github.com/quantfabric/calcgrid/internal/result"
	"github.com/quantfabric/calcgrid/internal/trade"
)

// Observer receives engine telemetry. Methods may be called concurrently.
type Observer interface {
	StageCompleted(stage string, seconds float64)
	CellCompleted(measure Measure, success bool)
}

// RunnerConfig tunes the runner.
type RunnerConfig struct {
	// Parallelism bounds the worker pool for the execute stage.
	Parallelism int `yaml:"parallelism"`
}

// DefaultRunnerConfig returns production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{Parallelism: runtime.NumCPU()}
}

// Runner executes calculation batches through the staged pipeline:
// configure, aggregate requirements, build market data, execute, assemble.
// Each stage completes for the whole batch before the next begins;
// requirement aggregation in particular must finish before any building so
// the resolver sees the complete top-level demand at once.
//
// A Runner is immutable configuration plus a resolver and is safe for
// concurrent runs.
type Runner struct {
	rules     PricingRules
	reporting ReportingRules
	resolver  *marketdata.Resolver
	cfg       RunnerConfig
	observer  Observer
	logger    zerolog.Logger
}

// NewRunner assembles a runner from its configuration.
func NewRunner(rules PricingRules, reporting ReportingRules, resolver *marketdata.Resolver, cfg RunnerConfig) *Runner {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultRunnerConfig().Parallelism
	}
	return &Runner{
		rules:     rules,
		reporting: reporting,
		resolver:  resolver,
		cfg:       cfg,
		logger:    zerolog.Nop(),
	}
}

// SetObserver installs optional telemetry.
func (r *Runner) SetObserver(o Observer) { r.observer = o }

// SetLogger installs a logger; the default discards.
func (r *Runner) SetLogger(l zerolog.Logger) { r.logger = l }

// Run executes one batch and returns the full-shape results grid. The error
// return is reserved for fatal problems (configuration cycles, cancelled
// context); everything expected lands in the grid as per-cell failures.
func (r *Runner) Run(ctx context.Context, trades []trade.Trade, columns []Column, base *marketdata.Environment) (*Results, error) {
	return r.run(ctx, trades, columns, base, nil)
}

// RunScenarios executes the batch once per perturbed environment. Each cell
// wraps an ordered ScenarioValues list matching the declared scenario order.
func (r *Runner) RunScenarios(ctx context.Context, trades []trade.Trade, columns []Column, base *marketdata.Environment, scenarios []marketdata.Perturbation) (*Results, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("scenario run requires at least one perturbation")
	}
	return r.run(ctx, trades, columns, base, scenarios)
}

func (r *Runner) run(ctx context.Context, trades []trade.Trade, columns []Column, base *marketdata.Environment, scenarios []marketdata.Perturbation) (*Results, error) {
	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Logger()
	logger.Info().
		Int("trades", len(trades)).
		Int("columns", len(columns)).
		Int("scenarios", len(scenarios)).
		Msg("calculation run starting")

	cells := make([][]result.Result, len(trades))
	for row := range cells {
		cells[row] = make([]result.Result, len(columns))
	}

	// Configure: dispatch a function per cell. A dispatch failure is a
	// terminal cell; it never reaches market-data building.
	start := time.Now()
	var tasks []*Task
	for row, tr := range trades {
		for col, column := range columns {
			fn, failure := r.rules.Resolve(tr, column.Measure)
			if failure != nil {
				cells[row][col] = result.FromFailure(*failure)
				continue
			}
			tasks = append(tasks, NewTask(row, col, tr, column, fn, r.reporting.CurrencyFor(tr)))
		}
	}
	r.stageDone("configure", start, logger)

	// Aggregate: the complete top-level demand, computed before any
	// building occurs.
	start = time.Now()
	reqs := make([]marketdata.Requirements, 0, len(tasks))
	live := tasks[:0]
	for _, task := range tasks {
		req, err := taskRequirements(task)
		if err != nil {
			cells[task.Row][task.Col] = result.FailErr(result.InvalidInput, err)
			continue
		}
		reqs = append(reqs, req)
		live = append(live, task)
	}
	tasks = live
	total := marketdata.MergeAll(reqs...)
	r.stageDone("aggregate", start, logger)

	// Build: one shared environment for the whole batch.
	start = time.Now()
	env, err := r.resolver.Resolve(ctx, total, base)
	if err != nil {
		return nil, fmt.Errorf("market data build: %w", err)
	}
	r.stageDone("build", start, logger)

	envs := []*marketdata.Environment{env}
	if len(scenarios) > 0 {
		envs = make([]*marketdata.Environment, len(scenarios))
		for i, p := range scenarios {
			envs[i] = env.Perturb(p)
		}
	}

	// Execute: tasks run independently against the immutable environment;
	// each writes only its own cell.
	start = time.Now()
	if err := r.execute(ctx, tasks, envs, len(scenarios) > 0, cells); err != nil {
		return nil, err
	}
	r.stageDone("execute", start, logger)

	tradeIDs := make([]string, len(trades))
	for i, tr := range trades {
		tradeIDs[i] = tr.ID()
	}
	logger.Info().Int("cells", len(trades)*len(columns)).Msg("calculation run complete")
	return &Results{runID: runID, tradeID: tradeIDs, columns: append([]Column(nil), columns...), cells: cells}, nil
}

func (r *Runner) execute(ctx context.Context, tasks []*Task, envs []*marketdata.Environment, scenarioMode bool, cells [][]result.Result) error {
	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.cfg.Parallelism)
	)
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(task *Task) {
			defer wg.Done()
			defer func() { <-sem }()

			var res result.Result
			if scenarioMode {
				vals := make(ScenarioValues, len(envs))
				for i, env := range envs {
					vals[i] = task.Execute(env)
				}
				res = result.Success(vals)
			} else {
				res = task.Execute(envs[0])
			}
			cells[task.Row][task.Col] = res
			if r.observer != nil {
				r.observer.CellCompleted(task.Column.Measure, res.IsSuccess())
			}
		}(task)
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Runner) stageDone(stage string, start time.Time, logger zerolog.Logger) {
	elapsed := time.Since(start)
	logger.Debug().Str("stage", stage).Dur("elapsed", elapsed).Msg("stage complete")
	if r.observer != nil {
		r.observer.StageCompleted(stage, elapsed.Seconds())
	}
}

// taskRequirements guards the requirements call: a panicking function must
// poison only its own cell.
func taskRequirements(task *Task) (req marketdata.Requirements, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("requirements for %s/%s: %v", task.Trade.ID(), task.Column.Measure, rec)
		}
	}()
	return task.Requirements()
}
