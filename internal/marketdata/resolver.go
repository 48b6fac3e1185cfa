package marketdata

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quantfabric/calcgrid/internal/result"
)

// ResolverConfig tunes the resolver.
type ResolverConfig struct {
	// Parallelism bounds the worker pool that builds ids within one wave.
	Parallelism int `yaml:"parallelism"`
	// MaxDepth bounds both discovery iterations and wave count. A dependency
	// chain deeper than this is treated as a configuration error, which is
	// how an unintentional cycle surfaces instead of looping forever.
	MaxDepth int `yaml:"max_depth"`
}

// DefaultResolverConfig returns production defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Parallelism: runtime.NumCPU(),
		MaxDepth:    16,
	}
}

// Observer receives resolver telemetry. All methods may be called
// concurrently.
type Observer interface {
	PlanCacheLookup(hit bool)
	DiscoveryDone(ids, waves int)
	BuildDone(idType Type, success bool)
}

// Resolver turns (supplied base snapshot, top-level requirements, function
// registry) into an Environment in which every requested id, transitively,
// has a Result.
//
// It works in two phases. Discovery asks each id's registered Function for
// its own sub-requirements, iterating to a fixed point, and orders the
// closure into waves where wave n depends only on supplied data and earlier
// waves. Build then evaluates wave by wave, each wave in parallel under a
// bounded pool. A failed id records its Failure and poisons only the ids
// that transitively depend on it; sibling branches keep building.
type Resolver struct {
	registry *Registry
	cfg      ResolverConfig
	cache    PlanCache
	observer Observer
	logger   zerolog.Logger
}

// NewResolver creates a resolver over the given function registry.
func NewResolver(registry *Registry, cfg ResolverConfig) *Resolver {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultResolverConfig().Parallelism
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultResolverConfig().MaxDepth
	}
	return &Resolver{
		registry: registry,
		cfg:      cfg,
		logger:   zerolog.Nop(),
	}
}

// SetPlanCache installs an optional cache for discovered dependency plans.
// The cache must be flushed when the function registry's configuration
// changes, since plans are keyed by requirement set only.
func (r *Resolver) SetPlanCache(c PlanCache) { r.cache = c }

// SetObserver installs optional telemetry.
func (r *Resolver) SetObserver(o Observer) { r.observer = o }

// SetLogger installs a logger; the default discards.
func (r *Resolver) SetLogger(l zerolog.Logger) { r.logger = l }

// Resolve builds the environment satisfying the full top-level requirement
// set. The returned error is reserved for fatal configuration problems
// (dependency cycle, depth exceeded) and context cancellation; per-id
// problems are recorded as Failures inside the environment.
//
// The requirement set must be the complete batch-wide demand: aggregation
// happens before resolution so discovery sees the whole closure at once.
func (r *Resolver) Resolve(ctx context.Context, req Requirements, base *Environment) (*Environment, error) {
	plan, err := r.planFor(ctx, req)
	if err != nil {
		return nil, err
	}

	built := make(map[ID]result.Result, plan.Size())
	for n, wave := range plan.Waves() {
		if err := r.buildWave(ctx, plan, wave, base, built); err != nil {
			return nil, err
		}
		r.logger.Debug().
			Int("wave", n).
			Int("ids", len(wave)).
			Msg("resolver wave complete")
	}

	return r.assemble(req, plan, base, built), nil
}

// planFor returns the dependency plan for the requirement set, consulting
// the plan cache when one is installed.
func (r *Resolver) planFor(ctx context.Context, req Requirements) (*Plan, error) {
	key := req.Hash()
	if r.cache != nil {
		if plan, ok := r.cache.Get(ctx, key); ok {
			if r.observer != nil {
				r.observer.PlanCacheLookup(true)
			}
			return plan, nil
		}
		if r.observer != nil {
			r.observer.PlanCacheLookup(false)
		}
	}
	plan, err := r.discover(req)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Put(ctx, key, plan); err != nil {
			r.logger.Warn().Err(err).Msg("plan cache put failed")
		}
	}
	return plan, nil
}

// discover expands the top-level requirements to their transitive closure by
// iterating each id's declared sub-requirements to a fixed point, then
// orders the closure into leaves-first waves.
func (r *Resolver) discover(req Requirements) (*Plan, error) {
	deps := make(map[ID]nodeDeps)
	frontier := req.Values()

	iterations := 0
	for len(frontier) > 0 {
		if iterations >= r.cfg.MaxDepth {
			return nil, fmt.Errorf("market data dependency chain exceeds %d levels: configuration cycle suspected", r.cfg.MaxDepth)
		}
		iterations++

		var next []ID
		for _, id := range frontier {
			if _, seen := deps[id]; seen {
				continue
			}
			fn, ok := r.registry.Lookup(id.IDType())
			if !ok {
				// Terminal: supplied-or-failed at build time.
				deps[id] = nodeDeps{}
				continue
			}
			sub := fn.Requirements(id)
			d := nodeDeps{values: sub.Values(), timeSeries: sub.TimeSeries()}
			deps[id] = d
			next = append(next, d.values...)
		}
		frontier = next
	}

	waves, err := orderWaves(deps, r.cfg.MaxDepth)
	if err != nil {
		return nil, err
	}
	if r.observer != nil {
		r.observer.DiscoveryDone(len(deps), len(waves))
	}
	return &Plan{waves: waves, deps: deps}, nil
}

// orderWaves topologically sorts the closure into waves. A stalled pass with
// ids still unplaced means a dependency cycle.
func orderWaves(deps map[ID]nodeDeps, maxDepth int) ([][]ID, error) {
	placed := make(map[ID]bool, len(deps))
	remaining := make([]ID, 0, len(deps))
	for id := range deps {
		remaining = append(remaining, id)
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].Key() < remaining[j].Key() })

	var waves [][]ID
	for len(remaining) > 0 {
		if len(waves) >= maxDepth {
			return nil, fmt.Errorf("market data build order exceeds %d waves: configuration cycle suspected", maxDepth)
		}
		var wave, rest []ID
		for _, id := range remaining {
			ready := true
			for _, dep := range deps[id].values {
				if _, inPlan := deps[dep]; inPlan && !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, id)
			} else {
				rest = append(rest, id)
			}
		}
		if len(wave) == 0 {
			keys := make([]string, 0, len(rest))
			for _, id := range rest {
				keys = append(keys, id.Key())
			}
			return nil, fmt.Errorf("market data dependency cycle among: %s", strings.Join(keys, ", "))
		}
		for _, id := range wave {
			placed[id] = true
		}
		waves = append(waves, wave)
		remaining = rest
	}
	return waves, nil
}

// buildWave evaluates one wave under the bounded worker pool. Every id in
// the wave has all dependencies resolved (supplied, built, or failed) before
// the wave starts, so builds within a wave are independent.
func (r *Resolver) buildWave(ctx context.Context, plan *Plan, wave []ID, base *Environment, built map[ID]result.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Snapshot the environment once per wave; workers read it immutably.
	env := base.With(built)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.cfg.Parallelism)
	)
	for _, id := range wave {
		if base.Has(id) {
			continue // supplied values are never rebuilt
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(id ID) {
			defer wg.Done()
			defer func() { <-sem }()
			res := r.buildOne(plan, id, env, base)
			if r.observer != nil {
				r.observer.BuildDone(id.IDType(), res.IsSuccess())
			}
			mu.Lock()
			built[id] = res
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return ctx.Err()
}

// buildOne produces the Result for a single id against the wave's immutable
// environment snapshot.
func (r *Resolver) buildOne(plan *Plan, id ID, env, base *Environment) (res result.Result) {
	// An unexpected panic inside a builder must poison only this id.
	defer func() {
		if rec := recover(); rec != nil {
			res = result.Fail(result.CalculationFailed, "building %s: %v", id.Key(), rec)
		}
	}()

	fn, ok := r.registry.Lookup(id.IDType())
	if !ok {
		// Quotes are supply-only: absence means the caller's snapshot has no
		// value, not that the engine lacks a builder.
		if id.IDType() == TypeQuote {
			return result.Fail(result.MissingData, "no supplied value for %s", id.Key())
		}
		return result.Fail(result.Unsupported, "no market data function registered for type %q (%s)", id.IDType(), id.Key())
	}

	// Short-circuit on failed dependencies so downstream failures uniformly
	// carry MissingData, naming the first broken input.
	values, series := plan.DepsOf(id)
	for _, dep := range values {
		if dr := env.Value(dep); dr.IsFailure() {
			return result.Fail(result.MissingData, "%s: missing dependency %s (%s)", id.Key(), dep.Key(), dr.Failure().Message)
		}
	}
	for _, dep := range series {
		if !base.HasTimeSeries(dep) {
			return result.Fail(result.MissingData, "%s: missing time series %s", id.Key(), dep.Key())
		}
		if dr := base.TimeSeries(dep); dr.IsFailure() {
			return result.Fail(result.MissingData, "%s: missing dependency %s (%s)", id.Key(), dep.Key(), dr.Failure().Message)
		}
	}

	return fn.Build(id, env)
}

// assemble materializes the final environment: base values, built results,
// and an explicit Result for every requested time series.
func (r *Resolver) assemble(req Requirements, plan *Plan, base *Environment, built map[ID]result.Result) *Environment {
	out := &Environment{
		valuationDate: base.valuationDate,
		scenario:      base.scenario,
		values:        make(map[ID]result.Result, len(base.values)+len(built)),
		timeSeries:    make(map[TimeSeriesID]result.Result, len(base.timeSeries)),
	}
	for id, res := range base.values {
		out.values[id] = res
	}
	for id, res := range built {
		out.values[id] = res
	}
	for id, res := range base.timeSeries {
		out.timeSeries[id] = res
	}

	// Requested series come from the top-level requirements plus every
	// discovered node's series dependencies.
	wanted := make(map[TimeSeriesID]struct{})
	for _, id := range req.TimeSeries() {
		wanted[id] = struct{}{}
	}
	for _, d := range plan.deps {
		for _, id := range d.timeSeries {
			wanted[id] = struct{}{}
		}
	}
	for id := range wanted {
		if !out.HasTimeSeries(id) {
			out.timeSeries[id] = result.Fail(result.MissingData, "no time series for %s", id.Key())
		}
	}
	return out
}
