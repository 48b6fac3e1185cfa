package marketdata

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/calcgrid/internal/money"
	"github.com/quantfabric/calcgrid/internal/result"
)

// stubFunction is a scriptable market data function recording call counts.
type stubFunction struct {
	mu       sync.Mutex
	reqs     func(id ID) Requirements
	build    func(id ID, env *Environment) result.Result
	reqCalls map[string]int
	builds   map[string]int
}

func newStub(reqs func(id ID) Requirements, build func(id ID, env *Environment) result.Result) *stubFunction {
	return &stubFunction{
		reqs:     reqs,
		build:    build,
		reqCalls: make(map[string]int),
		builds:   make(map[string]int),
	}
}

func (s *stubFunction) Requirements(id ID) Requirements {
	s.mu.Lock()
	s.reqCalls[id.Key()]++
	s.mu.Unlock()
	if s.reqs == nil {
		return EmptyRequirements()
	}
	return s.reqs(id)
}

func (s *stubFunction) Build(id ID, env *Environment) result.Result {
	s.mu.Lock()
	s.builds[id.Key()]++
	s.mu.Unlock()
	return s.build(id, env)
}

type recordingObserver struct {
	mu       sync.Mutex
	hits     []bool
	ids      int
	waves    int
	failures int
}

func (o *recordingObserver) PlanCacheLookup(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits = append(o.hits, hit)
}

func (o *recordingObserver) DiscoveryDone(ids, waves int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ids, o.waves = ids, waves
}

func (o *recordingObserver) BuildDone(_ Type, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !success {
		o.failures++
	}
}

// chainRegistry wires curve_group -> curve -> quote so the resolver has a
// three-level dependency chain. Quotes are supplied raw values.
func chainRegistry(t *testing.T) (*Registry, *stubFunction, *stubFunction) {
	t.Helper()
	groupFn := newStub(
		func(id ID) Requirements {
			g := id.(CurveGroupID)
			var b RequirementsBuilder
			return b.AddValue(
				CurveID{Group: g.Name, Name: "usd-disc", Currency: money.USD},
				CurveID{Group: g.Name, Name: "eur-disc", Currency: money.EUR},
			).Build()
		},
		func(id ID, env *Environment) result.Result {
			g := id.(CurveGroupID)
			usd := env.Value(CurveID{Group: g.Name, Name: "usd-disc", Currency: money.USD})
			eur := env.Value(CurveID{Group: g.Name, Name: "eur-disc", Currency: money.EUR})
			if f, failed := result.FirstFailure(usd, eur); failed {
				return result.FromFailure(*f)
			}
			return result.Success("group:" + g.Name)
		},
	)
	curveFn := newStub(
		func(id ID) Requirements {
			c := id.(CurveID)
			var b RequirementsBuilder
			return b.AddValue(QuoteID{Ticker: c.Name, Feed: "bbg"}).Build()
		},
		func(id ID, env *Environment) result.Result {
			c := id.(CurveID)
			return env.Value(QuoteID{Ticker: c.Name, Feed: "bbg"}).
				Map(func(v any) any { return v.(float64) * 100 })
		},
	)

	reg := NewRegistry()
	reg.MustRegister(TypeCurveGroup, groupFn)
	reg.MustRegister(TypeCurve, curveFn)
	return reg, groupFn, curveFn
}

func chainRequirements() Requirements {
	var b RequirementsBuilder
	return b.AddValue(CurveGroupID{Name: "default"}).Build()
}

func suppliedQuotes() *Environment {
	return BaseEnvironment(valuation, map[ID]any{
		QuoteID{Ticker: "usd-disc", Feed: "bbg"}: 0.025,
		QuoteID{Ticker: "eur-disc", Feed: "bbg"}: 0.020,
	}, nil)
}

func TestResolveBuildsChainBottomUp(t *testing.T) {
	reg, groupFn, curveFn := chainRegistry(t)
	obs := &recordingObserver{}
	res := NewResolver(reg, ResolverConfig{Parallelism: 4, MaxDepth: 8})
	res.SetObserver(obs)

	env, err := res.Resolve(context.Background(), chainRequirements(), suppliedQuotes())
	require.NoError(t, err)

	group := env.Value(CurveGroupID{Name: "default"})
	require.True(t, group.IsSuccess())
	assert.Equal(t, "group:default", group.Value())

	usd := env.Value(CurveID{Group: "default", Name: "usd-disc", Currency: money.USD})
	require.True(t, usd.IsSuccess())
	assert.InDelta(t, 2.5, usd.Value().(float64), 1e-12)

	// Fixed point for a depth-2 chain over supplied quotes: 3 waves
	// (quotes, curves, group), 5 discovered ids.
	assert.Equal(t, 5, obs.ids)
	assert.Equal(t, 3, obs.waves)

	// Each id's requirements are queried exactly once; each curve built once.
	for key, n := range groupFn.reqCalls {
		assert.Equal(t, 1, n, "requirements re-queried for %s", key)
	}
	for key, n := range curveFn.builds {
		assert.Equal(t, 1, n, "rebuilt %s", key)
	}
}

func TestResolveCycleIsConfigurationError(t *testing.T) {
	curveFn := newStub(
		func(id ID) Requirements {
			var b RequirementsBuilder
			return b.AddValue(CurveGroupID{Name: "loop"}).Build()
		},
		func(ID, *Environment) result.Result { return result.Success(1.0) },
	)
	groupFn := newStub(
		func(id ID) Requirements {
			var b RequirementsBuilder
			return b.AddValue(CurveID{Group: "loop", Name: "a", Currency: money.USD}).Build()
		},
		func(ID, *Environment) result.Result { return result.Success(1.0) },
	)
	reg := NewRegistry()
	reg.MustRegister(TypeCurve, curveFn)
	reg.MustRegister(TypeCurveGroup, groupFn)

	var b RequirementsBuilder
	req := b.AddValue(CurveID{Group: "loop", Name: "a", Currency: money.USD}).Build()

	res := NewResolver(reg, ResolverConfig{Parallelism: 1, MaxDepth: 8})
	_, err := res.Resolve(context.Background(), req, BaseEnvironment(valuation, nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestResolveFailureIsLocalToDependents(t *testing.T) {
	reg, _, _ := chainRegistry(t)
	res := NewResolver(reg, ResolverConfig{Parallelism: 4, MaxDepth: 8})

	// Only the USD quote is supplied; the EUR branch must fail without
	// affecting the USD branch.
	base := BaseEnvironment(valuation, map[ID]any{
		QuoteID{Ticker: "usd-disc", Feed: "bbg"}: 0.025,
	}, nil)

	env, err := res.Resolve(context.Background(), chainRequirements(), base)
	require.NoError(t, err)

	usd := env.Value(CurveID{Group: "default", Name: "usd-disc", Currency: money.USD})
	assert.True(t, usd.IsSuccess())

	eur := env.Value(CurveID{Group: "default", Name: "eur-disc", Currency: money.EUR})
	require.True(t, eur.IsFailure())
	assert.Equal(t, result.MissingData, eur.Reason())

	// The group depends on the broken branch, so it fails too.
	group := env.Value(CurveGroupID{Name: "default"})
	require.True(t, group.IsFailure())
	assert.Equal(t, result.MissingData, group.Reason())
}

func TestResolveUnsuppliedQuoteIsMissingData(t *testing.T) {
	reg, _, _ := chainRegistry(t)
	res := NewResolver(reg, ResolverConfig{Parallelism: 2, MaxDepth: 8})

	env, err := res.Resolve(context.Background(), chainRequirements(), BaseEnvironment(valuation, nil, nil))
	require.NoError(t, err)

	// Quotes are supply-only: no supplied value means missing data.
	quote := env.Value(QuoteID{Ticker: "usd-disc", Feed: "bbg"})
	require.True(t, quote.IsFailure())
	assert.Equal(t, result.MissingData, quote.Reason())

	// Their dependents stay missing data too.
	curve := env.Value(CurveID{Group: "default", Name: "usd-disc", Currency: money.USD})
	require.True(t, curve.IsFailure())
	assert.Equal(t, result.MissingData, curve.Reason())
}

func TestResolveUnregisteredDerivedTypeIsUnsupported(t *testing.T) {
	// No builder for index_rates is registered at all.
	res := NewResolver(NewRegistry(), ResolverConfig{Parallelism: 1, MaxDepth: 8})

	var b RequirementsBuilder
	req := b.AddValue(IndexRatesID{Index: "USD-LIBOR-3M"}).Build()

	env, err := res.Resolve(context.Background(), req, BaseEnvironment(valuation, nil, nil))
	require.NoError(t, err)

	r := env.Value(IndexRatesID{Index: "USD-LIBOR-3M"})
	require.True(t, r.IsFailure())
	assert.Equal(t, result.Unsupported, r.Reason())
	assert.Contains(t, r.Failure().Message, "index_rates")
}

func TestResolveSuppliedValuesAreNeverRebuilt(t *testing.T) {
	reg, _, curveFn := chainRegistry(t)
	res := NewResolver(reg, ResolverConfig{Parallelism: 2, MaxDepth: 8})

	base := suppliedQuotes().With(map[ID]result.Result{
		CurveID{Group: "default", Name: "usd-disc", Currency: money.USD}: result.Success(42.0),
	})

	env, err := res.Resolve(context.Background(), chainRequirements(), base)
	require.NoError(t, err)

	usd := env.Value(CurveID{Group: "default", Name: "usd-disc", Currency: money.USD})
	assert.Equal(t, 42.0, usd.Value())
	assert.Zero(t, curveFn.builds["curve/default/usd-disc/USD"])
}

func TestResolveRecoversBuilderPanic(t *testing.T) {
	panicFn := newStub(nil, func(ID, *Environment) result.Result {
		panic("exploded")
	})
	okFn := newStub(nil, func(ID, *Environment) result.Result {
		return result.Success(1.0)
	})
	reg := NewRegistry()
	reg.MustRegister(TypeCurve, panicFn)
	reg.MustRegister(TypeCurveGroup, okFn)

	var b RequirementsBuilder
	req := b.AddValue(
		CurveID{Group: "g", Name: "boom", Currency: money.USD},
		CurveGroupID{Name: "fine"},
	).Build()

	res := NewResolver(reg, ResolverConfig{Parallelism: 2, MaxDepth: 8})
	env, err := res.Resolve(context.Background(), req, BaseEnvironment(valuation, nil, nil))
	require.NoError(t, err)

	boom := env.Value(CurveID{Group: "g", Name: "boom", Currency: money.USD})
	require.True(t, boom.IsFailure())
	assert.Equal(t, result.CalculationFailed, boom.Reason())
	assert.Contains(t, boom.Failure().Message, "exploded")

	fine := env.Value(CurveGroupID{Name: "fine"})
	assert.True(t, fine.IsSuccess())
}

func TestResolveMissingTimeSeries(t *testing.T) {
	ratesFn := newStub(
		func(id ID) Requirements {
			r := id.(IndexRatesID)
			var b RequirementsBuilder
			return b.AddTimeSeries(TimeSeriesID{Index: r.Index, Feed: "bbg"}).Build()
		},
		func(id ID, env *Environment) result.Result {
			return result.Success("rates")
		},
	)
	reg := NewRegistry()
	reg.MustRegister(TypeIndexRates, ratesFn)

	var b RequirementsBuilder
	req := b.AddValue(IndexRatesID{Index: "USD-LIBOR-3M"}).Build()

	res := NewResolver(reg, ResolverConfig{Parallelism: 1, MaxDepth: 8})
	env, err := res.Resolve(context.Background(), req, BaseEnvironment(valuation, nil, nil))
	require.NoError(t, err)

	rates := env.Value(IndexRatesID{Index: "USD-LIBOR-3M"})
	require.True(t, rates.IsFailure())
	assert.Equal(t, result.MissingData, rates.Reason())

	ts := env.TimeSeries(TimeSeriesID{Index: "USD-LIBOR-3M", Feed: "bbg"})
	require.True(t, ts.IsFailure())
	assert.Equal(t, result.MissingData, ts.Reason())
}

// memoryPlanCache is a trivial PlanCache for tests.
type memoryPlanCache struct {
	mu    sync.Mutex
	plans map[string]*Plan
}

func (c *memoryPlanCache) Get(_ context.Context, key string) (*Plan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.plans[key]
	return p, ok
}

func (c *memoryPlanCache) Put(_ context.Context, key string, plan *Plan) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.plans == nil {
		c.plans = make(map[string]*Plan)
	}
	c.plans[key] = plan
	return nil
}

func TestResolvePlanCacheSkipsRediscovery(t *testing.T) {
	reg, groupFn, _ := chainRegistry(t)
	obs := &recordingObserver{}
	res := NewResolver(reg, ResolverConfig{Parallelism: 2, MaxDepth: 8})
	res.SetObserver(obs)
	res.SetPlanCache(&memoryPlanCache{})

	ctx := context.Background()
	env1, err := res.Resolve(ctx, chainRequirements(), suppliedQuotes())
	require.NoError(t, err)
	env2, err := res.Resolve(ctx, chainRequirements(), suppliedQuotes())
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true}, obs.hits)
	// Requirements were only rediscovered on the first run.
	assert.Equal(t, 1, groupFn.reqCalls["curve_group/default"])

	for _, id := range []ID{
		CurveGroupID{Name: "default"},
		CurveID{Group: "default", Name: "usd-disc", Currency: money.USD},
	} {
		assert.Equal(t, env1.Value(id).Value(), env2.Value(id).Value())
	}
}
