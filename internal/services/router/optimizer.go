package router

import (
	"context"
	"errors"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/config"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/metrics"
)

const (
	GoldenRatio = 1.6180339887498948482

	DefaultSearchSamples = 16
	DefaultSearchMaxIter = 24
)

// QuoteFunc quotes one leg against a snapshot. MarketRegistry.Quote
// satisfies it.
type QuoteFunc func(pool *domain.PoolState, amountIn uint64, dir domain.Direction) (domain.Quote, error)

// SearchParams bounds the input search of one pool pair.
type SearchParams struct {
	MinInput  uint64
	MaxInput  uint64
	MinProfit uint64
	// ProfitTolerance is the profit an input may give up to a larger input
	// and still win for being smaller.
	ProfitTolerance uint64
	Samples         int
	MaxIter         int
	SlippageBps     uint16
	FlashloanFeeBps uint16
}

func SearchParamsFromConfig(cfg *config.ArbConfig, flashloan *config.FlashloanConfig) SearchParams {
	return SearchParams{
		MinInput:        cfg.MinInput,
		MaxInput:        cfg.MaxInput,
		MinProfit:       cfg.MinProfit,
		ProfitTolerance: cfg.ProfitTolerance,
		Samples:         cfg.SearchSamples,
		MaxIter:         cfg.SearchMaxIter,
		SlippageBps:     cfg.SlippageBps,
		FlashloanFeeBps: flashloan.FeeBpsIfEnabled(),
	}
}

// Optimizer searches the input amount that maximizes the profit of a two
// leg cycle base -> target -> base.
type Optimizer struct {
	quote  QuoteFunc
	params SearchParams
}

func NewOptimizer(quote QuoteFunc, params SearchParams) *Optimizer {
	if params.Samples < 2 {
		params.Samples = DefaultSearchSamples
	}
	if params.MaxIter < 0 {
		params.MaxIter = DefaultSearchMaxIter
	}
	if params.MinInput == 0 {
		params.MinInput = 1
	}
	if params.MinProfit == 0 {
		params.MinProfit = 1
	}
	return &Optimizer{quote: quote, params: params}
}

func (o *Optimizer) Params() SearchParams {
	return o.params
}

// candidate is one evaluated input amount. feasible is false when a leg
// could not quote it.
type candidate struct {
	amountIn uint64
	mid      domain.Quote
	final    domain.Quote
	flashFee uint64
	profit   int64
	feasible bool
}

func (c *candidate) better(other *candidate) bool {
	if !c.feasible {
		return false
	}
	return !other.feasible || c.profit > other.profit
}

type cyclePair struct {
	buy     *domain.PoolState
	buyDir  domain.Direction
	sell    *domain.PoolState
	sellDir domain.Direction
}

// FindBestRoute returns the most profitable route over every ordered pair of
// snapshots in the group, or nil when none clears MinProfit. The only error
// is the context's: a search cut by its deadline must not be acted upon.
func (o *Optimizer) FindBestRoute(ctx context.Context, group *domain.MintGroup, states []*domain.PoolState) (*domain.RoutePlan, error) {
	var best *domain.RoutePlan
	for _, pair := range cyclePairs(group, states) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plan, err := o.searchPair(ctx, group, pair)
		if err != nil {
			return nil, err
		}
		if plan == nil {
			continue
		}
		if best == nil || plan.Profit > best.Profit || (plan.Profit == best.Profit && plan.AmountIn < best.AmountIn) {
			best = plan
		}
	}
	return best, nil
}

// cyclePairs lists (buy, sell) for every ordered pair of distinct pools that
// trade the group's two mints.
func cyclePairs(group *domain.MintGroup, states []*domain.PoolState) []cyclePair {
	usable := make([]*domain.PoolState, 0, len(states))
	for _, s := range states {
		if s.HasMint(group.BaseMint) && s.HasMint(group.TargetMint) && group.BaseMint != group.TargetMint {
			usable = append(usable, s)
		}
	}
	pairs := make([]cyclePair, 0, len(usable)*(len(usable)-1))
	for _, buy := range usable {
		buyDir, _ := buy.Direction(group.BaseMint)
		for _, sell := range usable {
			if sell.Address == buy.Address {
				continue
			}
			sellDir, _ := sell.Direction(group.TargetMint)
			pairs = append(pairs, cyclePair{buy: buy, buyDir: buyDir, sell: sell, sellDir: sellDir})
		}
	}
	return pairs
}

// upperBound caps the search at the base side liquidity of both legs.
func (o *Optimizer) upperBound(group *domain.MintGroup, pair cyclePair) uint64 {
	return min(o.params.MaxInput, MaxInput(pair.buy, pair.buyDir), pair.sell.ReserveOf(group.BaseMint))
}

// MaxInput is the reserve derived ceiling of an input amount for a leg.
func MaxInput(pool *domain.PoolState, dir domain.Direction) uint64 {
	in, _ := pool.Reserves(dir)
	return in
}

func (o *Optimizer) searchPair(ctx context.Context, group *domain.MintGroup, pair cyclePair) (*domain.RoutePlan, error) {
	lo, hi := o.params.MinInput, o.upperBound(group, pair)
	if hi < lo {
		return nil, nil
	}

	cache := make(map[uint64]*candidate, o.params.Samples+o.params.MaxIter*2)
	eval := func(x uint64) *candidate {
		if c, ok := cache[x]; ok {
			return c
		}
		c := o.evaluate(pair, x)
		cache[x] = c
		return c
	}

	samples := geometricSamples(lo, hi, o.params.Samples)
	bestIdx := -1
	for i, x := range samples {
		c := eval(x)
		if c.feasible && (bestIdx < 0 || c.better(eval(samples[bestIdx]))) {
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return nil, nil
	}

	a := samples[max(bestIdx-1, 0)]
	b := samples[min(bestIdx+1, len(samples)-1)]
	for i := 0; i < o.params.MaxIter && b-a > 2; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		span := b - a
		step := uint64(float64(span) / GoldenRatio)
		c, d := b-step, a+step
		if c >= d {
			c, d = a+span/3, b-span/3
		}
		fc, fd := eval(c), eval(d)
		// ties move left: smaller inputs win
		if fc.better(fd) || (fc.feasible == fd.feasible && fc.profit == fd.profit) {
			b = d
		} else {
			a = c
		}
	}

	metrics.CandidatesEvaluated.Observe(float64(len(cache)))
	chosen := o.choose(cache)
	if chosen == nil {
		return nil, nil
	}
	return o.plan(group, pair, chosen)
}

// choose picks the smallest input whose profit is within ProfitTolerance of
// the best one seen.
func (o *Optimizer) choose(cache map[uint64]*candidate) *candidate {
	var top *candidate
	for _, c := range cache {
		if c.feasible && c.profit > 0 && (top == nil || c.profit > top.profit) {
			top = c
		}
	}
	if top == nil || uint64(top.profit) < o.params.MinProfit {
		return nil
	}
	floor := top.profit - int64(min(o.params.ProfitTolerance, uint64(top.profit)))
	chosen := top
	for _, c := range cache {
		if c.feasible && c.profit >= floor && c.amountIn < chosen.amountIn && uint64(c.profit) >= o.params.MinProfit {
			chosen = c
		}
	}
	return chosen
}

// evaluate quotes both legs at x. Quote failures make x infeasible; they
// never abort the search.
func (o *Optimizer) evaluate(pair cyclePair, x uint64) *candidate {
	c := &candidate{amountIn: x}
	mid, err := o.quote(pair.buy, x, pair.buyDir)
	if err != nil {
		return c
	}
	final, err := o.quote(pair.sell, mid.AmountOut, pair.sellDir)
	if err != nil {
		return c
	}
	flashFee, ok := mulDivCeil64(x, uint64(o.params.FlashloanFeeBps), common.BpsDenominator)
	if !ok {
		return c
	}
	c.mid, c.final, c.flashFee = mid, final, flashFee
	c.profit = signedDiff(final.AmountOut, x, flashFee)
	c.feasible = true
	return c
}

// signedDiff is a - b - c saturated to the int64 range.
func signedDiff(a, b, c uint64) int64 {
	cost := b + c
	if cost < b {
		return math.MinInt64
	}
	if a >= cost {
		d := a - cost
		if d > math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(d)
	}
	d := cost - a
	if d > math.MaxInt64 {
		return math.MinInt64
	}
	return -int64(d)
}

// geometricSamples spreads n amounts between lo and hi, both included.
func geometricSamples(lo, hi uint64, n int) []uint64 {
	if lo == hi || n < 2 {
		return []uint64{lo}
	}
	ratio := float64(hi) / float64(lo)
	out := make([]uint64, 0, n)
	for k := 0; k < n; k++ {
		v := uint64(math.Round(float64(lo) * math.Pow(ratio, float64(k)/float64(n-1))))
		v = min(max(v, lo), hi)
		if k == n-1 {
			v = hi
		}
		if len(out) == 0 || v > out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// plan turns the chosen candidate into legs with slippage bounded minimums.
// The last leg must return at least the input plus the loan fee, so an
// execution that would lose money reverts on chain.
func (o *Optimizer) plan(group *domain.MintGroup, pair cyclePair, c *candidate) (*domain.RoutePlan, error) {
	if c.profit <= 0 {
		return nil, errors.New("refusing to plan a non positive profit")
	}
	buyIn, buyOut := pair.buy.Mints(pair.buyDir)
	sellIn, sellOut := pair.sell.Mints(pair.sellDir)

	first := domain.Leg{
		Pool:        pair.buy,
		Direction:   pair.buyDir,
		InputMint:   buyIn,
		OutputMint:  buyOut,
		AmountIn:    c.amountIn,
		ExpectedOut: c.mid.AmountOut,
		Fee:         c.mid.Fee,
		MinOut:      applySlippage(c.mid.AmountOut, o.params.SlippageBps),
	}
	last := domain.Leg{
		Pool:        pair.sell,
		Direction:   pair.sellDir,
		InputMint:   sellIn,
		OutputMint:  sellOut,
		AmountIn:    c.mid.AmountOut,
		ExpectedOut: c.final.AmountOut,
		Fee:         c.final.Fee,
		MinOut:      max(applySlippage(c.final.AmountOut, o.params.SlippageBps), c.amountIn+c.flashFee),
	}
	return &domain.RoutePlan{
		TargetMint:   group.TargetMint,
		BaseMint:     group.BaseMint,
		Legs:         []domain.Leg{first, last},
		AmountIn:     c.amountIn,
		FinalOut:     c.final.AmountOut,
		FlashloanFee: c.flashFee,
		Profit:       uint64(c.profit),
	}, nil
}

func applySlippage(amount uint64, bps uint16) uint64 {
	out, _ := mulDivFloor64(amount, common.BpsDenominator-uint64(bps), common.BpsDenominator)
	return out
}

// routeKey identifies a route by its pools, for logging.
func routeKey(plan *domain.RoutePlan) []solana.PublicKey {
	keys := make([]solana.PublicKey, len(plan.Legs))
	for i, leg := range plan.Legs {
		keys[i] = leg.Pool.Address
	}
	return keys
}
