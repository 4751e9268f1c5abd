package aggregator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/config"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/metrics"
	"github.com/hxuan190/arb-engine/internal/services"
	"github.com/hxuan190/arb-engine/internal/services/builder"
	"github.com/hxuan190/arb-engine/internal/services/market"
	"github.com/hxuan190/arb-engine/internal/services/priority"
	"github.com/hxuan190/arb-engine/internal/services/router"
	"github.com/hxuan190/arb-engine/internal/services/sender"
	container "github.com/thehyperflames/dicontainer-go"
)

const AGGREGATOR_SERVICE = "aggregator-service"

const (
	defaultProcessDelay = 400 * time.Millisecond
	provisionTimeout    = 30 * time.Second
)

type PoolSource interface {
	Groups() []*domain.MintGroup
	Refresh(ctx context.Context, group *domain.MintGroup) ([]*domain.PoolState, error)
}

type RouteFinder interface {
	FindRoute(ctx context.Context, group *domain.MintGroup, states []*domain.PoolState) (*domain.RoutePlan, error)
}

type FeePricer interface {
	Price(ctx context.Context, route *domain.RoutePlan) uint64
}

type PlanBuilder interface {
	Build(route *domain.RoutePlan, wallet builder.WalletContext) (*domain.TransactionPlan, error)
	TokenAccountPlans(ctx context.Context, wallet builder.WalletContext) ([]*domain.TransactionPlan, error)
}

type Broadcaster interface {
	Submit(ctx context.Context, plan *domain.TransactionPlan) []domain.SubmissionResult
}

type BlockhashSource interface {
	GetBlockhash(ctx context.Context) (solana.Hash, uint64, error)
}

// Service is the engine: one cycle loop per mint group feeding a single
// collector that owns the per-group status.
type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	pools     PoolSource
	routes    RouteFinder
	fees      FeePricer
	plans     PlanBuilder
	sender    Broadcaster
	blockhash BlockhashSource
	signer    builder.Signer

	cycleBudget   time.Duration
	escalateAfter int

	outcomes chan CycleResult
	mu       sync.RWMutex
	status   map[solana.PublicKey]*GroupStatus

	cancel    context.CancelFunc
	loops     sync.WaitGroup
	collected chan struct{}
}

// NewEngine returns an engine that signs with signer. Its collaborators are
// resolved from the container in Configure.
func NewEngine(signer builder.Signer) *Service {
	return &Service{signer: signer}
}

// Dependencies holds the collaborators of an engine built outside the
// container.
type Dependencies struct {
	Pools     PoolSource
	Routes    RouteFinder
	Fees      FeePricer
	Plans     PlanBuilder
	Sender    Broadcaster
	Blockhash BlockhashSource
}

func NewService(deps Dependencies, signer builder.Signer, cycleBudget time.Duration, escalateAfter int) *Service {
	svc := &Service{
		pools:         deps.Pools,
		routes:        deps.Routes,
		fees:          deps.Fees,
		plans:         deps.Plans,
		sender:        deps.Sender,
		blockhash:     deps.Blockhash,
		signer:        signer,
		cycleBudget:   cycleBudget,
		escalateAfter: max(escalateAfter, 1),
	}
	svc.logger = services.NewServiceLogger(svc)
	return svc
}

func (svc *Service) ID() string {
	return AGGREGATOR_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	arbConfig := c.GetConfig(config.ARB_CONFIG_KEY).(*config.ArbConfig)

	svc.pools = c.Instance(market.ServiceName).(*market.Service)
	svc.routes = c.Instance(router.ROUTER_SERVICE).(*router.Service)
	svc.fees = c.Instance(priority.PRIORITY_SERVICE_NAME).(*priority.Service)
	svc.plans = c.Instance(builder.BUILDER_SERVICE_NAME).(*builder.Service)
	svc.sender = c.Instance(sender.SENDER_SERVICE_NAME).(*sender.Service)
	svc.blockhash = c.Instance(blockchain.BLOCKHASH_CACHE_SERVICE).(*blockchain.BlockhashCacheService)

	svc.cycleBudget = arbConfig.CycleBudget
	svc.escalateAfter = max(arbConfig.EscalateAfter, 1)
	if svc.signer == nil {
		return errors.New("engine has no signer")
	}
	return nil
}

func (svc *Service) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	svc.cancel = cancel

	svc.provisionTokenAccounts(ctx)

	groups := svc.pools.Groups()
	svc.outcomes = make(chan CycleResult, max(len(groups), 1))
	svc.collected = make(chan struct{})
	svc.status = make(map[solana.PublicKey]*GroupStatus, len(groups))
	for _, g := range groups {
		svc.status[g.TargetMint] = &GroupStatus{Mint: g.TargetMint, BaseMint: g.BaseMint, PoolCount: len(g.Pools)}
	}

	go svc.collect()
	for _, g := range groups {
		svc.loops.Add(1)
		go svc.runGroup(ctx, g)
	}

	svc.logger.Info().
		Int("groups", len(groups)).
		Str("signer", svc.signer.PublicKey().String()).
		Dur("cycle_budget", svc.cycleBudget).
		Msg("[Engine] started")
	return nil
}

// Stop cancels every group loop, waits for them to finish their current
// step, then drains the collector.
func (svc *Service) Stop() error {
	if svc.cancel == nil {
		return nil
	}
	svc.cancel()
	svc.loops.Wait()
	close(svc.outcomes)
	<-svc.collected
	svc.logger.Info().Msg("[Engine] stopped")
	return nil
}

// provisionTokenAccounts creates the wallet's missing token accounts. A
// failure is logged; the routes touching that mint will fail on chain.
func (svc *Service) provisionTokenAccounts(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, provisionTimeout)
	defer cancel()

	hash, _, err := svc.blockhash.GetBlockhash(ctx)
	if err != nil {
		svc.logger.Warn().Err(err).Msg("[Engine] skipping token account check, no blockhash")
		return
	}
	plans, err := svc.plans.TokenAccountPlans(ctx, builder.WalletContext{Signer: svc.signer, Blockhash: hash})
	if err != nil {
		svc.logger.Warn().Err(err).Msg("[Engine] token account check failed")
		return
	}
	for _, plan := range plans {
		results := svc.sender.Submit(ctx, plan)
		ev := svc.logger.Info()
		if !anyAccepted(results) {
			ev = svc.logger.Warn()
		}
		ev.Str("signature", plan.Signature.String()).
			Int("instructions", len(plan.Instructions)).
			Msg("[Engine] token account creation sent")
	}
}

func (svc *Service) runGroup(ctx context.Context, group *domain.MintGroup) {
	defer svc.loops.Done()

	delay := group.ProcessDelay
	if delay <= 0 {
		delay = defaultProcessDelay
	}
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for {
		// the collector drains until every loop has returned
		svc.outcomes <- svc.runCycle(ctx, group)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runCycle refreshes the group, searches it and submits the best route.
// Refresh and search share the cycle budget; a cycle whose budget ran out
// before submission is dropped as stale.
func (svc *Service) runCycle(ctx context.Context, group *domain.MintGroup) (res CycleResult) {
	res = CycleResult{Mint: group.TargetMint, Started: time.Now()}
	defer func() {
		res.Duration = time.Since(res.Started)
	}()

	cycleCtx := ctx
	if svc.cycleBudget > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, svc.cycleBudget)
		defer cancel()
	}

	skip := func(reason string, err error) CycleResult {
		res.Outcome = OutcomeSkipped
		if cycleCtx.Err() != nil && ctx.Err() == nil {
			res.Outcome = OutcomeStale
			reason = "stale"
		}
		res.Reason = reason
		res.Err = err
		return res
	}

	hash, _, err := svc.blockhash.GetBlockhash(cycleCtx)
	if err != nil {
		return skip("blockhash", err)
	}

	states, err := svc.pools.Refresh(cycleCtx, group)
	if err != nil {
		return skip("refresh", err)
	}
	res.Pools = len(states)
	if len(states) < 2 {
		return skip("pools", nil)
	}

	route, err := svc.routes.FindRoute(cycleCtx, group, states)
	if err != nil {
		return skip("search", err)
	}
	if route == nil {
		res.Outcome = OutcomeNoRoute
		res.Reason = OutcomeNoRoute.String()
		return res
	}
	res.Profit = route.Profit

	price := svc.fees.Price(cycleCtx, route)
	plan, err := svc.plans.Build(route, builder.WalletContext{
		Signer:           svc.signer,
		Blockhash:        hash,
		ComputeUnitPrice: price,
	})
	if err != nil {
		if errors.Is(err, common.ErrPlanTooLarge) {
			return skip("too_large", err)
		}
		return skip("build", err)
	}
	if cycleCtx.Err() != nil {
		return skip("stale", cycleCtx.Err())
	}

	// the broadcast has its own timeout, independent of the cycle budget
	res.Submissions = svc.sender.Submit(ctx, plan)
	res.Signature = plan.Signature
	res.Outcome = OutcomeSubmitted
	res.Reason = OutcomeSubmitted.String()
	return res
}

// collect is the only writer of the group status.
func (svc *Service) collect() {
	defer close(svc.collected)
	for res := range svc.outcomes {
		metrics.CycleDuration.Observe(res.Duration.Seconds())
		if res.Outcome == OutcomeSkipped || res.Outcome == OutcomeStale {
			metrics.CyclesSkipped.WithLabelValues(res.Reason).Inc()
		}
		svc.record(res)
	}
}

func (svc *Service) record(res CycleResult) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	st, ok := svc.status[res.Mint]
	if !ok {
		st = &GroupStatus{Mint: res.Mint}
		svc.status[res.Mint] = st
	}
	st.Cycles++
	st.LastCycle = res.Started
	st.LastResult = res.Reason
	st.LastError = ""
	if res.Err != nil {
		st.LastError = res.Err.Error()
	}

	mint := res.Mint.String()
	switch res.Outcome {
	case OutcomeSkipped, OutcomeStale:
		svc.logger.Debug().Err(res.Err).Str("mint", mint).Str("reason", res.Reason).Msg("[Engine] cycle skipped")
		return
	case OutcomeNoRoute:
		return
	}

	st.Submitted++
	st.LastProfit = res.Profit
	st.LastSignature = res.Signature.String()
	if !res.allFailed() {
		if st.Escalated {
			svc.logger.Info().Str("mint", mint).Int("failed_cycles", st.ConsecutiveFailures).Msg("[Engine] endpoints recovered")
		}
		st.ConsecutiveFailures = 0
		st.Escalated = false
		return
	}

	st.ConsecutiveFailures++
	if st.ConsecutiveFailures%svc.escalateAfter == 0 {
		st.Escalated = true
		outcomes := make([]string, len(res.Submissions))
		for i, s := range res.Submissions {
			outcomes[i] = s.Endpoint + "=" + s.Status.String()
		}
		svc.logger.Error().
			Str("mint", mint).
			Int("failed_cycles", st.ConsecutiveFailures).
			Strs("endpoints", outcomes).
			Msg("[Engine] every endpoint failing")
	}
}

// Statuses returns a copy of every group's status ordered by mint.
func (svc *Service) Statuses() []GroupStatus {
	svc.mu.RLock()
	out := make([]GroupStatus, 0, len(svc.status))
	for _, st := range svc.status {
		out = append(out, *st)
	}
	svc.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Mint.String() < out[j].Mint.String()
	})
	return out
}

func (svc *Service) Status(mint solana.PublicKey) (GroupStatus, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	st, ok := svc.status[mint]
	if !ok {
		return GroupStatus{}, false
	}
	return *st, true
}

func anyAccepted(results []domain.SubmissionResult) bool {
	for _, r := range results {
		if r.Status == domain.SubmissionAccepted {
			return true
		}
	}
	return false
}
