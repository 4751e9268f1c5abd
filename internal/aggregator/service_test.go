package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/services/builder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePools struct {
	groups []*domain.MintGroup
	states []*domain.PoolState
	err    error
}

func (f *fakePools) Groups() []*domain.MintGroup {
	return f.groups
}

func (f *fakePools) Refresh(_ context.Context, _ *domain.MintGroup) ([]*domain.PoolState, error) {
	return f.states, f.err
}

type fakeRoutes struct {
	route *domain.RoutePlan
	err   error
	// block waits for the cycle deadline before answering
	block bool
}

func (f *fakeRoutes) FindRoute(ctx context.Context, _ *domain.MintGroup, _ []*domain.PoolState) (*domain.RoutePlan, error) {
	if f.block {
		<-ctx.Done()
	}
	return f.route, f.err
}

type fakeFees struct {
	price uint64
}

func (f *fakeFees) Price(_ context.Context, _ *domain.RoutePlan) uint64 {
	return f.price
}

type fakePlans struct {
	mu         sync.Mutex
	err        error
	wallets    []builder.WalletContext
	tokenPlans []*domain.TransactionPlan
}

func (f *fakePlans) Build(route *domain.RoutePlan, wallet builder.WalletContext) (*domain.TransactionPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallets = append(f.wallets, wallet)
	if f.err != nil {
		return nil, f.err
	}
	var sig solana.Signature
	sig[0] = 1
	return &domain.TransactionPlan{Route: route, Blockhash: wallet.Blockhash, Signature: sig}, nil
}

func (f *fakePlans) TokenAccountPlans(_ context.Context, _ builder.WalletContext) ([]*domain.TransactionPlan, error) {
	return f.tokenPlans, nil
}

type fakeSender struct {
	status domain.SubmissionStatus
	calls  atomic.Int32
}

func (f *fakeSender) Submit(_ context.Context, plan *domain.TransactionPlan) []domain.SubmissionResult {
	f.calls.Add(1)
	return []domain.SubmissionResult{
		{Endpoint: "a", Status: f.status, Signature: plan.Signature, Attempts: 1},
		{Endpoint: "b", Status: f.status, Signature: plan.Signature, Attempts: 1},
	}
}

type fakeBlockhash struct {
	hash solana.Hash
	err  error
}

func (f *fakeBlockhash) GetBlockhash(_ context.Context) (solana.Hash, uint64, error) {
	return f.hash, 100, f.err
}

type harness struct {
	pools     *fakePools
	routes    *fakeRoutes
	plans     *fakePlans
	sender    *fakeSender
	blockhash *fakeBlockhash
	svc       *Service
	group     *domain.MintGroup
}

func newHarness(budget time.Duration, escalateAfter int) *harness {
	base, target := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	group := &domain.MintGroup{
		TargetMint:   target,
		BaseMint:     base,
		ProcessDelay: 5 * time.Millisecond,
		Pools: []domain.GroupPool{
			{Address: solana.NewWallet().PublicKey(), Kind: domain.PoolKindRaydiumAMM},
			{Address: solana.NewWallet().PublicKey(), Kind: domain.PoolKindRaydiumCPMM},
		},
	}
	states := []*domain.PoolState{
		{Address: group.Pools[0].Address, Kind: domain.PoolKindRaydiumAMM, MintA: base, MintB: target},
		{Address: group.Pools[1].Address, Kind: domain.PoolKindRaydiumCPMM, MintA: base, MintB: target},
	}

	h := &harness{
		pools:     &fakePools{groups: []*domain.MintGroup{group}, states: states},
		routes:    &fakeRoutes{route: &domain.RoutePlan{TargetMint: target, BaseMint: base, AmountIn: 1_000, FinalOut: 1_500, Profit: 500}},
		plans:     &fakePlans{},
		sender:    &fakeSender{status: domain.SubmissionAccepted},
		blockhash: &fakeBlockhash{hash: solana.Hash{9}},
		group:     group,
	}
	h.svc = NewService(Dependencies{
		Pools:     h.pools,
		Routes:    h.routes,
		Fees:      &fakeFees{price: 7_000},
		Plans:     h.plans,
		Sender:    h.sender,
		Blockhash: h.blockhash,
	}, solana.NewWallet().PrivateKey, budget, escalateAfter)
	h.svc.status = map[solana.PublicKey]*GroupStatus{target: {Mint: target, BaseMint: base, PoolCount: 2}}
	return h
}

func TestRunCycleSubmits(t *testing.T) {
	h := newHarness(time.Second, 3)

	res := h.svc.runCycle(context.Background(), h.group)

	assert.Equal(t, OutcomeSubmitted, res.Outcome)
	assert.Equal(t, uint64(500), res.Profit)
	assert.Equal(t, 2, res.Pools)
	assert.Len(t, res.Submissions, 2)
	assert.Equal(t, int32(1), h.sender.calls.Load())
	require.Len(t, h.plans.wallets, 1)
	assert.Equal(t, solana.Hash{9}, h.plans.wallets[0].Blockhash)
	assert.Equal(t, uint64(7_000), h.plans.wallets[0].ComputeUnitPrice)
}

func TestRunCycleNoRoute(t *testing.T) {
	h := newHarness(time.Second, 3)
	h.routes.route = nil

	res := h.svc.runCycle(context.Background(), h.group)

	assert.Equal(t, OutcomeNoRoute, res.Outcome)
	assert.Empty(t, h.plans.wallets)
	assert.Zero(t, h.sender.calls.Load())
}

func TestRunCycleDropsStaleCycle(t *testing.T) {
	h := newHarness(20*time.Millisecond, 3)
	h.routes.block = true

	res := h.svc.runCycle(context.Background(), h.group)

	assert.Equal(t, OutcomeStale, res.Outcome)
	assert.Equal(t, "stale", res.Reason)
	assert.Zero(t, h.sender.calls.Load())
}

func TestRunCycleSkips(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(h *harness)
		reason string
	}{
		{"blockhash", func(h *harness) { h.blockhash.err = errors.New("connection refused") }, "blockhash"},
		{"refresh", func(h *harness) { h.pools.err = fmt.Errorf("%w: 502", common.ErrTransport) }, "refresh"},
		{"pools", func(h *harness) { h.pools.states = h.pools.states[:1] }, "pools"},
		{"search", func(h *harness) { h.routes.err = common.ErrMathOverflow }, "search"},
		{"too_large", func(h *harness) { h.plans.err = fmt.Errorf("%w: 1400 bytes", common.ErrPlanTooLarge) }, "too_large"},
		{"build", func(h *harness) { h.plans.err = common.ErrUnsupportedPoolKind }, "build"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(time.Second, 3)
			tc.setup(h)

			res := h.svc.runCycle(context.Background(), h.group)

			assert.Equal(t, OutcomeSkipped, res.Outcome)
			assert.Equal(t, tc.reason, res.Reason)
			assert.Zero(t, h.sender.calls.Load())
		})
	}
}

func failedCycle(mint solana.PublicKey) CycleResult {
	return CycleResult{
		Mint:    mint,
		Outcome: OutcomeSubmitted,
		Reason:  "submitted",
		Started: time.Now(),
		Submissions: []domain.SubmissionResult{
			{Endpoint: "a", Status: domain.SubmissionTimedOut},
			{Endpoint: "b", Status: domain.SubmissionRejected},
		},
	}
}

func TestRecordEscalatesAfterConsecutiveFailures(t *testing.T) {
	h := newHarness(time.Second, 3)
	mint := h.group.TargetMint

	h.svc.record(failedCycle(mint))
	h.svc.record(failedCycle(mint))
	st, ok := h.svc.Status(mint)
	require.True(t, ok)
	assert.Equal(t, 2, st.ConsecutiveFailures)
	assert.False(t, st.Escalated)

	// cycles that never submitted leave the streak alone
	h.svc.record(CycleResult{Mint: mint, Outcome: OutcomeNoRoute, Reason: "no_route"})
	h.svc.record(failedCycle(mint))
	st, _ = h.svc.Status(mint)
	assert.Equal(t, 3, st.ConsecutiveFailures)
	assert.True(t, st.Escalated)
	assert.Equal(t, uint64(4), st.Cycles)
	assert.Equal(t, uint64(3), st.Submitted)

	ok1 := failedCycle(mint)
	ok1.Submissions[1].Status = domain.SubmissionAccepted
	h.svc.record(ok1)
	st, _ = h.svc.Status(mint)
	assert.Zero(t, st.ConsecutiveFailures)
	assert.False(t, st.Escalated)
}

func TestEngineRunsGroupLoops(t *testing.T) {
	h := newHarness(time.Second, 2)
	h.sender.status = domain.SubmissionTimedOut
	h.plans.tokenPlans = []*domain.TransactionPlan{{}}

	require.NoError(t, h.svc.Start())
	require.Eventually(t, func() bool {
		st, ok := h.svc.Status(h.group.TargetMint)
		return ok && st.Submitted >= 3
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.svc.Stop())

	statuses := h.svc.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, 2, statuses[0].PoolCount)
	assert.Equal(t, uint64(500), statuses[0].LastProfit)
	assert.True(t, statuses[0].Escalated)
	assert.GreaterOrEqual(t, statuses[0].ConsecutiveFailures, 2)
	// one token account plan plus one broadcast per submitted cycle
	assert.Equal(t, int32(statuses[0].Submitted)+1, h.sender.calls.Load())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "no_route", OutcomeNoRoute.String())
	assert.Equal(t, "stale", OutcomeStale.String())
	assert.Equal(t, "submitted", OutcomeSubmitted.String())
}
