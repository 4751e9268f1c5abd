package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/config"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/metrics"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"
	"golang.org/x/sync/errgroup"
)

const (
	ServiceName = "MarketService"

	mintCacheMaxSize = 10000
	// parallel getMultipleAccounts requests per fetch
	fetchConcurrency = 4
)

// AccountReader is the slice of the RPC client the registry reads through.
type AccountReader interface {
	GetMultipleAccountsWithOpts(
		ctx context.Context,
		accounts []solana.PublicKey,
		opts *rpc.GetMultipleAccountsOpts,
	) (*rpc.GetMultipleAccountsResult, error)
}

// MintInfo is what the engine needs from a mint account.
type MintInfo struct {
	TokenProgram solana.PublicKey
	Decimals     uint8
}

// Service is the pool registry: it discovers mint groups at startup and
// produces fresh pool snapshots on demand.
type Service struct {
	container.BaseDIInstance

	reader   AccountReader
	registry *MarketRegistry
	baseMint solana.PublicKey
	cfg      *config.ArbConfig

	states *ShardedStateMap
	mints  *BoundedLRUCache[solana.PublicKey, MintInfo]

	mu           sync.RWMutex
	groups       []*domain.MintGroup
	lookupTables []solana.PublicKey

	now func() time.Time
}

// NewService builds a registry outside the container.
func NewService(reader AccountReader, registry *MarketRegistry, baseMint solana.PublicKey) *Service {
	svc := &Service{}
	svc.init(reader, registry, baseMint)
	return svc
}

func (svc *Service) init(reader AccountReader, registry *MarketRegistry, baseMint solana.PublicKey) {
	svc.reader = reader
	svc.registry = registry
	svc.baseMint = baseMint
	svc.states = NewShardedStateMap()
	svc.mints = NewBoundedLRUCache[solana.PublicKey, MintInfo](mintCacheMaxSize)
	svc.now = time.Now
}

func (svc *Service) ID() string {
	return ServiceName
}

func (svc *Service) Configure(c container.IContainer) error {
	rpcConfig := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	svc.cfg = c.GetConfig(config.ARB_CONFIG_KEY).(*config.ArbConfig)
	svc.init(rpc.New(rpcConfig.RPCUrl), NewDefaultMarketRegistry(), svc.cfg.BaseMint)
	return nil
}

func (svc *Service) Start() error {
	mf, err := config.LoadMarketsFile(svc.cfg.MarketsFile)
	if err != nil {
		return err
	}
	spec, err := mf.Parse(svc.cfg.ProcessDelay)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := svc.Discover(ctx, spec); err != nil {
		return err
	}
	return nil
}

func (svc *Service) Stop() error {
	return nil
}

func (svc *Service) Registry() *MarketRegistry {
	return svc.registry
}

func (svc *Service) BaseMint() solana.PublicKey {
	return svc.baseMint
}

// Groups returns the mint groups found at startup.
func (svc *Service) Groups() []*domain.MintGroup {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.groups
}

// LookupTables lists every table named in the markets file.
func (svc *Service) LookupTables() []solana.PublicKey {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.lookupTables
}

// Snapshot returns the last published state of a pool.
func (svc *Service) Snapshot(address solana.PublicKey) (*domain.PoolState, bool) {
	return svc.states.Get(address)
}

// GroupSnapshots returns the published states of a group's pools in group
// order. Pools left out of their last refresh have none.
func (svc *Service) GroupSnapshots(mint solana.PublicKey) ([]*domain.PoolState, bool) {
	var group *domain.MintGroup
	for _, g := range svc.Groups() {
		if g.TargetMint == mint {
			group = g
			break
		}
	}
	if group == nil {
		return nil, false
	}
	out := make([]*domain.PoolState, 0, len(group.Pools))
	for _, p := range group.Pools {
		if st, ok := svc.states.Get(p.Address); ok {
			out = append(out, st)
		}
	}
	return out, true
}

func (svc *Service) MintInfo(mint solana.PublicKey) (MintInfo, bool) {
	return svc.mints.Get(mint)
}

// FetchAccounts reads accounts in getMultipleAccounts sized batches. Missing
// accounts are absent from the result.
func (svc *Service) FetchAccounts(ctx context.Context, keys []solana.PublicKey) (map[solana.PublicKey]*rpc.Account, error) {
	keys = dedupe(keys)
	out := make(map[solana.PublicKey]*rpc.Account, len(keys))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for start := 0; start < len(keys); start += common.MaxAccountsPerRequest {
		batch := keys[start:min(start+common.MaxAccountsPerRequest, len(keys))]
		g.Go(func() error {
			res, err := svc.reader.GetMultipleAccountsWithOpts(gctx, batch, &rpc.GetMultipleAccountsOpts{
				Encoding:   solana.EncodingBase64,
				Commitment: rpc.CommitmentProcessed,
			})
			if err != nil {
				return fmt.Errorf("%w: getMultipleAccounts: %v", common.ErrTransport, err)
			}
			if res == nil || len(res.Value) != len(batch) {
				return fmt.Errorf("%w: getMultipleAccounts returned a short result", common.ErrTransport)
			}
			mu.Lock()
			for i, acc := range res.Value {
				if acc != nil && acc.Data != nil {
					out[batch[i]] = acc
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Discover classifies the configured pools by owner program, keeps those
// trading the base mint and groups them by their other mint. Groups with
// fewer than two pools cannot cycle and are dropped.
func (svc *Service) Discover(ctx context.Context, spec *config.MarketSpec) error {
	type candidate struct {
		pool   domain.GroupPool
		target solana.PublicKey
	}

	requested := append([]solana.PublicKey{}, spec.Ungrouped...)
	for _, g := range spec.Groups {
		requested = append(requested, g.Pools...)
	}
	accounts, err := svc.FetchAccounts(ctx, requested)
	if err != nil {
		return err
	}

	classify := func(address solana.PublicKey) (candidate, bool) {
		acc, ok := accounts[address]
		if !ok {
			log.Warn().Str("pool", address.String()).Msg("[MarketService] pool account not found, skipping")
			return candidate{}, false
		}
		codec, err := svc.registry.CodecForOwner(acc.Owner)
		if err != nil {
			log.Warn().Err(err).Str("pool", address.String()).Msg("[MarketService] unsupported pool, skipping")
			return candidate{}, false
		}
		a, b, err := codec.Mints(acc.Data.GetBinary())
		if err != nil {
			log.Warn().Err(err).Str("pool", address.String()).Msg("[MarketService] cannot read pool mints, skipping")
			return candidate{}, false
		}
		var target solana.PublicKey
		switch svc.baseMint {
		case a:
			target = b
		case b:
			target = a
		default:
			log.Warn().Str("pool", address.String()).Msg("[MarketService] pool does not trade the base mint, skipping")
			return candidate{}, false
		}
		return candidate{pool: domain.GroupPool{Address: address, Kind: codec.Kind()}, target: target}, true
	}

	byMint := make(map[solana.PublicKey]*domain.MintGroup)
	var order []solana.PublicKey
	seen := make(map[solana.PublicKey]struct{})
	groupFor := func(target solana.PublicKey, delay time.Duration, luts []solana.PublicKey) *domain.MintGroup {
		g, ok := byMint[target]
		if !ok {
			g = &domain.MintGroup{
				TargetMint:   target,
				BaseMint:     svc.baseMint,
				ProcessDelay: delay,
				LookupTables: append(append([]solana.PublicKey{}, spec.LookupTables...), luts...),
			}
			byMint[target] = g
			order = append(order, target)
		}
		return g
	}
	add := func(g *domain.MintGroup, p domain.GroupPool) {
		if _, dup := seen[p.Address]; dup {
			return
		}
		seen[p.Address] = struct{}{}
		g.Pools = append(g.Pools, p)
	}

	for _, gs := range spec.Groups {
		g := groupFor(gs.Mint, gs.ProcessDelay, gs.LookupTables)
		for _, addr := range gs.Pools {
			c, ok := classify(addr)
			if !ok {
				continue
			}
			if c.target != gs.Mint {
				log.Warn().
					Str("pool", addr.String()).
					Str("group", gs.Mint.String()).
					Str("label", gs.Labels[addr]).
					Msg("[MarketService] pool does not trade the group mint, skipping")
				continue
			}
			add(g, c.pool)
		}
	}
	for _, addr := range spec.Ungrouped {
		c, ok := classify(addr)
		if !ok {
			continue
		}
		add(groupFor(c.target, spec.ProcessDelay, nil), c.pool)
	}

	groups := make([]*domain.MintGroup, 0, len(order))
	mints := []solana.PublicKey{svc.baseMint}
	for _, target := range order {
		g := byMint[target]
		if len(g.Pools) < 2 {
			log.Warn().Str("mint", target.String()).Int("pools", len(g.Pools)).Msg("[MarketService] group needs at least two pools, dropping")
			continue
		}
		groups = append(groups, g)
		mints = append(mints, target)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].TargetMint.String() < groups[j].TargetMint.String()
	})

	if err := svc.loadMints(ctx, mints); err != nil {
		return err
	}

	luts := append([]solana.PublicKey{}, spec.LookupTables...)
	for _, g := range spec.Groups {
		luts = append(luts, g.LookupTables...)
	}

	svc.mu.Lock()
	svc.groups = groups
	svc.lookupTables = dedupe(luts)
	svc.mu.Unlock()

	for _, g := range groups {
		metrics.GroupPools.WithLabelValues(g.TargetMint.String()).Set(float64(len(g.Pools)))
	}
	log.Info().Int("groups", len(groups)).Int("lookup_tables", len(luts)).Msg("[MarketService] discovery complete")
	if len(groups) == 0 {
		return errors.New("no tradable mint group found")
	}
	return nil
}

// loadMints caches token program and decimals of every mint not seen yet.
func (svc *Service) loadMints(ctx context.Context, mints []solana.PublicKey) error {
	missing := make([]solana.PublicKey, 0, len(mints))
	for _, m := range mints {
		if _, ok := svc.mints.Get(m); !ok {
			missing = append(missing, m)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	accounts, err := svc.FetchAccounts(ctx, missing)
	if err != nil {
		return err
	}
	for _, m := range missing {
		acc, ok := accounts[m]
		if !ok {
			log.Warn().Str("mint", m.String()).Msg("[MarketService] mint account not found")
			continue
		}
		decimals, err := decodeMint(acc.Data.GetBinary())
		if err != nil {
			log.Warn().Err(err).Str("mint", m.String()).Msg("[MarketService] cannot decode mint")
			continue
		}
		svc.mints.Set(m, MintInfo{TokenProgram: acc.Owner, Decimals: decimals})
	}
	metrics.MintCacheSize.Set(float64(svc.mints.Len()))
	return nil
}

// Refresh fetches the pools of a group and every account their decoders
// depend on, then decodes them. A pool that fails any step is left out of
// the result; the error return is reserved for failures of the whole fetch.
func (svc *Service) Refresh(ctx context.Context, group *domain.MintGroup) ([]*domain.PoolState, error) {
	started := svc.now()
	defer func() {
		metrics.PoolRefreshDuration.Observe(time.Since(started).Seconds())
	}()

	poolAccounts, err := svc.FetchAccounts(ctx, group.Addresses())
	if err != nil {
		return nil, err
	}

	type pending struct {
		pool  domain.GroupPool
		codec PoolCodec
		data  []byte
		deps  []solana.PublicKey
	}
	work := make([]pending, 0, len(group.Pools))
	var depKeys []solana.PublicKey
	for _, p := range group.Pools {
		acc, ok := poolAccounts[p.Address]
		if !ok {
			svc.omit(p, fmt.Errorf("%w: pool account not found", common.ErrDecode))
			continue
		}
		codec, err := svc.registry.Codec(p.Kind)
		if err != nil {
			svc.omit(p, err)
			continue
		}
		if acc.Owner != codec.ProgramID() {
			svc.omit(p, common.NewDecodeError(p.Kind.String(), p.Address, "owner changed to %s", acc.Owner))
			continue
		}
		data := acc.Data.GetBinary()
		deps, err := codec.Dependencies(p.Address, data)
		if err != nil {
			svc.omit(p, err)
			continue
		}
		work = append(work, pending{pool: p, codec: codec, data: data, deps: deps})
		depKeys = append(depKeys, deps...)
	}

	depAccounts, err := svc.FetchAccounts(ctx, depKeys)
	if err != nil {
		return nil, err
	}

	ts := svc.now().Unix()
	states := make([]*domain.PoolState, 0, len(work))
	for _, w := range work {
		set := make(domain.AccountSet, len(w.deps))
		for _, k := range w.deps {
			if acc, ok := depAccounts[k]; ok {
				set[k] = acc.Data.GetBinary()
			}
		}
		state, err := w.codec.Decode(w.pool.Address, w.data, set)
		if err != nil {
			svc.omit(w.pool, err)
			continue
		}
		if !poolReady(defaultValidators, state) {
			svc.states.Delete(state.Address)
			log.Debug().Str("pool", state.Address.String()).Str("kind", state.Kind.String()).Msg("[MarketService] pool not tradable, skipped")
			continue
		}
		state.Timestamp = ts
		svc.fillTokenPrograms(state)
		svc.states.Publish(state)
		states = append(states, state)
	}
	metrics.PoolSnapshots.Set(float64(svc.states.Len()))
	return states, nil
}

// omit drops the pool's last snapshot so status readers never see a state
// older than the failed refresh.
func (svc *Service) omit(p domain.GroupPool, err error) {
	svc.states.Delete(p.Address)
	metrics.PoolDecodeErrors.WithLabelValues(p.Kind.String()).Inc()
	log.Warn().Err(err).Str("pool", p.Address.String()).Str("kind", p.Kind.String()).Msg("[MarketService] pool omitted from refresh")
}

func (svc *Service) fillTokenPrograms(state *domain.PoolState) {
	if state.TokenProgramA.IsZero() {
		state.TokenProgramA = svc.tokenProgram(state.MintA)
	}
	if state.TokenProgramB.IsZero() {
		state.TokenProgramB = svc.tokenProgram(state.MintB)
	}
}

func (svc *Service) tokenProgram(mint solana.PublicKey) solana.PublicKey {
	if info, ok := svc.mints.Get(mint); ok {
		return info.TokenProgram
	}
	return common.TokenProgramID
}

func dedupe(keys []solana.PublicKey) []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{}, len(keys))
	out := make([]solana.PublicKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
