package builder

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hxuan190/arb-engine/internal/metrics"
	"github.com/rs/zerolog/log"
)

// AccountFetcher reads raw accounts in batches. The market service
// implements it.
type AccountFetcher interface {
	FetchAccounts(ctx context.Context, keys []solana.PublicKey) (map[solana.PublicKey]*rpc.Account, error)
}

// LUTManager fetches and caches Address Lookup Table states for V0 transactions.
// Uses atomic.Value for lock-free reads on the hot path.
type LUTManager struct {
	fetcher   AccountFetcher
	addresses []solana.PublicKey
	tables    atomic.Value // map[solana.PublicKey]solana.PublicKeySlice
	interval  time.Duration
}

// NewLUTManager creates a new LUT manager. If addresses is empty,
// GetAddressTables returns an empty map and every account is referenced
// from the static key list.
func NewLUTManager(fetcher AccountFetcher, addresses []solana.PublicKey, refreshInterval time.Duration) *LUTManager {
	m := &LUTManager{
		fetcher:   fetcher,
		addresses: dedupeKeys(addresses),
		interval:  refreshInterval,
	}
	m.tables.Store(make(map[solana.PublicKey]solana.PublicKeySlice))
	return m
}

// Start fetches LUT states immediately, then refreshes in the background.
func (m *LUTManager) Start(ctx context.Context) {
	if len(m.addresses) == 0 {
		log.Info().Msg("[LUTManager] no lookup tables configured")
		return
	}

	m.refresh(ctx)

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refresh(ctx)
			}
		}
	}()
}

// GetAddressTables returns the cached lookup tables for use with
// solana.TransactionAddressTables().
func (m *LUTManager) GetAddressTables() map[solana.PublicKey]solana.PublicKeySlice {
	return m.tables.Load().(map[solana.PublicKey]solana.PublicKeySlice)
}

// refresh replaces the cache with every active table it could read. A failed
// batch keeps the previous cache.
func (m *LUTManager) refresh(ctx context.Context) {
	accounts, err := m.fetcher.FetchAccounts(ctx, m.addresses)
	if err != nil {
		log.Warn().Err(err).Msg("[LUTManager] failed to fetch lookup tables")
		return
	}

	tables := make(map[solana.PublicKey]solana.PublicKeySlice, len(m.addresses))
	for _, addr := range m.addresses {
		acc, ok := accounts[addr]
		if !ok {
			log.Warn().Str("lut", addr.String()).Msg("[LUTManager] lookup table not found")
			continue
		}
		state, err := addresslookuptable.DecodeAddressLookupTableState(acc.Data.GetBinary())
		if err != nil {
			log.Warn().Err(err).Str("lut", addr.String()).Msg("[LUTManager] failed to decode lookup table")
			continue
		}
		if !state.IsActive() {
			log.Warn().Str("lut", addr.String()).Msg("[LUTManager] lookup table is deactivated, skipping")
			continue
		}
		tables[addr] = state.Addresses
		log.Debug().
			Str("lut", addr.String()).
			Int("addresses", len(state.Addresses)).
			Msg("[LUTManager] loaded lookup table")
	}

	m.tables.Store(tables)
	metrics.LookupTablesLoaded.Set(float64(len(tables)))
	log.Info().Int("tables", len(tables)).Msg("[LUTManager] refresh complete")
}

func dedupeKeys(keys []solana.PublicKey) []solana.PublicKey {
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
