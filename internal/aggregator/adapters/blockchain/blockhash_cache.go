package blockchain

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hxuan190/arb-engine/internal/config"
	"github.com/hxuan190/arb-engine/internal/metrics"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"
)

const BLOCKHASH_CACHE_SERVICE = "cache-blockhash-svc"

const (
	pollInterval = 400 * time.Millisecond
	// a cached hash older than this is refetched on read
	maxBlockhashAge = 2 * time.Second
)

// BlockhashReader is the slice of *rpc.Client the cache polls.
type BlockhashReader interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
}

type CachedBlockhash struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	Slot                 uint64
	UpdatedAt            time.Time
}

type BlockhashCacheService struct {
	container.BaseDIInstance

	mu       sync.RWMutex
	current  *CachedBlockhash
	reader   BlockhashReader
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewBlockhashCache(reader BlockhashReader, interval time.Duration) *BlockhashCacheService {
	return &BlockhashCacheService{reader: reader, interval: interval}
}

func (svc *BlockhashCacheService) ID() string {
	return BLOCKHASH_CACHE_SERVICE
}

func (svc *BlockhashCacheService) Configure(c container.IContainer) error {
	rpcConfig := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	svc.reader = rpc.New(rpcConfig.RPCUrl)
	svc.interval = pollInterval
	return nil
}

func (svc *BlockhashCacheService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	svc.cancel = cancel
	svc.done = make(chan struct{})

	if err := svc.refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("[BlockhashCacheService] failed to fetch initial blockhash, will retry on first request")
	}

	go svc.poll(ctx)
	log.Info().Dur("interval", svc.interval).Msg("[BlockhashCacheService] polling latest blockhash")
	return nil
}

func (svc *BlockhashCacheService) Stop() error {
	if svc.cancel != nil {
		svc.cancel()
		<-svc.done
	}
	return nil
}

func (svc *BlockhashCacheService) poll(ctx context.Context) {
	defer close(svc.done)
	ticker := time.NewTicker(svc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.refresh(ctx); err != nil && ctx.Err() == nil {
				log.Debug().Err(err).Msg("[BlockhashCacheService] blockhash poll failed")
			}
		}
	}
}

func (svc *BlockhashCacheService) refresh(ctx context.Context) error {
	res, err := svc.reader.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		metrics.BlockhashRefreshes.WithLabelValues("error").Inc()
		return err
	}
	metrics.BlockhashRefreshes.WithLabelValues("ok").Inc()

	svc.mu.Lock()
	svc.current = &CachedBlockhash{
		Blockhash:            res.Value.Blockhash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
		Slot:                 res.Context.Slot,
		UpdatedAt:            time.Now(),
	}
	svc.mu.Unlock()
	return nil
}

// GetBlockhash returns the cached hash while it is fresh and otherwise
// fetches one. A failed fetch falls back to the stale hash when there is one.
func (svc *BlockhashCacheService) GetBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	svc.mu.RLock()
	cached := svc.current
	svc.mu.RUnlock()

	if cached != nil && time.Since(cached.UpdatedAt) < maxBlockhashAge {
		return cached.Blockhash, cached.LastValidBlockHeight, nil
	}

	if err := svc.refresh(ctx); err != nil {
		if cached != nil {
			return cached.Blockhash, cached.LastValidBlockHeight, nil
		}
		return solana.Hash{}, 0, err
	}

	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.current.Blockhash, svc.current.LastValidBlockHeight, nil
}
