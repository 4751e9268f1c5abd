package market

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
)

// MarketRegistry dispatches pool work to the codec, quoter and builder of
// each pool kind. Quoters and builders are registered by their own services
// during Configure so this package does not depend on them.
type MarketRegistry struct {
	mu        sync.RWMutex
	codecs    map[domain.PoolKind]PoolCodec
	byProgram map[solana.PublicKey]PoolCodec
	quoters   []PoolQuoter
	builders  []InstructionBuilder
}

func NewMarketRegistry() *MarketRegistry {
	return &MarketRegistry{
		codecs:    make(map[domain.PoolKind]PoolCodec),
		byProgram: make(map[solana.PublicKey]PoolCodec),
		quoters:   make([]PoolQuoter, 0),
		builders:  make([]InstructionBuilder, 0),
	}
}

// NewDefaultMarketRegistry registers the codecs of every supported kind.
func NewDefaultMarketRegistry() *MarketRegistry {
	r := NewMarketRegistry()
	r.RegisterCodec(NewRaydiumAMMCodec())
	r.RegisterCodec(NewRaydiumCPMMCodec())
	r.RegisterCodec(NewWhirlpoolCodec())
	r.RegisterCodec(NewMeteoraDLMMCodec())
	r.RegisterCodec(NewSaberCodec())
	r.RegisterCodec(NewPumpAMMCodec())
	return r
}

func (r *MarketRegistry) RegisterCodec(codec PoolCodec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[codec.Kind()] = codec
	r.byProgram[codec.ProgramID()] = codec
}

// RegisterQuoter adds a quoter. A second quoter of the same type is ignored.
func (r *MarketRegistry) RegisterQuoter(quoter PoolQuoter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.quoters {
		if reflect.TypeOf(q) == reflect.TypeOf(quoter) {
			return
		}
	}
	r.quoters = append(r.quoters, quoter)
}

// RegisterBuilder adds a builder. A second builder of the same type is
// ignored.
func (r *MarketRegistry) RegisterBuilder(builder InstructionBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.builders {
		if reflect.TypeOf(b) == reflect.TypeOf(builder) {
			return
		}
	}
	r.builders = append(r.builders, builder)
}

func (r *MarketRegistry) Codec(kind domain.PoolKind) (PoolCodec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codec, ok := r.codecs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedPoolKind, kind)
	}
	return codec, nil
}

// CodecForOwner maps an account owner to the codec of its pool kind.
func (r *MarketRegistry) CodecForOwner(owner solana.PublicKey) (PoolCodec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codec, ok := r.byProgram[owner]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownProgram, owner)
	}
	return codec, nil
}

func (r *MarketRegistry) Quote(pool *domain.PoolState, amountIn uint64, dir domain.Direction) (domain.Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, quoter := range r.quoters {
		if quoter.SupportsPoolKind(pool.Kind) {
			return quoter.Quote(pool, amountIn, dir)
		}
	}
	return domain.Quote{}, fmt.Errorf("no quoter found for pool kind %s: %w", pool.Kind, common.ErrUnsupportedPoolKind)
}

func (r *MarketRegistry) BuildSwap(
	leg *domain.Leg,
	owner solana.PublicKey,
	userSource solana.PublicKey,
	userDest solana.PublicKey,
) (solana.Instruction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, builder := range r.builders {
		if builder.SupportsPoolKind(leg.Pool.Kind) {
			return builder.BuildSwap(leg, owner, userSource, userDest)
		}
	}
	return nil, fmt.Errorf("no instruction builder found for pool kind %s: %w", leg.Pool.Kind, common.ErrUnsupportedPoolKind)
}
