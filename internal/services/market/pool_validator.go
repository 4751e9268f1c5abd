package market

import (
	"github.com/hxuan190/arb-engine/internal/domain"
)

// PoolValidator decides whether a freshly decoded pool can be quoted.
type PoolValidator interface {
	IsReady(pool *domain.PoolState) bool
	SupportsPoolKind(kind domain.PoolKind) bool
}

// ReserveValidator requires both sides to hold tokens. It applies to every
// kind.
type ReserveValidator struct{}

func (ReserveValidator) IsReady(pool *domain.PoolState) bool {
	return pool.ReserveA > 0 && pool.ReserveB > 0
}

func (ReserveValidator) SupportsPoolKind(domain.PoolKind) bool {
	return true
}

// WhirlpoolValidator requires a price and at least one loaded tick array.
type WhirlpoolValidator struct{}

func (WhirlpoolValidator) IsReady(pool *domain.PoolState) bool {
	data, ok := pool.Data.(*domain.WhirlpoolData)
	if !ok || data == nil {
		return false
	}
	return !data.SqrtPrice.IsZero() && len(data.TickArrays) > 0
}

func (WhirlpoolValidator) SupportsPoolKind(kind domain.PoolKind) bool {
	return kind == domain.PoolKindWhirlpool
}

// DLMMValidator requires the bins around the active bin to be loaded.
type DLMMValidator struct{}

func (DLMMValidator) IsReady(pool *domain.PoolState) bool {
	data, ok := pool.Data.(*domain.DLMMData)
	if !ok || data == nil {
		return false
	}
	return len(data.BinArrays) > 0 && len(data.Bins) > 0
}

func (DLMMValidator) SupportsPoolKind(kind domain.PoolKind) bool {
	return kind == domain.PoolKindMeteoraDLMM
}

var defaultValidators = []PoolValidator{ReserveValidator{}, WhirlpoolValidator{}, DLMMValidator{}}

// poolReady runs every validator that applies to the pool's kind.
func poolReady(validators []PoolValidator, pool *domain.PoolState) bool {
	for _, v := range validators {
		if v.SupportsPoolKind(pool.Kind) && !v.IsReady(pool) {
			return false
		}
	}
	return true
}
