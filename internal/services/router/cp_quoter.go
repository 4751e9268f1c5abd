package router

import (
	"fmt"

	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
)

// ConstantProductQuoter prices Raydium v4, CPMM and Pump AMM pools. The
// Raydium fee is taken from the input and rounded up, the output is rounded
// down.
type ConstantProductQuoter struct{}

func NewConstantProductQuoter() *ConstantProductQuoter {
	return &ConstantProductQuoter{}
}

func (q *ConstantProductQuoter) SupportsPoolKind(kind domain.PoolKind) bool {
	return kind.Curve() == domain.CurveConstantProduct
}

func (q *ConstantProductQuoter) Quote(pool *domain.PoolState, amountIn uint64, dir domain.Direction) (domain.Quote, error) {
	if amountIn == 0 {
		return domain.Quote{}, common.ErrInvalidAmount
	}
	if pool.Kind == domain.PoolKindPumpAMM {
		return q.quotePump(pool, amountIn, dir)
	}
	if pool.FeeDenominator == 0 || pool.FeeNumerator >= pool.FeeDenominator {
		return domain.Quote{}, fmt.Errorf("%w: fee %d/%d", common.ErrMathOverflow, pool.FeeNumerator, pool.FeeDenominator)
	}
	reserveIn, reserveOut := pool.Reserves(dir)
	if reserveIn == 0 || reserveOut == 0 {
		return domain.Quote{}, fmt.Errorf("%w: empty reserve", common.ErrInsufficientLiquidity)
	}

	fee, ok := mulDivCeil64(amountIn, pool.FeeNumerator, pool.FeeDenominator)
	if !ok {
		return domain.Quote{}, common.ErrMathOverflow
	}
	net := amountIn - fee

	num, den, out := GetU256(), GetU256(), GetU256()
	defer func() {
		PutU256(num)
		PutU256(den)
		PutU256(out)
	}()
	num.SetUint64(net)
	den.SetUint64(reserveIn)
	den.Add(den, num)
	out.SetUint64(reserveOut)
	if _, ok := mulDivFloor(out, num, out, den); !ok {
		return domain.Quote{}, common.ErrMathOverflow
	}
	amountOut, ok := toU64(out)
	if !ok {
		return domain.Quote{}, common.ErrMathOverflow
	}
	if amountOut == 0 {
		return domain.Quote{}, fmt.Errorf("%w: zero output", common.ErrInsufficientLiquidity)
	}

	return domain.Quote{
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Fee:       fee,
		Direction: dir,
	}, nil
}
