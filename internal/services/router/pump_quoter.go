package router

import (
	"fmt"

	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
)

// quotePump prices a Pump AMM pool. A sell (base in) pays its fees out of the
// quote proceeds. A buy is an exact-output instruction, so amountIn is the
// quote budget and the quote is the largest base output whose cost plus fees
// fits in it.
func (q *ConstantProductQuoter) quotePump(pool *domain.PoolState, amountIn uint64, dir domain.Direction) (domain.Quote, error) {
	data, ok := pool.Data.(*domain.PumpAMMData)
	if !ok || data == nil {
		return domain.Quote{}, fmt.Errorf("%w: pump pool %s without fee data", common.ErrUnsupportedPoolKind, pool.Address)
	}
	if data.TotalFeeBps() >= common.BpsDenominator {
		return domain.Quote{}, fmt.Errorf("%w: fee %d bps", common.ErrMathOverflow, data.TotalFeeBps())
	}
	if pool.ReserveA == 0 || pool.ReserveB == 0 {
		return domain.Quote{}, fmt.Errorf("%w: empty reserve", common.ErrInsufficientLiquidity)
	}

	if dir == domain.AToB {
		gross, ok := constantProductOut(pool.ReserveA, pool.ReserveB, amountIn)
		if !ok {
			return domain.Quote{}, common.ErrMathOverflow
		}
		fee, ok := pumpFees(data, gross)
		if !ok {
			return domain.Quote{}, common.ErrMathOverflow
		}
		if fee >= gross {
			return domain.Quote{}, fmt.Errorf("%w: zero output", common.ErrInsufficientLiquidity)
		}
		return domain.Quote{AmountIn: amountIn, AmountOut: gross - fee, Fee: fee, Direction: dir}, nil
	}

	budget, ok := pumpQuoteBudget(data, amountIn)
	if !ok {
		return domain.Quote{}, common.ErrMathOverflow
	}
	baseOut, ok := constantProductOut(pool.ReserveB, pool.ReserveA, budget)
	if !ok {
		return domain.Quote{}, common.ErrMathOverflow
	}
	if baseOut == 0 {
		return domain.Quote{}, fmt.Errorf("%w: zero output", common.ErrInsufficientLiquidity)
	}
	cost, ok := mulDivCeil64(pool.ReserveB, baseOut, pool.ReserveA-baseOut)
	if !ok {
		return domain.Quote{}, common.ErrMathOverflow
	}
	fee, ok := pumpFees(data, cost)
	if !ok {
		return domain.Quote{}, common.ErrMathOverflow
	}
	return domain.Quote{AmountIn: amountIn, AmountOut: baseOut, Fee: fee, Direction: dir}, nil
}

// constantProductOut is floor(reserveOut*in / (reserveIn+in)).
func constantProductOut(reserveIn, reserveOut, in uint64) (uint64, bool) {
	num, den, out := GetU256(), GetU256(), GetU256()
	defer func() {
		PutU256(num)
		PutU256(den)
		PutU256(out)
	}()
	num.SetUint64(in)
	den.SetUint64(reserveIn)
	den.Add(den, num)
	out.SetUint64(reserveOut)
	if _, ok := mulDivFloor(out, num, out, den); !ok {
		return 0, false
	}
	return toU64(out)
}

// pumpFees is the sum of the lp, protocol and creator fees on amount, each
// rounded up on its own.
func pumpFees(data *domain.PumpAMMData, amount uint64) (uint64, bool) {
	var total uint64
	for _, bps := range [...]uint64{data.LPFeeBps, data.ProtocolFeeBps, data.CreatorFeeBps} {
		fee, ok := mulDivCeil64(amount, bps, common.BpsDenominator)
		if !ok {
			return 0, false
		}
		total += fee
	}
	return total, true
}

// pumpQuoteBudget is the largest pre-fee quote amount q with q+fees(q) <= total.
// q+fees(q) is strictly increasing, so the bps estimate only needs a few
// unit steps to land on it.
func pumpQuoteBudget(data *domain.PumpAMMData, total uint64) (uint64, bool) {
	cost := func(q uint64) (uint64, bool) {
		fee, ok := pumpFees(data, q)
		if !ok || q+fee < q {
			return 0, false
		}
		return q + fee, true
	}
	q, ok := mulDivFloor64(total, common.BpsDenominator, common.BpsDenominator+data.TotalFeeBps())
	if !ok {
		return 0, false
	}
	for q > 0 {
		c, ok := cost(q)
		if !ok {
			return 0, false
		}
		if c <= total {
			break
		}
		q--
	}
	for {
		c, ok := cost(q + 1)
		if !ok || c > total {
			return q, true
		}
		q++
	}
}
