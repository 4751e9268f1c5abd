package router

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/services/market"
)

// hundredths of a bip
const clmmFeeRateDenominator = 1_000_000

// ConcentratedQuoter walks the initialized ticks of a Whirlpool snapshot.
type ConcentratedQuoter struct{}

func NewConcentratedQuoter() *ConcentratedQuoter {
	return &ConcentratedQuoter{}
}

func (q *ConcentratedQuoter) SupportsPoolKind(kind domain.PoolKind) bool {
	return kind.Curve() == domain.CurveConcentrated
}

func (q *ConcentratedQuoter) Quote(pool *domain.PoolState, amountIn uint64, dir domain.Direction) (domain.Quote, error) {
	if amountIn == 0 {
		return domain.Quote{}, common.ErrInvalidAmount
	}
	data, ok := pool.Data.(*domain.WhirlpoolData)
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s pool without tick data", common.ErrUnsupportedPoolKind, pool.Kind)
	}
	feeRate := uint64(data.FeeRate)
	if feeRate >= clmmFeeRateDenominator {
		return domain.Quote{}, fmt.Errorf("%w: fee rate %d", common.ErrMathOverflow, feeRate)
	}
	aToB := dir == domain.AToB
	_, bound, err := market.SwapTickArrays(data, aToB)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", common.ErrInsufficientLiquidity, err)
	}

	var sqrtPrice, liquidity, target uint256.Int
	sqrtPrice.Set(&data.SqrtPrice)
	liquidity.Set(&data.Liquidity)
	tick := data.TickCurrent

	remaining := amountIn
	var out, fee uint64
	for remaining > 0 {
		next, idx, boundary := nextInitializedTick(data.Ticks, tick, bound, aToB)
		SqrtPriceAtTick(&target, next)
		if (aToB && target.Gt(&sqrtPrice)) || (!aToB && target.Lt(&sqrtPrice)) {
			target.Set(&sqrtPrice)
		}

		step, err := computeSwapStep(remaining, feeRate, &liquidity, &sqrtPrice, &target, aToB)
		if err != nil {
			return domain.Quote{}, err
		}
		remaining -= step.in + step.fee
		if out+step.out < out {
			return domain.Quote{}, common.ErrMathOverflow
		}
		out += step.out
		fee += step.fee
		sqrtPrice.Set(&step.next)

		if !sqrtPrice.Eq(&target) {
			break
		}
		if boundary {
			if remaining > 0 {
				return domain.Quote{}, fmt.Errorf("%w: swap tick arrays end at %d", common.ErrInsufficientLiquidity, next)
			}
			break
		}
		if err := crossTick(&liquidity, &data.Ticks[idx], aToB); err != nil {
			return domain.Quote{}, err
		}
		if aToB {
			tick = next - 1
		} else {
			tick = next
		}
	}

	if out == 0 {
		return domain.Quote{}, fmt.Errorf("%w: zero output", common.ErrInsufficientLiquidity)
	}
	return domain.Quote{
		AmountIn:  amountIn,
		AmountOut: out,
		Fee:       fee,
		Direction: dir,
	}, nil
}

// nextInitializedTick finds the next tick to cross from tick: at or below it
// when selling A, strictly above it when selling B. Without one before bound,
// the last tick the swap's arrays cover, the walk stops at bound.
func nextInitializedTick(ticks []domain.Tick, tick, bound int32, aToB bool) (int32, int, bool) {
	i := sort.Search(len(ticks), func(i int) bool {
		return ticks[i].Index > tick
	})
	if aToB {
		if i == 0 || ticks[i-1].Index < bound {
			return bound, -1, true
		}
		return ticks[i-1].Index, i - 1, false
	}
	if i == len(ticks) || ticks[i].Index > bound {
		return bound, -1, true
	}
	return ticks[i].Index, i, false
}

func crossTick(liquidity *uint256.Int, t *domain.Tick, aToB bool) error {
	// moving down subtracts liquidity_net, moving up adds it
	subtract := t.NetNegative != aToB
	if subtract {
		if liquidity.Lt(&t.LiquidityNet) {
			return fmt.Errorf("%w: liquidity underflow crossing tick %d", common.ErrMathOverflow, t.Index)
		}
		liquidity.Sub(liquidity, &t.LiquidityNet)
		return nil
	}
	if _, overflow := liquidity.AddOverflow(liquidity, &t.LiquidityNet); overflow || liquidity.BitLen() > 128 {
		return fmt.Errorf("%w: liquidity overflow crossing tick %d", common.ErrMathOverflow, t.Index)
	}
	return nil
}

type swapStep struct {
	in   uint64
	out  uint64
	fee  uint64
	next uint256.Int
}

// computeSwapStep swaps within one price range, from cur towards target.
func computeSwapStep(remaining, feeRate uint64, liquidity, cur, target *uint256.Int, aToB bool) (swapStep, error) {
	var st swapStep
	amountCalc, _ := mulDivFloor64(remaining, clmmFeeRateDenominator-feeRate, clmmFeeRateDenominator)

	toTarget, fits := amountDeltaIn(cur, target, liquidity, aToB)
	if fits && toTarget <= amountCalc {
		st.next.Set(target)
	} else if err := nextSqrtPrice(&st.next, cur, liquidity, amountCalc, aToB); err != nil {
		return st, err
	}
	isMax := st.next.Eq(target)

	in, fits := amountDeltaIn(cur, &st.next, liquidity, aToB)
	if !fits {
		return st, fmt.Errorf("%w: step input exceeds u64", common.ErrMathOverflow)
	}
	out, fits := amountDeltaOut(cur, &st.next, liquidity, aToB)
	if !fits {
		return st, fmt.Errorf("%w: step output exceeds u64", common.ErrMathOverflow)
	}
	if in > remaining {
		in = remaining
	}

	if isMax {
		st.fee, _ = mulDivCeil64(in, feeRate, clmmFeeRateDenominator-feeRate)
	} else {
		st.fee = remaining - in
	}
	if in+st.fee > remaining {
		st.fee = remaining - in
	}
	st.in = in
	st.out = out
	return st, nil
}

// amountDeltaIn is the input needed to move the price from cur to next,
// rounded up: token A when selling A, token B otherwise.
func amountDeltaIn(cur, next, liquidity *uint256.Int, aToB bool) (uint64, bool) {
	if aToB {
		return deltaA(cur, next, liquidity, true)
	}
	return deltaB(cur, next, liquidity, true)
}

// amountDeltaOut is the output released moving from cur to next, rounded
// down.
func amountDeltaOut(cur, next, liquidity *uint256.Int, aToB bool) (uint64, bool) {
	if aToB {
		return deltaB(cur, next, liquidity, false)
	}
	return deltaA(cur, next, liquidity, false)
}

// deltaA = L * (upper - lower) * 2^64 / (upper * lower)
func deltaA(p0, p1, liquidity *uint256.Int, roundUp bool) (uint64, bool) {
	lower, upper := p0, p1
	if lower.Gt(upper) {
		lower, upper = upper, lower
	}
	if lower.IsZero() {
		return 0, false
	}
	num, den := GetU256(), GetU256()
	defer func() {
		PutU256(num)
		PutU256(den)
	}()
	num.Sub(upper, lower)
	num.Mul(num, liquidity)
	den.Mul(upper, lower)

	var ok bool
	if roundUp {
		_, ok = mulDivCeil(num, num, u256Q64, den)
	} else {
		_, ok = mulDivFloor(num, num, u256Q64, den)
	}
	if !ok {
		return 0, false
	}
	return toU64(num)
}

// deltaB = L * (upper - lower) / 2^64
func deltaB(p0, p1, liquidity *uint256.Int, roundUp bool) (uint64, bool) {
	lower, upper := p0, p1
	if lower.Gt(upper) {
		lower, upper = upper, lower
	}
	prod := GetU256()
	defer PutU256(prod)
	prod.Sub(upper, lower)
	prod.Mul(prod, liquidity)

	carry := roundUp && !new(uint256.Int).And(prod, lowMask64).IsZero()
	prod.Rsh(prod, 64)
	if carry {
		prod.AddUint64(prod, 1)
	}
	return toU64(prod)
}

// nextSqrtPrice moves the price by an exact input amount. Selling A rounds
// the price up, selling B rounds it down, so the pool never gives away more
// than the input pays for.
func nextSqrtPrice(z, cur, liquidity *uint256.Int, amount uint64, aToB bool) error {
	if amount == 0 {
		z.Set(cur)
		return nil
	}
	if liquidity.IsZero() {
		return fmt.Errorf("%w: zero liquidity", common.ErrInsufficientLiquidity)
	}
	amt := GetU256()
	defer PutU256(amt)
	amt.SetUint64(amount)

	if aToB {
		// ceil(L*2^64 * P / (L*2^64 + amount*P))
		lq := GetU256()
		den := GetU256()
		defer func() {
			PutU256(lq)
			PutU256(den)
		}()
		lq.Lsh(liquidity, 64)
		den.Mul(amt, cur)
		if _, overflow := den.AddOverflow(den, lq); overflow {
			return common.ErrMathOverflow
		}
		if _, ok := mulDivCeil(z, lq, cur, den); !ok {
			return common.ErrMathOverflow
		}
		return nil
	}

	// P + amount*2^64 / L
	amt.Lsh(amt, 64)
	amt.Div(amt, liquidity)
	if _, overflow := z.AddOverflow(cur, amt); overflow {
		return common.ErrMathOverflow
	}
	return nil
}
