package router

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
)

const (
	// MaxIterations caps both Newton loops of the StableSwap invariant. It
	// matches the on-chain program; changing it changes quotes.
	MaxIterations = 256

	stableCoins   = 2
	// on-chain intermediates are 192 bit
	stableMaxBits = 192
)

// stableMath holds scratch values so a quote allocates nothing.
type stableMath struct {
	t1, t2, t3 uint256.Int
}

func (m *stableMath) checkedMul(z, x, y *uint256.Int) error {
	if _, overflow := z.MulOverflow(x, y); overflow || z.BitLen() > stableMaxBits {
		return common.ErrMathOverflow
	}
	return nil
}

// computeD solves the invariant D for balances a and b by Newton iteration.
func (m *stableMath) computeD(d *uint256.Int, amp, a, b uint64) error {
	sum := new(uint256.Int).SetUint64(a)
	sum.Add(sum, uint256.NewInt(b))
	if sum.IsZero() {
		d.Clear()
		return nil
	}
	if a == 0 || b == 0 {
		return fmt.Errorf("%w: empty reserve", common.ErrInsufficientLiquidity)
	}

	ann := uint256.NewInt(amp * stableCoins)
	aTimesN := uint256.NewInt(a)
	aTimesN.Mul(aTimesN, uint256.NewInt(stableCoins))
	bTimesN := uint256.NewInt(b)
	bTimesN.Mul(bTimesN, uint256.NewInt(stableCoins))

	leverage := new(uint256.Int)
	if err := m.checkedMul(leverage, sum, ann); err != nil {
		return err
	}
	annMinusOne := new(uint256.Int).Sub(ann, u256One)

	dProd, prev := &m.t1, &m.t2
	num, den := &m.t3, new(uint256.Int)
	d.Set(sum)
	for i := 0; i < MaxIterations; i++ {
		if err := m.checkedMul(dProd, d, d); err != nil {
			return err
		}
		dProd.Div(dProd, aTimesN)
		if err := m.checkedMul(dProd, dProd, d); err != nil {
			return err
		}
		dProd.Div(dProd, bTimesN)
		prev.Set(d)

		// d = d * (dProd*n + leverage) / ((ann-1)*d + (n+1)*dProd)
		num.Mul(dProd, uint256.NewInt(stableCoins))
		num.Add(num, leverage)
		if err := m.checkedMul(num, num, d); err != nil {
			return err
		}
		if err := m.checkedMul(den, d, annMinusOne); err != nil {
			return err
		}
		tmp := new(uint256.Int).Mul(dProd, uint256.NewInt(stableCoins+1))
		den.Add(den, tmp)
		if den.IsZero() {
			return common.ErrMathOverflow
		}
		d.Div(num, den)

		if withinOne(d, prev) {
			break
		}
	}
	return nil
}

// computeY returns the balance of the other token that keeps D constant
// when this side holds x.
func (m *stableMath) computeY(y *uint256.Int, amp, x uint64, d *uint256.Int) error {
	if x == 0 {
		return fmt.Errorf("%w: empty reserve", common.ErrInsufficientLiquidity)
	}
	ann := uint256.NewInt(amp * stableCoins)
	xTimesN := uint256.NewInt(x)
	xTimesN.Mul(xTimesN, uint256.NewInt(stableCoins))

	// c = d^3 / (x*n * ann*n)
	c := &m.t1
	if err := m.checkedMul(c, d, d); err != nil {
		return err
	}
	c.Div(c, xTimesN)
	if err := m.checkedMul(c, c, d); err != nil {
		return err
	}
	c.Div(c, new(uint256.Int).Mul(ann, uint256.NewInt(stableCoins)))

	// b = x + d/ann, d is subtracted in the denominator below
	b := new(uint256.Int).Div(d, ann)
	b.Add(b, uint256.NewInt(x))

	prev, num, den := &m.t2, &m.t3, new(uint256.Int)
	y.Set(d)
	for i := 0; i < MaxIterations; i++ {
		prev.Set(y)
		if err := m.checkedMul(num, y, y); err != nil {
			return err
		}
		num.Add(num, c)
		den.Lsh(y, 1)
		den.Add(den, b)
		if den.Cmp(d) <= 0 {
			return common.ErrMathOverflow
		}
		den.Sub(den, d)
		y.Div(num, den)

		if withinOne(y, prev) {
			break
		}
	}
	return nil
}

func withinOne(a, b *uint256.Int) bool {
	diff := new(uint256.Int)
	if a.Gt(b) {
		diff.Sub(a, b)
	} else {
		diff.Sub(b, a)
	}
	return !diff.Gt(u256One)
}

// StableQuoter prices Saber StableSwap pools.
type StableQuoter struct{}

func NewStableQuoter() *StableQuoter {
	return &StableQuoter{}
}

func (q *StableQuoter) SupportsPoolKind(kind domain.PoolKind) bool {
	return kind.Curve() == domain.CurveStable
}

func (q *StableQuoter) Quote(pool *domain.PoolState, amountIn uint64, dir domain.Direction) (domain.Quote, error) {
	if amountIn == 0 {
		return domain.Quote{}, common.ErrInvalidAmount
	}
	data, ok := pool.Data.(*domain.StableData)
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s pool without stable data", common.ErrUnsupportedPoolKind, pool.Kind)
	}
	amp := data.AmpFactor(pool.Timestamp)
	if amp == 0 {
		return domain.Quote{}, fmt.Errorf("%w: zero amplification", common.ErrMathOverflow)
	}
	reserveIn, reserveOut := pool.Reserves(dir)
	newIn := reserveIn + amountIn
	if newIn < reserveIn {
		return domain.Quote{}, common.ErrMathOverflow
	}

	var m stableMath
	var d, y uint256.Int
	if err := m.computeD(&d, amp, reserveIn, reserveOut); err != nil {
		return domain.Quote{}, err
	}
	if err := m.computeY(&y, amp, newIn, &d); err != nil {
		return domain.Quote{}, err
	}
	yOut, ok := toU64(&y)
	if !ok || yOut >= reserveOut {
		return domain.Quote{}, fmt.Errorf("%w: no output", common.ErrInsufficientLiquidity)
	}
	dy := reserveOut - yOut

	fee, ok := mulDivFloor64(dy, pool.FeeNumerator, pool.FeeDenominator)
	if !ok {
		return domain.Quote{}, common.ErrMathOverflow
	}
	out := dy - fee
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
