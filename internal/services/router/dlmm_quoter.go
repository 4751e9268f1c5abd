package router

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
)

const (
	binBasisPointMax    = 10_000
	// total fee ceiling, 10% of DLMMFeePrecision
	binMaxFeeRate       = 100_000_000
	// variable fee is scaled down by 1e11, rounding up
	binVariableFeeScale = 100_000_000_000
)

// BinQuoter walks the liquidity bins of a Meteora DLMM snapshot.
type BinQuoter struct{}

func NewBinQuoter() *BinQuoter {
	return &BinQuoter{}
}

func (q *BinQuoter) SupportsPoolKind(kind domain.PoolKind) bool {
	return kind.Curve() == domain.CurveBin
}

// binFees tracks the volatility state of one quote; the snapshot is never
// touched.
type binFees struct {
	data     *domain.DLMMData
	volRef   uint64
	idxRef   int32
	volAccum uint64
}

func newBinFees(data *domain.DLMMData, now int64) *binFees {
	f := &binFees{
		data:     data,
		volRef:   uint64(data.VolatilityReference),
		idxRef:   data.IndexReference,
		volAccum: uint64(data.VolatilityAccumulator),
	}
	elapsed := now - data.LastUpdateTimestamp
	if elapsed >= int64(data.FilterPeriod) {
		f.idxRef = data.ActiveID
		if elapsed < int64(data.DecayPeriod) {
			f.volRef = uint64(data.VolatilityAccumulator) * uint64(data.ReductionFactor) / binBasisPointMax
		} else {
			f.volRef = 0
		}
	}
	return f
}

// rate updates the accumulator for activeID and returns the total fee rate
// in DLMMFeePrecision units.
func (f *binFees) rate(activeID int32) uint64 {
	delta := int64(f.idxRef) - int64(activeID)
	if delta < 0 {
		delta = -delta
	}
	f.volAccum = min(f.volRef+uint64(delta)*binBasisPointMax, uint64(f.data.MaxVolatilityAccum))

	total := f.data.BaseFee()
	if f.data.VariableFeeControl > 0 {
		v := new(uint256.Int).SetUint64(f.volAccum * uint64(f.data.BinStep))
		v.Mul(v, v)
		v.Mul(v, uint256.NewInt(uint64(f.data.VariableFeeControl)))
		v.AddUint64(v, binVariableFeeScale-1)
		v.Div(v, uint256.NewInt(binVariableFeeScale))
		if v.IsUint64() {
			total += v.Uint64()
		} else {
			total = binMaxFeeRate
		}
	}
	return min(total, binMaxFeeRate)
}

func (q *BinQuoter) Quote(pool *domain.PoolState, amountIn uint64, dir domain.Direction) (domain.Quote, error) {
	if amountIn == 0 {
		return domain.Quote{}, common.ErrInvalidAmount
	}
	data, ok := pool.Data.(*domain.DLMMData)
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s pool without bin data", common.ErrUnsupportedPoolKind, pool.Kind)
	}
	swapForY := dir == domain.AToB
	fees := newBinFees(data, pool.Timestamp)

	remaining := amountIn
	var out, feeTotal uint64
	activeID := data.ActiveID
	for remaining > 0 {
		if activeID < data.MinBinID || activeID > data.MaxBinID {
			return domain.Quote{}, fmt.Errorf("%w: ran out of loaded bins at %d", common.ErrInsufficientLiquidity, activeID)
		}
		rate := fees.rate(activeID)
		if bin, ok := findBin(data.Bins, activeID); ok && binHasOutput(bin, swapForY) {
			in, o, fee, err := swapInBin(bin, remaining, rate, swapForY)
			if err != nil {
				return domain.Quote{}, err
			}
			remaining -= in
			if out+o < out {
				return domain.Quote{}, common.ErrMathOverflow
			}
			out += o
			feeTotal += fee
		}
		if remaining > 0 {
			if swapForY {
				activeID--
			} else {
				activeID++
			}
		}
	}

	if out == 0 {
		return domain.Quote{}, fmt.Errorf("%w: zero output", common.ErrInsufficientLiquidity)
	}
	return domain.Quote{
		AmountIn:  amountIn,
		AmountOut: out,
		Fee:       feeTotal,
		Direction: dir,
	}, nil
}

func findBin(bins []domain.Bin, id int32) (*domain.Bin, bool) {
	i := sort.Search(len(bins), func(i int) bool {
		return bins[i].ID >= id
	})
	if i < len(bins) && bins[i].ID == id {
		return &bins[i], true
	}
	return nil, false
}

func binHasOutput(bin *domain.Bin, swapForY bool) bool {
	if swapForY {
		return bin.AmountY > 0
	}
	return bin.AmountX > 0
}

// swapInBin fills as much of amountIn (fee included) as the bin allows and
// returns the input consumed with fees, the output and the fee.
func swapInBin(bin *domain.Bin, amountIn, feeRate uint64, swapForY bool) (uint64, uint64, uint64, error) {
	maxOut := bin.AmountX
	if swapForY {
		maxOut = bin.AmountY
	}

	// input that drains the bin, before fees
	maxIn := new(uint256.Int).SetUint64(maxOut)
	var ok bool
	if swapForY {
		_, ok = mulDivCeil(maxIn, maxIn, u256Q64, &bin.Price)
	} else {
		_, ok = mulDivCeil(maxIn, maxIn, &bin.Price, u256Q64)
	}
	if !ok {
		return 0, 0, 0, common.ErrMathOverflow
	}

	if maxIn.IsUint64() {
		maxFee, ok := mulDivCeil64(maxIn.Uint64(), feeRate, domain.DLMMFeePrecision-feeRate)
		if ok && maxIn.Uint64()+maxFee >= maxIn.Uint64() && amountIn > maxIn.Uint64()+maxFee {
			return maxIn.Uint64() + maxFee, maxOut, maxFee, nil
		}
	}

	fee, ok := mulDivCeil64(amountIn, feeRate, domain.DLMMFeePrecision)
	if !ok {
		return 0, 0, 0, common.ErrMathOverflow
	}
	net := new(uint256.Int).SetUint64(amountIn - fee)
	if swapForY {
		_, ok = mulDivFloor(net, net, &bin.Price, u256Q64)
	} else {
		_, ok = mulDivFloor(net, net, u256Q64, &bin.Price)
	}
	if !ok {
		return 0, 0, 0, common.ErrMathOverflow
	}
	out := maxOut
	if net.IsUint64() && net.Uint64() < maxOut {
		out = net.Uint64()
	}
	return amountIn, out, fee, nil
}
