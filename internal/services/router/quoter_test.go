package router

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/services/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cpPool(reserveA, reserveB uint64) *domain.PoolState {
	return &domain.PoolState{
		Address:        solana.NewWallet().PublicKey(),
		Kind:           domain.PoolKindRaydiumAMM,
		MintA:          solana.NewWallet().PublicKey(),
		MintB:          solana.NewWallet().PublicKey(),
		ReserveA:       reserveA,
		ReserveB:       reserveB,
		FeeNumerator:   25,
		FeeDenominator: 10_000,
		Data:           &domain.RaydiumAMMData{},
	}
}

func TestConstantProductQuoteExact(t *testing.T) {
	q := NewConstantProductQuoter()
	got, err := q.Quote(cpPool(1_000_000, 2_000_000), 1_000, domain.AToB)
	require.NoError(t, err)
	// fee = ceil(1000 * 25 / 10000) = 3, out = floor(997 * 2e6 / (1e6 + 997))
	assert.Equal(t, uint64(3), got.Fee)
	assert.Equal(t, uint64(1_992), got.AmountOut)
	assert.Equal(t, domain.AToB, got.Direction)
}

func TestConstantProductQuoteProperties(t *testing.T) {
	q := NewConstantProductQuoter()
	pools := []*domain.PoolState{
		cpPool(1_000_000, 2_000_000),
		cpPool(7_777_777_777, 12_345),
		cpPool(1<<62, 1<<62),
	}
	for _, pool := range pools {
		for _, dir := range []domain.Direction{domain.AToB, domain.BToA} {
			reserveIn, reserveOut := pool.Reserves(dir)
			var prev uint64
			for in := uint64(1); in < 1<<40; in = in*3 + 1 {
				got, err := q.Quote(pool, in, dir)
				if err != nil {
					require.ErrorIs(t, err, common.ErrInsufficientLiquidity)
					continue
				}
				require.GreaterOrEqual(t, got.AmountOut, prev, "not monotonic at %d", in)
				prev = got.AmountOut

				// out < in * reserveOut / reserveIn
				bound := new(uint256.Int).Mul(uint256.NewInt(in), uint256.NewInt(reserveOut))
				scaled := new(uint256.Int).Mul(uint256.NewInt(got.AmountOut), uint256.NewInt(reserveIn))
				require.True(t, scaled.Lt(bound), "fee did not reduce output at %d", in)
			}
		}
	}
}

func TestConstantProductQuoteErrors(t *testing.T) {
	q := NewConstantProductQuoter()

	_, err := q.Quote(cpPool(1_000_000, 2_000_000), 0, domain.AToB)
	assert.ErrorIs(t, err, common.ErrInvalidAmount)

	_, err = q.Quote(cpPool(0, 2_000_000), 1_000, domain.AToB)
	assert.ErrorIs(t, err, common.ErrInsufficientLiquidity)

	// the whole input goes to the fee
	_, err = q.Quote(cpPool(1_000_000, 2_000_000), 1, domain.AToB)
	assert.ErrorIs(t, err, common.ErrInsufficientLiquidity)
}

func stablePool(reserveA, reserveB, amp uint64) *domain.PoolState {
	return &domain.PoolState{
		Address:        solana.NewWallet().PublicKey(),
		Kind:           domain.PoolKindSaberStable,
		MintA:          solana.NewWallet().PublicKey(),
		MintB:          solana.NewWallet().PublicKey(),
		ReserveA:       reserveA,
		ReserveB:       reserveB,
		FeeNumerator:   4,
		FeeDenominator: 10_000,
		Timestamp:      1_700_000_000,
		Data: &domain.StableData{
			InitialAmpFactor: amp,
			TargetAmpFactor:  amp,
		},
	}
}

func TestStableQuote(t *testing.T) {
	q := NewStableQuoter()

	tests := []struct {
		name    string
		pool    *domain.PoolState
		in      uint64
		wantOut uint64
		wantFee uint64
	}{
		{name: "balanced", pool: stablePool(1_000_000_000, 1_000_000_000, 100), in: 1_000_000, wantOut: 999_592, wantFee: 399},
		{name: "skewed small", pool: stablePool(1_000_000_000, 500_000_000, 100), in: 1_000_000, wantOut: 991_298, wantFee: 396},
		{name: "skewed large", pool: stablePool(1_000_000_000, 500_000_000, 100), in: 100_000_000, wantOut: 98_838_774, wantFee: 39_551},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := q.Quote(tt.pool, tt.in, domain.AToB)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, got.AmountOut)
			assert.Equal(t, tt.wantFee, got.Fee)
		})
	}
}

func TestStableComputeD(t *testing.T) {
	var m stableMath
	var d uint256.Int
	require.NoError(t, m.computeD(&d, 100, 1_000_000_000, 1_000_000_000))
	assert.Equal(t, uint64(2_000_000_000), d.Uint64())

	require.NoError(t, m.computeD(&d, 100, 1_000_000_000, 500_000_000))
	assert.Equal(t, uint64(1_499_073_492), d.Uint64())
}

func TestStableQuoteRejectsEmptyPool(t *testing.T) {
	_, err := NewStableQuoter().Quote(stablePool(1_000, 0, 100), 10, domain.AToB)
	assert.ErrorIs(t, err, common.ErrInsufficientLiquidity)
}

// whirlpoolAt builds a pool at price 1 whose loaded tick arrays span
// [lower, upper).
func whirlpoolAt(liquidity uint64, ticks []domain.Tick, lower, upper int32) *domain.PoolState {
	const span = 64 * market.TicksPerArray
	var arrays []domain.TickArrayRef
	for start := lower; start < upper; start += span {
		arrays = append(arrays, domain.TickArrayRef{Address: solana.NewWallet().PublicKey(), StartIndex: start})
	}
	data := &domain.WhirlpoolData{
		TickSpacing: 64,
		FeeRate:     3_000,
		TickCurrent: 0,
		Ticks:       ticks,
		TickArrays:  arrays,
		LowerTick:   lower,
		UpperTick:   upper,
	}
	data.Liquidity.SetUint64(liquidity)
	data.SqrtPrice.Set(u256Q64)
	return &domain.PoolState{
		Address:  solana.NewWallet().PublicKey(),
		Kind:     domain.PoolKindWhirlpool,
		MintA:    solana.NewWallet().PublicKey(),
		MintB:    solana.NewWallet().PublicKey(),
		ReserveA: 1 << 50,
		ReserveB: 1 << 50,
		Data:     data,
	}
}

func tick(index int32, net uint64, negative bool) domain.Tick {
	t := domain.Tick{Index: index, NetNegative: negative}
	t.LiquidityNet.SetUint64(net)
	return t
}

func TestConcentratedQuoteWithinRange(t *testing.T) {
	q := NewConcentratedQuoter()
	pool := whirlpoolAt(1_000_000_000_000, nil, -5_632, 11_264)

	for _, dir := range []domain.Direction{domain.AToB, domain.BToA} {
		got, err := q.Quote(pool, 1_000_000, dir)
		require.NoError(t, err)
		assert.Equal(t, uint64(996_999), got.AmountOut, dir.String())
		assert.Equal(t, uint64(3_000), got.Fee, dir.String())
	}
}

func TestConcentratedQuoteCrossesTicks(t *testing.T) {
	q := NewConcentratedQuoter()
	// one position on [-64, 64]; nothing below it
	ticks := []domain.Tick{tick(-64, 1_000_000, false), tick(64, 1_000_000, true)}
	pool := whirlpoolAt(1_000_000, ticks, -5_632, 11_264)

	small, err := q.Quote(pool, 1_000, domain.AToB)
	require.NoError(t, err)
	assert.Positive(t, small.AmountOut)

	// more than the position holds: the walk crosses -64 into empty range
	_, err = q.Quote(pool, 10_000_000, domain.AToB)
	assert.ErrorIs(t, err, common.ErrInsufficientLiquidity)
}

func TestConcentratedQuoteStopsAtSwapTickArrays(t *testing.T) {
	q := NewConcentratedQuoter()
	// three arrays loaded below the current one, the swap passes two of them
	pool := whirlpoolAt(1_000_000_000, nil, -3*5_632, 4*5_632)

	// reaching tick -11264 takes about 7.6e8 of A
	got, err := q.Quote(pool, 500_000_000, domain.AToB)
	require.NoError(t, err)
	assert.Positive(t, got.AmountOut)

	// enough liquidity is loaded down to -16896, but the swap cannot get there
	_, err = q.Quote(pool, 1_000_000_000, domain.AToB)
	assert.ErrorIs(t, err, common.ErrInsufficientLiquidity)

	// a tick beyond the swap's arrays is never crossed
	pool.Data.(*domain.WhirlpoolData).Ticks = []domain.Tick{tick(-12_800, 1_000_000_000, true)}
	_, err = q.Quote(pool, 1_000_000_000, domain.AToB)
	assert.ErrorIs(t, err, common.ErrInsufficientLiquidity)
}

func TestConcentratedQuoteWithoutCurrentTickArray(t *testing.T) {
	pool := whirlpoolAt(1_000_000_000, nil, 5_632, 11_264)
	_, err := NewConcentratedQuoter().Quote(pool, 1_000, domain.AToB)
	assert.ErrorIs(t, err, common.ErrInsufficientLiquidity)
}

func TestConcentratedQuoteIsMonotonic(t *testing.T) {
	q := NewConcentratedQuoter()
	ticks := []domain.Tick{
		tick(-5_632, 1_000_000_000_000, false),
		tick(-64, 5_000_000, false),
		tick(64, 5_000_000, true),
	}
	pool := whirlpoolAt(1_000_005_000_000, ticks, -5_632, 11_264)
	for _, dir := range []domain.Direction{domain.AToB, domain.BToA} {
		var prev uint64
		for in := uint64(1_000); in <= 100_000_000_000; in *= 7 {
			got, err := q.Quote(pool, in, dir)
			require.NoError(t, err, "%s %d", dir, in)
			require.GreaterOrEqual(t, got.AmountOut, prev)
			prev = got.AmountOut
		}
	}
}

func dlmmPool(bins []domain.Bin, active, minID, maxID int32) *domain.PoolState {
	data := &domain.DLMMData{
		ActiveID:           active,
		BinStep:            10,
		BaseFactor:         10_000,
		MaxVolatilityAccum: 350_000,
		FilterPeriod:       30,
		DecayPeriod:        600,
		ReductionFactor:    5_000,
		Bins:               bins,
		MinBinID:           minID,
		MaxBinID:           maxID,
	}
	return &domain.PoolState{
		Address:        solana.NewWallet().PublicKey(),
		Kind:           domain.PoolKindMeteoraDLMM,
		MintA:          solana.NewWallet().PublicKey(),
		MintB:          solana.NewWallet().PublicKey(),
		FeeNumerator:   data.BaseFee(),
		FeeDenominator: domain.DLMMFeePrecision,
		Timestamp:      1_700_000_000,
		Data:           data,
	}
}

func unitBin(id int32, x, y uint64) domain.Bin {
	b := domain.Bin{ID: id, AmountX: x, AmountY: y}
	b.Price.Set(u256Q64)
	return b
}

func TestBinQuoteSingleBin(t *testing.T) {
	q := NewBinQuoter()
	pool := dlmmPool([]domain.Bin{unitBin(0, 1_000_000, 1_000_000)}, 0, -69, 69)

	got, err := q.Quote(pool, 10_000, domain.AToB)
	require.NoError(t, err)
	// base fee 10000*10*10 = 1e6 / 1e9 = 0.1%, no variable fee on the active bin
	assert.Equal(t, uint64(10), got.Fee)
	assert.Equal(t, uint64(9_990), got.AmountOut)
}

func TestBinQuoteWalksBins(t *testing.T) {
	q := NewBinQuoter()
	bins := []domain.Bin{
		unitBin(-2, 0, 1_000),
		unitBin(-1, 0, 1_000),
		unitBin(0, 500, 1_000),
		unitBin(1, 1_000, 0),
	}
	pool := dlmmPool(bins, 0, -69, 69)

	// drains bin 0, then fills the rest from bin -1
	got, err := q.Quote(pool, 1_500, domain.AToB)
	require.NoError(t, err)
	assert.Greater(t, got.AmountOut, uint64(1_000))
	assert.Less(t, got.AmountOut, uint64(1_500))

	// only 3000 Y exists below the active bin
	_, err = q.Quote(pool, 10_000, domain.AToB)
	assert.ErrorIs(t, err, common.ErrInsufficientLiquidity)

	// 501 drains bin 0 (500 out, fee 1), the remaining 99 pay a fee of 1 in bin 1
	got, err = q.Quote(pool, 600, domain.BToA)
	require.NoError(t, err)
	assert.Equal(t, uint64(598), got.AmountOut)
	assert.Equal(t, uint64(2), got.Fee)
}

func TestBinFeesVariableComponent(t *testing.T) {
	pool := dlmmPool(nil, 0, -69, 69)
	data := pool.Data.(*domain.DLMMData)
	data.VariableFeeControl = 40_000

	fees := newBinFees(data, pool.Timestamp)
	base := data.BaseFee()
	assert.Equal(t, base, fees.rate(0))
	// one bin away: vacc = 10000, (10000*10)^2 * 40000 / 1e11 = 4000
	assert.Equal(t, base+4_000, fees.rate(-1))
	assert.LessOrEqual(t, fees.rate(-1_000), uint64(binMaxFeeRate))
}

func BenchmarkConstantProductQuote(b *testing.B) {
	q := NewConstantProductQuoter()
	pool := cpPool(1_000_000_000_000, 2_000_000_000_000)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = q.Quote(pool, 1_000_000_000, domain.AToB)
	}
}

func BenchmarkConcentratedQuote(b *testing.B) {
	q := NewConcentratedQuoter()
	ticks := []domain.Tick{tick(-64, 5_000_000, false), tick(64, 5_000_000, true)}
	pool := whirlpoolAt(1_000_005_000_000, ticks, -5_632, 11_264)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = q.Quote(pool, 1_000_000_000, domain.AToB)
	}
}
