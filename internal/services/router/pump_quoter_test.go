package router

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pumpPool(base, quote uint64) *domain.PoolState {
	return &domain.PoolState{
		Address:        solana.NewWallet().PublicKey(),
		Kind:           domain.PoolKindPumpAMM,
		MintA:          solana.NewWallet().PublicKey(),
		MintB:          common.SOLMint,
		ReserveA:       base,
		ReserveB:       quote,
		FeeNumerator:   30,
		FeeDenominator: 10_000,
		Data: &domain.PumpAMMData{
			CoinCreator:    solana.NewWallet().PublicKey(),
			LPFeeBps:       20,
			ProtocolFeeBps: 5,
			CreatorFeeBps:  5,
		},
	}
}

func TestPumpQuoteSell(t *testing.T) {
	got, err := NewConstantProductQuoter().Quote(pumpPool(900_000_000, 30_000_000), 1_000_000, domain.AToB)
	require.NoError(t, err)
	// gross = floor(3e7 * 1e6 / 9.01e8) = 33296; fees 67 + 17 + 17
	assert.Equal(t, uint64(101), got.Fee)
	assert.Equal(t, uint64(33_195), got.AmountOut)
}

func TestPumpQuoteBuy(t *testing.T) {
	pool := pumpPool(900_000_000, 30_000_000)
	got, err := NewConstantProductQuoter().Quote(pool, 100_000, domain.BToA)
	require.NoError(t, err)
	// 99700 lamports of quote plus 200 + 50 + 50 in fees spends the budget
	assert.Equal(t, uint64(2_981_092), got.AmountOut)
	assert.Equal(t, uint64(300), got.Fee)
	assert.Equal(t, uint64(100_000), got.AmountIn)

	// one more base unit would cost more than the budget
	cost, ok := mulDivCeil64(pool.ReserveB, got.AmountOut+1, pool.ReserveA-got.AmountOut-1)
	require.True(t, ok)
	fee, ok := pumpFees(pool.Data.(*domain.PumpAMMData), cost)
	require.True(t, ok)
	assert.Greater(t, cost+fee, uint64(100_000))
}

func TestPumpQuoteBudgetFitsTotal(t *testing.T) {
	data := pumpPool(1, 1).Data.(*domain.PumpAMMData)
	for total := uint64(1); total < 1<<40; total = total*7 + 3 {
		q, ok := pumpQuoteBudget(data, total)
		require.True(t, ok)
		fee, _ := pumpFees(data, q)
		require.LessOrEqual(t, q+fee, total, "budget overspends at %d", total)
		next, _ := pumpFees(data, q+1)
		require.Greater(t, q+1+next, total, "budget not maximal at %d", total)
	}
}

func TestPumpQuoteIsMonotonic(t *testing.T) {
	q := NewConstantProductQuoter()
	pool := pumpPool(1_000_000_000_000_000, 85_000_000_000)
	for _, dir := range []domain.Direction{domain.AToB, domain.BToA} {
		var prev uint64
		for in := uint64(1); in < 1<<44; in = in*3 + 1 {
			got, err := q.Quote(pool, in, dir)
			if err != nil {
				require.ErrorIs(t, err, common.ErrInsufficientLiquidity)
				continue
			}
			require.GreaterOrEqual(t, got.AmountOut, prev, "not monotonic at %d", in)
			prev = got.AmountOut
		}
	}
}

func TestPumpQuoteErrors(t *testing.T) {
	q := NewConstantProductQuoter()

	_, err := q.Quote(pumpPool(0, 30_000_000), 1_000, domain.AToB)
	assert.ErrorIs(t, err, common.ErrInsufficientLiquidity)

	// fees eat the whole one-lamport gross output
	_, err = q.Quote(pumpPool(900_000_000, 30_000_000), 40, domain.AToB)
	assert.ErrorIs(t, err, common.ErrInsufficientLiquidity)

	pool := pumpPool(900_000_000, 30_000_000)
	pool.Data = nil
	_, err = q.Quote(pool, 1_000, domain.AToB)
	assert.ErrorIs(t, err, common.ErrUnsupportedPoolKind)
}
