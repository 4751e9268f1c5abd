package builder

import (
	"bytes"
	"context"
	"math"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/services/market"
	"github.com/stretchr/testify/require"
)

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func testRegistry() *market.MarketRegistry {
	r := market.NewMarketRegistry()
	RegisterBuilders(r)
	return r
}

// raydiumPool is a v4 pool with every referenced account distinct.
func raydiumPool(mintA, mintB solana.PublicKey) *domain.PoolState {
	return &domain.PoolState{
		Address:        newKey(),
		ProgramID:      common.RaydiumAMMProgramID,
		Kind:           domain.PoolKindRaydiumAMM,
		MintA:          mintA,
		MintB:          mintB,
		VaultA:         newKey(),
		VaultB:         newKey(),
		ReserveA:       1_000_000,
		ReserveB:       2_000_000,
		FeeNumerator:   25,
		FeeDenominator: 10_000,
		Data: &domain.RaydiumAMMData{
			OpenOrders:      newKey(),
			TargetOrders:    newKey(),
			MarketID:        newKey(),
			MarketProgramID: newKey(),
		},
	}
}

// poolAccounts lists the pool specific accounts a raydium swap references.
func poolAccounts(p *domain.PoolState) solana.PublicKeySlice {
	data := p.Data.(*domain.RaydiumAMMData)
	return solana.PublicKeySlice{
		p.Address, p.VaultA, p.VaultB,
		data.OpenOrders, data.TargetOrders, data.MarketID, data.MarketProgramID,
	}
}

// cycleRoute alternates base -> target and target -> base over n raydium
// pools, each leg feeding the next.
func cycleRoute(base, target solana.PublicKey, n int) *domain.RoutePlan {
	route := &domain.RoutePlan{BaseMint: base, TargetMint: target, AmountIn: 10_000}
	amount := route.AmountIn
	for i := 0; i < n; i++ {
		in, out := base, target
		if i%2 == 1 {
			in, out = target, base
		}
		pool := raydiumPool(base, target)
		dir, _ := pool.Direction(in)
		route.Legs = append(route.Legs, domain.Leg{
			Pool:        pool,
			Direction:   dir,
			InputMint:   in,
			OutputMint:  out,
			AmountIn:    amount,
			ExpectedOut: amount + 100,
			MinOut:      amount + 50,
		})
		amount += 100
	}
	route.FinalOut = amount
	route.Profit = amount - route.AmountIn
	return route
}

type staticTables map[solana.PublicKey]solana.PublicKeySlice

func (s staticTables) GetAddressTables() map[solana.PublicKey]solana.PublicKeySlice {
	return s
}

// tableOf puts every pool account of the legs plus extra into one table.
func tableOf(legs []domain.Leg, extra ...solana.PublicKey) staticTables {
	var addrs solana.PublicKeySlice
	for _, leg := range legs {
		addrs = append(addrs, poolAccounts(leg.Pool)...)
	}
	addrs = append(addrs, extra...)
	return staticTables{newKey(): addrs}
}

func testWallet() WalletContext {
	return WalletContext{
		Signer:           solana.NewWallet().PrivateKey,
		Blockhash:        solana.Hash(newKey()),
		ComputeUnitPrice: 5_000,
	}
}

// fakeFetcher serves accounts from memory and counts calls.
type fakeFetcher struct {
	accounts map[solana.PublicKey][]byte
	err      error
	calls    int
}

func (f *fakeFetcher) FetchAccounts(_ context.Context, keys []solana.PublicKey) (map[solana.PublicKey]*rpc.Account, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[solana.PublicKey]*rpc.Account, len(keys))
	for _, k := range keys {
		if data, ok := f.accounts[k]; ok {
			out[k] = &rpc.Account{Owner: solana.AddressLookupTableProgramID, Data: rpc.DataBytesOrJSONFromBytes(data)}
		}
	}
	return out, nil
}

func lookupTableBytes(t *testing.T, active bool, addresses ...solana.PublicKey) []byte {
	t.Helper()
	state := addresslookuptable.AddressLookupTableState{
		TypeIndex:        1,
		DeactivationSlot: math.MaxUint64,
		Addresses:        addresses,
	}
	if !active {
		state.DeactivationSlot = 1_000
	}
	buf := new(bytes.Buffer)
	require.NoError(t, state.MarshalWithEncoder(bin.NewBinEncoder(buf)))
	return buf.Bytes()
}
