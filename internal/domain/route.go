package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// MintGroup is the set of pools that can round trip base -> target -> base.
// It is built once at startup and never changes; only the pool states
// behind the addresses are refreshed.
type MintGroup struct {
	TargetMint   solana.PublicKey
	BaseMint     solana.PublicKey
	Pools        []GroupPool
	ProcessDelay time.Duration
	LookupTables []solana.PublicKey
}

type GroupPool struct {
	Address solana.PublicKey
	Kind    PoolKind
}

func (g *MintGroup) Addresses() []solana.PublicKey {
	out := make([]solana.PublicKey, len(g.Pools))
	for i, p := range g.Pools {
		out[i] = p.Address
	}
	return out
}

// Leg is one swap of a route.
type Leg struct {
	Pool        *PoolState
	Direction   Direction
	InputMint   solana.PublicKey
	OutputMint  solana.PublicKey
	AmountIn    uint64
	ExpectedOut uint64
	Fee         uint64
	// MinOut is ExpectedOut reduced by the slippage tolerance; it becomes the
	// on-chain minimum for this leg.
	MinOut uint64
}

// RoutePlan is a profitable cycle starting and ending in the base mint.
type RoutePlan struct {
	TargetMint   solana.PublicKey
	BaseMint     solana.PublicKey
	Legs         []Leg
	AmountIn     uint64
	FinalOut     uint64
	FlashloanFee uint64
	// Profit is FinalOut - AmountIn - FlashloanFee, always positive.
	Profit uint64
}
