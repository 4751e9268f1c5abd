package market

import (
	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/domain"
)

// PoolCodec turns raw pool accounts into a PoolState. Implementations are
// pure: no I/O, no shared state.
type PoolCodec interface {
	Kind() domain.PoolKind

	// ProgramID is the owner program of the pool account.
	ProgramID() solana.PublicKey

	// Mints reads the two traded mints from the pool account alone. It is
	// used during discovery, before any dependent account is known.
	Mints(data []byte) (solana.PublicKey, solana.PublicKey, error)

	// Dependencies lists the extra accounts Decode needs: vaults, configs,
	// tick arrays or bin arrays.
	Dependencies(address solana.PublicKey, data []byte) ([]solana.PublicKey, error)

	// Decode builds the snapshot from the pool account and the dependency
	// accounts fetched for it. Missing required accounts yield a DecodeError.
	Decode(address solana.PublicKey, data []byte, accounts domain.AccountSet) (*domain.PoolState, error)
}

type PoolQuoter interface {
	// Quote computes the exact-in output of a swap against one snapshot.
	Quote(pool *domain.PoolState, amountIn uint64, dir domain.Direction) (domain.Quote, error)

	// SupportsPoolKind returns true if this quoter can handle the given kind
	SupportsPoolKind(kind domain.PoolKind) bool
}

// InstructionBuilder defines the interface for building swap instructions
type InstructionBuilder interface {
	// BuildSwap encodes one leg as the pool program's swap instruction with
	// leg.AmountIn as the input and leg.MinOut as the on-chain minimum.
	BuildSwap(
		leg *domain.Leg,
		owner solana.PublicKey,
		userSource solana.PublicKey,
		userDest solana.PublicKey,
	) (solana.Instruction, error)

	// SupportsPoolKind returns true if this builder can handle the given kind
	SupportsPoolKind(kind domain.PoolKind) bool
}
