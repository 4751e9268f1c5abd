package market

import (
	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
)

// StableSwap (Saber) swap info layout, 395 bytes, no discriminator.
const (
	saberSize = 395

	saberInitializedOffset = 0
	saberPausedOffset      = 1
	saberNonceOffset       = 2
	saberInitialAmpOffset  = 3
	saberTargetAmpOffset   = 11
	saberStartRampOffset   = 19
	saberStopRampOffset    = 27
	saberReserveAOffset    = 107
	saberReserveBOffset    = 139
	saberPoolMintOffset    = 171
	saberMintAOffset       = 203
	saberMintBOffset       = 235
	saberAdminFeeAOffset   = 267
	saberAdminFeeBOffset   = 299
	saberTradeFeeNumOffset = 363
	saberTradeFeeDenOffset = 371
)

type SaberCodec struct{}

func NewSaberCodec() *SaberCodec {
	return &SaberCodec{}
}

func (c *SaberCodec) Kind() domain.PoolKind {
	return domain.PoolKindSaberStable
}

func (c *SaberCodec) ProgramID() solana.PublicKey {
	return common.SaberProgramID
}

func (c *SaberCodec) Mints(data []byte) (solana.PublicKey, solana.PublicKey, error) {
	if len(data) < saberSize {
		return solana.PublicKey{}, solana.PublicKey{}, common.NewDecodeError(c.Kind().String(), solana.PublicKey{}, "account is %d bytes, want %d", len(data), saberSize)
	}
	l := newLayout(data)
	return l.pubkey(saberMintAOffset), l.pubkey(saberMintBOffset), l.err
}

func (c *SaberCodec) Dependencies(address solana.PublicKey, data []byte) ([]solana.PublicKey, error) {
	if len(data) < saberSize {
		return nil, common.NewDecodeError(c.Kind().String(), address, "account is %d bytes, want %d", len(data), saberSize)
	}
	l := newLayout(data)
	return []solana.PublicKey{l.pubkey(saberReserveAOffset), l.pubkey(saberReserveBOffset)}, l.err
}

func (c *SaberCodec) Decode(address solana.PublicKey, data []byte, accounts domain.AccountSet) (*domain.PoolState, error) {
	kind := c.Kind().String()
	if len(data) < saberSize {
		return nil, common.NewDecodeError(kind, address, "account is %d bytes, want %d", len(data), saberSize)
	}

	l := newLayout(data)
	initialized := l.u8(saberInitializedOffset)
	paused := l.u8(saberPausedOffset)
	stable := &domain.StableData{
		Nonce:            l.u8(saberNonceOffset),
		InitialAmpFactor: l.u64(saberInitialAmpOffset),
		TargetAmpFactor:  l.u64(saberTargetAmpOffset),
		StartRampTs:      l.i64(saberStartRampOffset),
		StopRampTs:       l.i64(saberStopRampOffset),
		PoolMint:         l.pubkey(saberPoolMintOffset),
		AdminFeeA:        l.pubkey(saberAdminFeeAOffset),
		AdminFeeB:        l.pubkey(saberAdminFeeBOffset),
	}
	state := &domain.PoolState{
		Address:        address,
		ProgramID:      c.ProgramID(),
		Kind:           c.Kind(),
		MintA:          l.pubkey(saberMintAOffset),
		MintB:          l.pubkey(saberMintBOffset),
		VaultA:         l.pubkey(saberReserveAOffset),
		VaultB:         l.pubkey(saberReserveBOffset),
		TokenProgramA:  common.TokenProgramID,
		TokenProgramB:  common.TokenProgramID,
		FeeNumerator:   l.u64(saberTradeFeeNumOffset),
		FeeDenominator: l.u64(saberTradeFeeDenOffset),
		Data:           stable,
	}
	if l.err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", l.err)
	}
	if initialized != 1 {
		return nil, common.NewDecodeError(kind, address, "swap is not initialized")
	}
	if paused != 0 {
		return nil, common.NewDecodeError(kind, address, "swap is paused")
	}
	if state.FeeDenominator == 0 || state.FeeNumerator >= state.FeeDenominator {
		return nil, common.NewDecodeError(kind, address, "invalid fee %d/%d", state.FeeNumerator, state.FeeDenominator)
	}
	if stable.InitialAmpFactor == 0 && stable.TargetAmpFactor == 0 {
		return nil, common.NewDecodeError(kind, address, "zero amplification")
	}

	var err error
	if state.ReserveA, err = tokenBalance(accounts, state.VaultA); err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", err)
	}
	if state.ReserveB, err = tokenBalance(accounts, state.VaultB); err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", err)
	}
	return state, nil
}
