package market

import (
	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
)

// Raydium AMM v4 account layout (752 bytes, no discriminator).
const (
	raydiumAMMSize = 752

	ammStatusOffset        = 0
	ammSwapFeeNumOffset    = 176
	ammSwapFeeDenOffset    = 184
	ammNeedTakePnlCoinOff  = 192
	ammNeedTakePnlPcOff    = 200
	ammCoinVaultOffset     = 336
	ammPcVaultOffset       = 368
	ammCoinMintOffset      = 400
	ammPcMintOffset        = 432
	ammOpenOrdersOffset    = 496
	ammMarketOffset        = 528
	ammMarketProgramOffset = 560
	ammTargetOrdersOffset  = 592
)

type RaydiumAMMCodec struct{}

func NewRaydiumAMMCodec() *RaydiumAMMCodec {
	return &RaydiumAMMCodec{}
}

func (c *RaydiumAMMCodec) Kind() domain.PoolKind {
	return domain.PoolKindRaydiumAMM
}

func (c *RaydiumAMMCodec) ProgramID() solana.PublicKey {
	return common.RaydiumAMMProgramID
}

func (c *RaydiumAMMCodec) Mints(data []byte) (solana.PublicKey, solana.PublicKey, error) {
	if len(data) < raydiumAMMSize {
		return solana.PublicKey{}, solana.PublicKey{}, common.NewDecodeError(c.Kind().String(), solana.PublicKey{}, "account is %d bytes, want %d", len(data), raydiumAMMSize)
	}
	l := newLayout(data)
	return l.pubkey(ammCoinMintOffset), l.pubkey(ammPcMintOffset), l.err
}

func (c *RaydiumAMMCodec) Dependencies(address solana.PublicKey, data []byte) ([]solana.PublicKey, error) {
	if len(data) < raydiumAMMSize {
		return nil, common.NewDecodeError(c.Kind().String(), address, "account is %d bytes, want %d", len(data), raydiumAMMSize)
	}
	l := newLayout(data)
	return []solana.PublicKey{l.pubkey(ammCoinVaultOffset), l.pubkey(ammPcVaultOffset)}, l.err
}

func (c *RaydiumAMMCodec) Decode(address solana.PublicKey, data []byte, accounts domain.AccountSet) (*domain.PoolState, error) {
	kind := c.Kind().String()
	if len(data) < raydiumAMMSize {
		return nil, common.NewDecodeError(kind, address, "account is %d bytes, want %d", len(data), raydiumAMMSize)
	}

	l := newLayout(data)
	status := l.u64(ammStatusOffset)
	feeNum := l.u64(ammSwapFeeNumOffset)
	feeDen := l.u64(ammSwapFeeDenOffset)
	pnlCoin := l.u64(ammNeedTakePnlCoinOff)
	pnlPc := l.u64(ammNeedTakePnlPcOff)
	state := &domain.PoolState{
		Address:        address,
		ProgramID:      c.ProgramID(),
		Kind:           c.Kind(),
		MintA:          l.pubkey(ammCoinMintOffset),
		MintB:          l.pubkey(ammPcMintOffset),
		VaultA:         l.pubkey(ammCoinVaultOffset),
		VaultB:         l.pubkey(ammPcVaultOffset),
		TokenProgramA:  common.TokenProgramID,
		TokenProgramB:  common.TokenProgramID,
		FeeNumerator:   feeNum,
		FeeDenominator: feeDen,
		Data: &domain.RaydiumAMMData{
			OpenOrders:      l.pubkey(ammOpenOrdersOffset),
			TargetOrders:    l.pubkey(ammTargetOrdersOffset),
			MarketID:        l.pubkey(ammMarketOffset),
			MarketProgramID: l.pubkey(ammMarketProgramOffset),
		},
	}
	if l.err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", l.err)
	}
	if status == 0 {
		return nil, common.NewDecodeError(kind, address, "pool is not initialized")
	}
	if feeDen == 0 || feeNum >= feeDen {
		return nil, common.NewDecodeError(kind, address, "invalid fee %d/%d", feeNum, feeDen)
	}
	if state.MintA.IsZero() || state.MintB.IsZero() {
		return nil, common.NewDecodeError(kind, address, "zero mint")
	}

	coin, err := tokenBalance(accounts, state.VaultA)
	if err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", err)
	}
	pc, err := tokenBalance(accounts, state.VaultB)
	if err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", err)
	}
	state.ReserveA = subSaturating(coin, pnlCoin)
	state.ReserveB = subSaturating(pc, pnlPc)
	return state, nil
}
