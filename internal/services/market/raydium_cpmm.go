package market

import (
	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
)

const (
	raydiumCPMMSize   = 637
	cpmmConfigMinSize = 20

	cpmmAmmConfigOffset     = 8
	cpmmToken0VaultOffset   = 72
	cpmmToken1VaultOffset   = 104
	cpmmToken0MintOffset    = 168
	cpmmToken1MintOffset    = 200
	cpmmToken0ProgramOffset = 232
	cpmmToken1ProgramOffset = 264
	cpmmObservationOffset   = 296
	cpmmStatusOffset        = 329
	cpmmProtocolFees0Offset = 341
	cpmmProtocolFees1Offset = 349
	cpmmFundFees0Offset     = 357
	cpmmFundFees1Offset     = 365

	cpmmConfigTradeFeeOffset = 12
	cpmmFeeRateDenominator   = 1_000_000

	// status bit that disables swaps
	cpmmSwapDisabled = 1 << 2
)

var (
	cpmmPoolDiscriminator   = common.AccountDiscriminator("PoolState")
	cpmmConfigDiscriminator = common.AccountDiscriminator("AmmConfig")
)

type RaydiumCPMMCodec struct{}

func NewRaydiumCPMMCodec() *RaydiumCPMMCodec {
	return &RaydiumCPMMCodec{}
}

func (c *RaydiumCPMMCodec) Kind() domain.PoolKind {
	return domain.PoolKindRaydiumCPMM
}

func (c *RaydiumCPMMCodec) ProgramID() solana.PublicKey {
	return common.RaydiumCPMMProgramID
}

func (c *RaydiumCPMMCodec) check(address solana.PublicKey, data []byte) error {
	if len(data) < raydiumCPMMSize {
		return common.NewDecodeError(c.Kind().String(), address, "account is %d bytes, want %d", len(data), raydiumCPMMSize)
	}
	if !hasDiscriminator(data, cpmmPoolDiscriminator) {
		return common.NewDecodeError(c.Kind().String(), address, "bad discriminator")
	}
	return nil
}

func (c *RaydiumCPMMCodec) Mints(data []byte) (solana.PublicKey, solana.PublicKey, error) {
	if err := c.check(solana.PublicKey{}, data); err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	l := newLayout(data)
	return l.pubkey(cpmmToken0MintOffset), l.pubkey(cpmmToken1MintOffset), l.err
}

func (c *RaydiumCPMMCodec) Dependencies(address solana.PublicKey, data []byte) ([]solana.PublicKey, error) {
	if err := c.check(address, data); err != nil {
		return nil, err
	}
	l := newLayout(data)
	deps := []solana.PublicKey{
		l.pubkey(cpmmAmmConfigOffset),
		l.pubkey(cpmmToken0VaultOffset),
		l.pubkey(cpmmToken1VaultOffset),
	}
	return deps, l.err
}

func (c *RaydiumCPMMCodec) Decode(address solana.PublicKey, data []byte, accounts domain.AccountSet) (*domain.PoolState, error) {
	kind := c.Kind().String()
	if err := c.check(address, data); err != nil {
		return nil, err
	}

	l := newLayout(data)
	ammConfig := l.pubkey(cpmmAmmConfigOffset)
	status := l.u8(cpmmStatusOffset)
	protocol0 := l.u64(cpmmProtocolFees0Offset)
	protocol1 := l.u64(cpmmProtocolFees1Offset)
	fund0 := l.u64(cpmmFundFees0Offset)
	fund1 := l.u64(cpmmFundFees1Offset)
	state := &domain.PoolState{
		Address:        address,
		ProgramID:      c.ProgramID(),
		Kind:           c.Kind(),
		MintA:          l.pubkey(cpmmToken0MintOffset),
		MintB:          l.pubkey(cpmmToken1MintOffset),
		VaultA:         l.pubkey(cpmmToken0VaultOffset),
		VaultB:         l.pubkey(cpmmToken1VaultOffset),
		TokenProgramA:  l.pubkey(cpmmToken0ProgramOffset),
		TokenProgramB:  l.pubkey(cpmmToken1ProgramOffset),
		FeeDenominator: cpmmFeeRateDenominator,
		Data: &domain.RaydiumCPMMData{
			AmmConfig:   ammConfig,
			Observation: l.pubkey(cpmmObservationOffset),
		},
	}
	if l.err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", l.err)
	}
	if status&cpmmSwapDisabled != 0 {
		return nil, common.NewDecodeError(kind, address, "swap disabled (status %d)", status)
	}

	cfg, ok := accounts[ammConfig]
	if !ok || len(cfg) < cpmmConfigMinSize || !hasDiscriminator(cfg, cpmmConfigDiscriminator) {
		return nil, common.NewDecodeError(kind, address, "amm config %s missing or malformed", ammConfig)
	}
	cl := newLayout(cfg)
	state.FeeNumerator = cl.u64(cpmmConfigTradeFeeOffset)
	if cl.err != nil || state.FeeNumerator >= cpmmFeeRateDenominator {
		return nil, common.NewDecodeError(kind, address, "invalid trade fee rate %d", state.FeeNumerator)
	}

	vault0, err := tokenBalance(accounts, state.VaultA)
	if err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", err)
	}
	vault1, err := tokenBalance(accounts, state.VaultB)
	if err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", err)
	}
	state.ReserveA = subSaturating(vault0, protocol0+fund0)
	state.ReserveB = subSaturating(vault1, protocol1+fund1)
	return state, nil
}
