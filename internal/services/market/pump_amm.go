package market

import (
	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
)

const (
	// through coin_creator; older pools predate the field and are skipped
	pumpPoolMinSize = 243

	pumpBaseMintOffset    = 43
	pumpQuoteMintOffset   = 75
	pumpBaseVaultOffset   = 139
	pumpQuoteVaultOffset  = 171
	pumpCoinCreatorOffset = 211
	pumpMayhemModeOffset  = 243

	pumpConfigMinSize             = 321
	pumpConfigLPFeeOffset         = 40
	pumpConfigProtocolFeeOffset   = 48
	pumpConfigDisableFlagsOffset  = 56
	pumpConfigFeeRecipientsOffset = 57
	pumpConfigFeeRecipients       = 8
	pumpConfigCreatorFeeOffset    = 313

	pumpBuyDisabled  = 1 << 3
	pumpSellDisabled = 1 << 4
)

var (
	pumpPoolDiscriminator   = common.AccountDiscriminator("Pool")
	pumpConfigDiscriminator = common.AccountDiscriminator("GlobalConfig")
)

// PumpAMMCodec decodes Pump AMM pools. Side A is the base mint. Fees come
// from the global config; pools in mayhem mode pay a fee wallet that is not
// tracked and are rejected.
type PumpAMMCodec struct{}

func NewPumpAMMCodec() *PumpAMMCodec {
	return &PumpAMMCodec{}
}

func (c *PumpAMMCodec) Kind() domain.PoolKind {
	return domain.PoolKindPumpAMM
}

func (c *PumpAMMCodec) ProgramID() solana.PublicKey {
	return common.PumpAMMProgramID
}

func (c *PumpAMMCodec) check(address solana.PublicKey, data []byte) error {
	if len(data) < pumpPoolMinSize {
		return common.NewDecodeError(c.Kind().String(), address, "account is %d bytes, want at least %d", len(data), pumpPoolMinSize)
	}
	if !hasDiscriminator(data, pumpPoolDiscriminator) {
		return common.NewDecodeError(c.Kind().String(), address, "bad discriminator")
	}
	return nil
}

func (c *PumpAMMCodec) Mints(data []byte) (solana.PublicKey, solana.PublicKey, error) {
	if err := c.check(solana.PublicKey{}, data); err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	l := newLayout(data)
	return l.pubkey(pumpBaseMintOffset), l.pubkey(pumpQuoteMintOffset), l.err
}

func (c *PumpAMMCodec) Dependencies(address solana.PublicKey, data []byte) ([]solana.PublicKey, error) {
	if err := c.check(address, data); err != nil {
		return nil, err
	}
	l := newLayout(data)
	deps := []solana.PublicKey{
		common.PumpGlobalConfig,
		l.pubkey(pumpBaseVaultOffset),
		l.pubkey(pumpQuoteVaultOffset),
	}
	return deps, l.err
}

func (c *PumpAMMCodec) Decode(address solana.PublicKey, data []byte, accounts domain.AccountSet) (*domain.PoolState, error) {
	kind := c.Kind().String()
	if err := c.check(address, data); err != nil {
		return nil, err
	}

	l := newLayout(data)
	creator := l.pubkey(pumpCoinCreatorOffset)
	state := &domain.PoolState{
		Address:        address,
		ProgramID:      c.ProgramID(),
		Kind:           c.Kind(),
		MintA:          l.pubkey(pumpBaseMintOffset),
		MintB:          l.pubkey(pumpQuoteMintOffset),
		VaultA:         l.pubkey(pumpBaseVaultOffset),
		VaultB:         l.pubkey(pumpQuoteVaultOffset),
		FeeDenominator: common.BpsDenominator,
	}
	if l.err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", l.err)
	}
	if len(data) > pumpMayhemModeOffset && l.u8(pumpMayhemModeOffset) != 0 {
		return nil, common.NewDecodeError(kind, address, "mayhem mode pool")
	}

	cfg, ok := accounts[common.PumpGlobalConfig]
	if !ok || len(cfg) < pumpConfigMinSize || !hasDiscriminator(cfg, pumpConfigDiscriminator) {
		return nil, common.NewDecodeError(kind, address, "global config %s missing or malformed", common.PumpGlobalConfig)
	}
	cl := newLayout(cfg)
	if flags := cl.u8(pumpConfigDisableFlagsOffset); flags&(pumpBuyDisabled|pumpSellDisabled) != 0 {
		return nil, common.NewDecodeError(kind, address, "swaps disabled (flags %d)", flags)
	}
	pump := &domain.PumpAMMData{
		GlobalConfig:   common.PumpGlobalConfig,
		CoinCreator:    creator,
		LPFeeBps:       cl.u64(pumpConfigLPFeeOffset),
		ProtocolFeeBps: cl.u64(pumpConfigProtocolFeeOffset),
	}
	if !creator.IsZero() {
		pump.CreatorFeeBps = cl.u64(pumpConfigCreatorFeeOffset)
	}
	for i := uint(0); i < pumpConfigFeeRecipients; i++ {
		if r := cl.pubkey(pumpConfigFeeRecipientsOffset + i*32); !r.IsZero() {
			pump.ProtocolFeeRecipient = r
			break
		}
	}
	if cl.err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", cl.err)
	}
	if pump.ProtocolFeeRecipient.IsZero() {
		return nil, common.NewDecodeError(kind, address, "global config has no protocol fee recipient")
	}
	if pump.TotalFeeBps() >= common.BpsDenominator {
		return nil, common.NewDecodeError(kind, address, "invalid fee schedule %d bps", pump.TotalFeeBps())
	}
	state.FeeNumerator = pump.TotalFeeBps()
	state.Data = pump

	var err error
	if state.ReserveA, err = tokenBalance(accounts, state.VaultA); err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", err)
	}
	if state.ReserveB, err = tokenBalance(accounts, state.VaultB); err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", err)
	}
	return state, nil
}
