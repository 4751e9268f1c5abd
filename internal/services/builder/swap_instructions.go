package builder

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/services/market"
)

const (
	raydiumSwapBaseInTag = 9
	saberSwapTag         = 1

	dlmmBinArraysPerSwap = 3
)

var (
	cpmmSwapBaseInputDiscriminator = common.InstructionDiscriminator("swap_base_input")
	whirlpoolSwapDiscriminator     = common.InstructionDiscriminator("swap")
	dlmmSwapDiscriminator          = common.InstructionDiscriminator("swap")
	pumpBuyDiscriminator           = common.InstructionDiscriminator("buy")
	pumpSellDiscriminator          = common.InstructionDiscriminator("sell")

	// sqrt price limits that let a swap run to the end of the loaded ticks
	whirlpoolMinSqrtPrice = bin.Uint128{Lo: 4295048016, Endianness: binary.LittleEndian}
	whirlpoolMaxSqrtPrice = bin.Uint128{Lo: 0x35bb7f32a81b33af, Hi: 0xfffec4b1, Endianness: binary.LittleEndian}
)

// RegisterBuilders installs the swap instruction builder of every pool kind.
func RegisterBuilders(registry *market.MarketRegistry) {
	registry.RegisterBuilder(&raydiumAMMBuilder{})
	registry.RegisterBuilder(&raydiumCPMMBuilder{})
	registry.RegisterBuilder(&whirlpoolBuilder{})
	registry.RegisterBuilder(&dlmmBuilder{})
	registry.RegisterBuilder(&saberBuilder{})
	registry.RegisterBuilder(&pumpAMMBuilder{})
}

type tagArgs struct {
	Tag          uint8
	AmountIn     uint64
	MinAmountOut uint64
}

type anchorArgs struct {
	Discriminator [8]byte
	AmountIn      uint64
	MinAmountOut  uint64
}

type pumpBuyArgs struct {
	Discriminator    [8]byte
	BaseAmountOut    uint64
	MaxQuoteAmountIn uint64
	TrackVolume      bool
}

type whirlpoolSwapArgs struct {
	Discriminator          [8]byte
	Amount                 uint64
	OtherAmountThreshold   uint64
	SqrtPriceLimit         bin.Uint128
	AmountSpecifiedIsInput bool
	AToB                   bool
}

func writable(pk solana.PublicKey) *solana.AccountMeta {
	return &solana.AccountMeta{PublicKey: pk, IsWritable: true}
}

func readonly(pk solana.PublicKey) *solana.AccountMeta {
	return &solana.AccountMeta{PublicKey: pk}
}

func legData[T any](leg *domain.Leg, kind domain.PoolKind) (*T, error) {
	data, ok := leg.Pool.Data.(*T)
	if !ok || data == nil {
		return nil, fmt.Errorf("%w: %s pool %s without variant data", common.ErrUnsupportedPoolKind, kind, leg.Pool.Address)
	}
	return data, nil
}

func tokenProgramOr(pk solana.PublicKey) solana.PublicKey {
	if pk.IsZero() {
		return common.TokenProgramID
	}
	return pk
}

// raydiumAMMBuilder emits swapBaseIn. The OpenBook market accounts are no
// longer read by the program; their slots carry the amm id.
type raydiumAMMBuilder struct{}

func (b *raydiumAMMBuilder) SupportsPoolKind(kind domain.PoolKind) bool {
	return kind == domain.PoolKindRaydiumAMM
}

func (b *raydiumAMMBuilder) BuildSwap(leg *domain.Leg, owner, userSource, userDest solana.PublicKey) (solana.Instruction, error) {
	data, err := legData[domain.RaydiumAMMData](leg, domain.PoolKindRaydiumAMM)
	if err != nil {
		return nil, err
	}
	pool := leg.Pool
	raw, err := bin.MarshalBorsh(&tagArgs{Tag: raydiumSwapBaseInTag, AmountIn: leg.AmountIn, MinAmountOut: leg.MinOut})
	if err != nil {
		return nil, err
	}
	marketProgram := data.MarketProgramID
	if marketProgram.IsZero() {
		marketProgram = pool.Address
	}
	marketID := data.MarketID
	if marketID.IsZero() {
		marketID = pool.Address
	}
	accounts := solana.AccountMetaSlice{
		readonly(common.TokenProgramID),
		writable(pool.Address),
		readonly(common.RaydiumAMMAuthority),
		writable(data.OpenOrders),
		writable(data.TargetOrders),
		writable(pool.VaultA),
		writable(pool.VaultB),
		readonly(marketProgram),
		writable(marketID),
		writable(pool.Address), // bids
		writable(pool.Address), // asks
		writable(pool.Address), // event queue
		writable(pool.Address), // coin vault
		writable(pool.Address), // pc vault
		readonly(pool.Address), // vault signer
		writable(userSource),
		writable(userDest),
		{PublicKey: owner, IsSigner: true},
	}
	return solana.NewInstruction(common.RaydiumAMMProgramID, accounts, raw), nil
}

type raydiumCPMMBuilder struct{}

func (b *raydiumCPMMBuilder) SupportsPoolKind(kind domain.PoolKind) bool {
	return kind == domain.PoolKindRaydiumCPMM
}

func (b *raydiumCPMMBuilder) BuildSwap(leg *domain.Leg, owner, userSource, userDest solana.PublicKey) (solana.Instruction, error) {
	data, err := legData[domain.RaydiumCPMMData](leg, domain.PoolKindRaydiumCPMM)
	if err != nil {
		return nil, err
	}
	pool := leg.Pool
	raw, err := bin.MarshalBorsh(&anchorArgs{
		Discriminator: cpmmSwapBaseInputDiscriminator,
		AmountIn:      leg.AmountIn,
		MinAmountOut:  leg.MinOut,
	})
	if err != nil {
		return nil, err
	}
	vaultIn, vaultOut := pool.Vaults(leg.Direction)
	programIn, programOut := pool.TokenPrograms(leg.Direction)
	accounts := solana.AccountMetaSlice{
		{PublicKey: owner, IsSigner: true},
		readonly(common.RaydiumCPMMAuthority),
		readonly(data.AmmConfig),
		writable(pool.Address),
		writable(userSource),
		writable(userDest),
		writable(vaultIn),
		writable(vaultOut),
		readonly(tokenProgramOr(programIn)),
		readonly(tokenProgramOr(programOut)),
		readonly(leg.InputMint),
		readonly(leg.OutputMint),
		writable(data.Observation),
	}
	return solana.NewInstruction(common.RaydiumCPMMProgramID, accounts, raw), nil
}

// whirlpoolBuilder emits the v1 swap, which only moves classic SPL tokens.
type whirlpoolBuilder struct{}

func (b *whirlpoolBuilder) SupportsPoolKind(kind domain.PoolKind) bool {
	return kind == domain.PoolKindWhirlpool
}

func (b *whirlpoolBuilder) BuildSwap(leg *domain.Leg, owner, userSource, userDest solana.PublicKey) (solana.Instruction, error) {
	data, err := legData[domain.WhirlpoolData](leg, domain.PoolKindWhirlpool)
	if err != nil {
		return nil, err
	}
	pool := leg.Pool
	if tokenProgramOr(pool.TokenProgramA) != common.TokenProgramID || tokenProgramOr(pool.TokenProgramB) != common.TokenProgramID {
		return nil, fmt.Errorf("%w: whirlpool %s trades a token-2022 mint", common.ErrUnsupportedPoolKind, pool.Address)
	}
	aToB := leg.Direction == domain.AToB
	tickArrays, err := whirlpoolTickArrays(data, aToB)
	if err != nil {
		return nil, fmt.Errorf("whirlpool %s: %w", pool.Address, err)
	}

	limit := whirlpoolMaxSqrtPrice
	if aToB {
		limit = whirlpoolMinSqrtPrice
	}
	raw, err := bin.MarshalBorsh(&whirlpoolSwapArgs{
		Discriminator:          whirlpoolSwapDiscriminator,
		Amount:                 leg.AmountIn,
		OtherAmountThreshold:   leg.MinOut,
		SqrtPriceLimit:         limit,
		AmountSpecifiedIsInput: true,
		AToB:                   aToB,
	})
	if err != nil {
		return nil, err
	}

	ownerA, ownerB := userSource, userDest
	if !aToB {
		ownerA, ownerB = userDest, userSource
	}
	accounts := solana.AccountMetaSlice{
		readonly(common.TokenProgramID),
		{PublicKey: owner, IsSigner: true},
		writable(pool.Address),
		writable(ownerA),
		writable(pool.VaultA),
		writable(ownerB),
		writable(pool.VaultB),
		writable(tickArrays[0]),
		writable(tickArrays[1]),
		writable(tickArrays[2]),
		writable(data.Oracle),
	}
	return solana.NewInstruction(common.WhirlpoolProgramID, accounts, raw), nil
}

// whirlpoolTickArrays lists the tick array addresses the swap passes, in
// the order the program walks them.
func whirlpoolTickArrays(data *domain.WhirlpoolData, aToB bool) ([market.TickArraysPerSwap]solana.PublicKey, error) {
	var out [market.TickArraysPerSwap]solana.PublicKey
	refs, _, err := market.SwapTickArrays(data, aToB)
	if err != nil {
		return out, err
	}
	for i, ref := range refs {
		out[i] = ref.Address
	}
	return out, nil
}

type dlmmBuilder struct{}

func (b *dlmmBuilder) SupportsPoolKind(kind domain.PoolKind) bool {
	return kind == domain.PoolKindMeteoraDLMM
}

func (b *dlmmBuilder) BuildSwap(leg *domain.Leg, owner, userSource, userDest solana.PublicKey) (solana.Instruction, error) {
	data, err := legData[domain.DLMMData](leg, domain.PoolKindMeteoraDLMM)
	if err != nil {
		return nil, err
	}
	pool := leg.Pool
	raw, err := bin.MarshalBorsh(&anchorArgs{
		Discriminator: dlmmSwapDiscriminator,
		AmountIn:      leg.AmountIn,
		MinAmountOut:  leg.MinOut,
	})
	if err != nil {
		return nil, err
	}
	eventAuthority, err := GetEventAuthorityPDA(common.MeteoraDLMMProgramID)
	if err != nil {
		return nil, err
	}
	binArrays, err := dlmmBinArrays(data, leg.Direction == domain.AToB)
	if err != nil {
		return nil, fmt.Errorf("dlmm %s: %w", pool.Address, err)
	}

	// optional accounts are passed as the program id
	accounts := solana.AccountMetaSlice{
		writable(pool.Address),
		readonly(common.MeteoraDLMMProgramID), // bin array bitmap extension
		writable(pool.VaultA),
		writable(pool.VaultB),
		writable(userSource),
		writable(userDest),
		readonly(pool.MintA),
		readonly(pool.MintB),
		writable(data.Oracle),
		readonly(common.MeteoraDLMMProgramID), // host fee
		{PublicKey: owner, IsSigner: true},
		readonly(tokenProgramOr(pool.TokenProgramA)),
		readonly(tokenProgramOr(pool.TokenProgramB)),
		readonly(eventAuthority),
		readonly(common.MeteoraDLMMProgramID),
	}
	for _, addr := range binArrays {
		accounts = append(accounts, writable(addr))
	}
	return solana.NewInstruction(common.MeteoraDLMMProgramID, accounts, raw), nil
}

// dlmmBinArrays lists the loaded arrays from the active one towards the
// direction of the swap: down for X to Y, up for Y to X.
func dlmmBinArrays(data *domain.DLMMData, swapForY bool) ([]solana.PublicKey, error) {
	active := market.BinArrayIndex(data.ActiveID)
	idx := -1
	for i, ref := range data.BinArrays {
		if ref.Index == active {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("bin array %d not loaded", active)
	}
	step := 1
	if swapForY {
		step = -1
	}
	out := make([]solana.PublicKey, 0, dlmmBinArraysPerSwap)
	for j := idx; j >= 0 && j < len(data.BinArrays) && len(out) < dlmmBinArraysPerSwap; j += step {
		out = append(out, data.BinArrays[j].Address)
	}
	return out, nil
}

type saberBuilder struct{}

func (b *saberBuilder) SupportsPoolKind(kind domain.PoolKind) bool {
	return kind == domain.PoolKindSaberStable
}

func (b *saberBuilder) BuildSwap(leg *domain.Leg, owner, userSource, userDest solana.PublicKey) (solana.Instruction, error) {
	data, err := legData[domain.StableData](leg, domain.PoolKindSaberStable)
	if err != nil {
		return nil, err
	}
	pool := leg.Pool
	authority, err := GetSaberSwapAuthority(pool.Address, data.Nonce)
	if err != nil {
		return nil, fmt.Errorf("saber %s authority: %w", pool.Address, err)
	}
	raw, err := bin.MarshalBorsh(&tagArgs{Tag: saberSwapTag, AmountIn: leg.AmountIn, MinAmountOut: leg.MinOut})
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut := pool.Vaults(leg.Direction)
	// admin fees are taken in the output token
	adminFee := data.AdminFeeB
	if leg.Direction == domain.BToA {
		adminFee = data.AdminFeeA
	}
	accounts := solana.AccountMetaSlice{
		readonly(pool.Address),
		readonly(authority),
		{PublicKey: owner, IsSigner: true},
		writable(userSource),
		writable(reserveIn),
		writable(reserveOut),
		writable(userDest),
		writable(adminFee),
		readonly(common.TokenProgramID),
	}
	return solana.NewInstruction(common.SaberProgramID, accounts, raw), nil
}

// pumpAMMBuilder emits sell for base to quote and buy for quote to base. buy
// is exact output: it asks for the expected base amount and caps the quote
// spent at the leg input, so a price move fails the leg instead of slipping.
type pumpAMMBuilder struct{}

func (b *pumpAMMBuilder) SupportsPoolKind(kind domain.PoolKind) bool {
	return kind == domain.PoolKindPumpAMM
}

func (b *pumpAMMBuilder) BuildSwap(leg *domain.Leg, owner, userSource, userDest solana.PublicKey) (solana.Instruction, error) {
	data, err := legData[domain.PumpAMMData](leg, domain.PoolKindPumpAMM)
	if err != nil {
		return nil, err
	}
	pool := leg.Pool
	sell := leg.Direction == domain.AToB

	var raw []byte
	if sell {
		raw, err = bin.MarshalBorsh(&anchorArgs{
			Discriminator: pumpSellDiscriminator,
			AmountIn:      leg.AmountIn,
			MinAmountOut:  leg.MinOut,
		})
	} else {
		raw, err = bin.MarshalBorsh(&pumpBuyArgs{
			Discriminator:    pumpBuyDiscriminator,
			BaseAmountOut:    leg.ExpectedOut,
			MaxQuoteAmountIn: leg.AmountIn,
		})
	}
	if err != nil {
		return nil, err
	}

	userBase, userQuote := userSource, userDest
	if !sell {
		userBase, userQuote = userDest, userSource
	}
	baseProgram := tokenProgramOr(pool.TokenProgramA)
	quoteProgram := tokenProgramOr(pool.TokenProgramB)
	feeRecipientATA, err := GetATAAddressForMint(data.ProtocolFeeRecipient, pool.MintB, quoteProgram)
	if err != nil {
		return nil, fmt.Errorf("pump %s fee recipient: %w", pool.Address, err)
	}
	vaultAuthority, err := GetPumpCreatorVaultAuthority(data.CoinCreator)
	if err != nil {
		return nil, fmt.Errorf("pump %s creator vault: %w", pool.Address, err)
	}
	vaultATA, err := GetATAAddressForMint(vaultAuthority, pool.MintB, quoteProgram)
	if err != nil {
		return nil, fmt.Errorf("pump %s creator vault: %w", pool.Address, err)
	}
	eventAuthority, err := GetEventAuthorityPDA(common.PumpAMMProgramID)
	if err != nil {
		return nil, err
	}
	feeConfig, err := GetPumpFeeConfig()
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		writable(pool.Address),
		{PublicKey: owner, IsSigner: true, IsWritable: true},
		readonly(data.GlobalConfig),
		readonly(pool.MintA),
		readonly(pool.MintB),
		writable(userBase),
		writable(userQuote),
		writable(pool.VaultA),
		writable(pool.VaultB),
		readonly(data.ProtocolFeeRecipient),
		writable(feeRecipientATA),
		readonly(baseProgram),
		readonly(quoteProgram),
		readonly(common.SystemProgramID),
		readonly(common.ATAProgramID),
		readonly(eventAuthority),
		readonly(common.PumpAMMProgramID),
		writable(vaultATA),
		readonly(vaultAuthority),
	}
	if !sell {
		globalVolume, err := GetPumpGlobalVolumeAccumulator()
		if err != nil {
			return nil, err
		}
		userVolume, err := GetPumpUserVolumeAccumulator(owner)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, readonly(globalVolume), writable(userVolume))
	}
	accounts = append(accounts, readonly(feeConfig), readonly(common.PumpFeeProgramID))
	return solana.NewInstruction(common.PumpAMMProgramID, accounts, raw), nil
}
