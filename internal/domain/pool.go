package domain

import (
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

type PoolKind uint8

const (
	PoolKindUnknown PoolKind = iota
	PoolKindRaydiumAMM
	PoolKindRaydiumCPMM
	PoolKindWhirlpool
	PoolKindMeteoraDLMM
	PoolKindSaberStable
	PoolKindPumpAMM
)

func (k PoolKind) String() string {
	switch k {
	case PoolKindRaydiumAMM:
		return "RaydiumAMM"
	case PoolKindRaydiumCPMM:
		return "RaydiumCPMM"
	case PoolKindWhirlpool:
		return "Whirlpool"
	case PoolKindMeteoraDLMM:
		return "MeteoraDLMM"
	case PoolKindSaberStable:
		return "SaberStable"
	case PoolKindPumpAMM:
		return "PumpAMM"
	default:
		return "UNKNOWN"
	}
}

// CurveFamily groups pool kinds that share quoting math.
type CurveFamily uint8

const (
	CurveUnknown CurveFamily = iota
	CurveConstantProduct
	CurveStable
	CurveConcentrated
	CurveBin
)

func (k PoolKind) Curve() CurveFamily {
	switch k {
	case PoolKindRaydiumAMM, PoolKindRaydiumCPMM, PoolKindPumpAMM:
		return CurveConstantProduct
	case PoolKindSaberStable:
		return CurveStable
	case PoolKindWhirlpool:
		return CurveConcentrated
	case PoolKindMeteoraDLMM:
		return CurveBin
	default:
		return CurveUnknown
	}
}

// AccountSet holds raw account bytes by address for one refresh.
type AccountSet map[solana.PublicKey][]byte

// PoolState is one decoded snapshot of a pool. It is built by a codec,
// published by the pool registry and never mutated afterwards; the next
// refresh replaces it.
type PoolState struct {
	Address   solana.PublicKey
	ProgramID solana.PublicKey
	Kind      PoolKind

	MintA  solana.PublicKey
	MintB  solana.PublicKey
	VaultA solana.PublicKey
	VaultB solana.PublicKey

	TokenProgramA solana.PublicKey
	TokenProgramB solana.PublicKey

	// ReserveA and ReserveB are the tradable balances. For constant product
	// and stable pools they are the curve reserves.
	ReserveA uint64
	ReserveB uint64

	// FeeNumerator/FeeDenominator is the static trade fee. Bin pools carry a
	// dynamic component in their variant data on top of it.
	FeeNumerator   uint64
	FeeDenominator uint64

	// Timestamp is the unix time the snapshot was taken; ramps and decays are
	// evaluated at this instant.
	Timestamp int64

	Data PoolData
}

// PoolData is the kind specific part of a PoolState.
type PoolData interface {
	PoolKind() PoolKind
}

// Direction returns the swap direction that spends mint, false when the pool
// does not trade it.
func (p *PoolState) Direction(inputMint solana.PublicKey) (Direction, bool) {
	switch inputMint {
	case p.MintA:
		return AToB, true
	case p.MintB:
		return BToA, true
	}
	return AToB, false
}

func (p *PoolState) HasMint(mint solana.PublicKey) bool {
	return p.MintA == mint || p.MintB == mint
}

// OtherMint returns the side that is not mint.
func (p *PoolState) OtherMint(mint solana.PublicKey) solana.PublicKey {
	if p.MintA == mint {
		return p.MintB
	}
	return p.MintA
}

func (p *PoolState) ReserveOf(mint solana.PublicKey) uint64 {
	switch mint {
	case p.MintA:
		return p.ReserveA
	case p.MintB:
		return p.ReserveB
	}
	return 0
}

// Mints returns (input, output) for a direction.
func (p *PoolState) Mints(dir Direction) (solana.PublicKey, solana.PublicKey) {
	if dir == AToB {
		return p.MintA, p.MintB
	}
	return p.MintB, p.MintA
}

// Vaults returns (input, output) vaults for a direction.
func (p *PoolState) Vaults(dir Direction) (solana.PublicKey, solana.PublicKey) {
	if dir == AToB {
		return p.VaultA, p.VaultB
	}
	return p.VaultB, p.VaultA
}

// Reserves returns (input, output) reserves for a direction.
func (p *PoolState) Reserves(dir Direction) (uint64, uint64) {
	if dir == AToB {
		return p.ReserveA, p.ReserveB
	}
	return p.ReserveB, p.ReserveA
}

// TokenPrograms returns (input, output) token programs for a direction.
func (p *PoolState) TokenPrograms(dir Direction) (solana.PublicKey, solana.PublicKey) {
	if dir == AToB {
		return p.TokenProgramA, p.TokenProgramB
	}
	return p.TokenProgramB, p.TokenProgramA
}

// RaydiumAMMData holds the v4 accounts a swap instruction references.
type RaydiumAMMData struct {
	OpenOrders      solana.PublicKey
	TargetOrders    solana.PublicKey
	MarketID        solana.PublicKey
	MarketProgramID solana.PublicKey
}

func (*RaydiumAMMData) PoolKind() PoolKind { return PoolKindRaydiumAMM }

type RaydiumCPMMData struct {
	AmmConfig   solana.PublicKey
	Observation solana.PublicKey
}

func (*RaydiumCPMMData) PoolKind() PoolKind { return PoolKindRaydiumCPMM }

// PumpAMMData holds the Pump AMM fee schedule and the fee accounts a swap
// pays into. Side A is the pool's base mint, side B its quote mint.
type PumpAMMData struct {
	GlobalConfig         solana.PublicKey
	ProtocolFeeRecipient solana.PublicKey
	CoinCreator          solana.PublicKey

	LPFeeBps       uint64
	ProtocolFeeBps uint64
	// CreatorFeeBps is zero for pools without a coin creator.
	CreatorFeeBps uint64
}

func (*PumpAMMData) PoolKind() PoolKind { return PoolKindPumpAMM }

func (d *PumpAMMData) TotalFeeBps() uint64 {
	return d.LPFeeBps + d.ProtocolFeeBps + d.CreatorFeeBps
}

// StableData carries the amplification ramp of a StableSwap pool.
type StableData struct {
	Nonce            uint8
	InitialAmpFactor uint64
	TargetAmpFactor  uint64
	StartRampTs      int64
	StopRampTs       int64
	PoolMint         solana.PublicKey
	AdminFeeA        solana.PublicKey
	AdminFeeB        solana.PublicKey
}

func (*StableData) PoolKind() PoolKind { return PoolKindSaberStable }

// AmpFactor evaluates the linear amplification ramp at ts.
func (d *StableData) AmpFactor(ts int64) uint64 {
	if ts >= d.StopRampTs || d.StopRampTs <= d.StartRampTs {
		return d.TargetAmpFactor
	}
	if ts <= d.StartRampTs {
		return d.InitialAmpFactor
	}
	elapsed := uint64(ts - d.StartRampTs)
	span := uint64(d.StopRampTs - d.StartRampTs)
	if d.TargetAmpFactor > d.InitialAmpFactor {
		diff := new(uint256.Int).SetUint64(d.TargetAmpFactor - d.InitialAmpFactor)
		diff.Mul(diff, uint256.NewInt(elapsed)).Div(diff, uint256.NewInt(span))
		return d.InitialAmpFactor + diff.Uint64()
	}
	diff := new(uint256.Int).SetUint64(d.InitialAmpFactor - d.TargetAmpFactor)
	diff.Mul(diff, uint256.NewInt(elapsed)).Div(diff, uint256.NewInt(span))
	return d.InitialAmpFactor - diff.Uint64()
}

// Tick is an initialized tick: crossing it upward adds LiquidityNet.
type Tick struct {
	Index        int32
	LiquidityNet uint256.Int // magnitude
	NetNegative  bool
}

type TickArrayRef struct {
	Address    solana.PublicKey
	StartIndex int32
}

// WhirlpoolData is the concentrated liquidity state plus the initialized
// ticks of every loaded tick array, sorted by index.
type WhirlpoolData struct {
	TickSpacing uint16
	FeeRate     uint16 // hundredths of a bip
	Liquidity   uint256.Int
	SqrtPrice   uint256.Int // Q64.64
	TickCurrent int32
	Oracle      solana.PublicKey

	Ticks      []Tick
	TickArrays []TickArrayRef // contiguous, ascending by start index
	// LowerTick and UpperTick bound the price range covered by TickArrays.
	LowerTick int32
	UpperTick int32
}

func (*WhirlpoolData) PoolKind() PoolKind { return PoolKindWhirlpool }

type Bin struct {
	ID      int32
	AmountX uint64
	AmountY uint64
	Price   uint256.Int // Q64.64, Y per X
}

type BinArrayRef struct {
	Address solana.PublicKey
	Index   int64
}

// DLMMData is the bin state of a liquidity book pair. Bins covers the loaded
// bin arrays, sorted by id.
type DLMMData struct {
	ActiveID int32
	BinStep  uint16
	Oracle   solana.PublicKey

	BaseFactor            uint16
	BaseFeePowerFactor    uint8
	FilterPeriod          uint16
	DecayPeriod           uint16
	ReductionFactor       uint16
	VariableFeeControl    uint32
	MaxVolatilityAccum    uint32
	VolatilityAccumulator uint32
	VolatilityReference   uint32
	IndexReference        int32
	LastUpdateTimestamp   int64

	Bins      []Bin
	BinArrays []BinArrayRef // contiguous, ascending by index
	MinBinID  int32
	MaxBinID  int32
}

func (*DLMMData) PoolKind() PoolKind { return PoolKindMeteoraDLMM }

// DLMMFeePrecision is the denominator of every liquidity book fee rate.
const DLMMFeePrecision = 1_000_000_000

// BaseFee is the static part of the fee rate, in DLMMFeePrecision units.
func (d *DLMMData) BaseFee() uint64 {
	fee := uint64(d.BaseFactor) * uint64(d.BinStep) * 10
	for i := uint8(0); i < d.BaseFeePowerFactor; i++ {
		fee *= 10
	}
	return fee
}
