package market

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
)

const (
	whirlpoolSize = 653

	wpTickSpacingOffset = 41
	wpFeeRateOffset     = 45
	wpLiquidityOffset   = 49
	wpSqrtPriceOffset   = 65
	wpTickCurrentOffset = 81
	wpMintAOffset       = 101
	wpVaultAOffset      = 133
	wpMintBOffset       = 181
	wpVaultBOffset      = 213

	tickArraySize           = 9988
	tickArrayStartOffset    = 8
	tickArrayTicksOffset    = 12
	tickArrayPoolOffset     = 9956
	tickSize                = 113
	TicksPerArray           = 88
	wpFeeRateDenominator    = 1_000_000
	tickArraysAroundCurrent = 3
	// TickArraysPerSwap is how many tick arrays a swap instruction passes.
	TickArraysPerSwap = 3

	MinTick = -443636
	MaxTick = 443636
)

var (
	whirlpoolDiscriminator = common.AccountDiscriminator("Whirlpool")
	tickArrayDiscriminator = common.AccountDiscriminator("TickArray")
)

// TickArrayStart returns the start index of the tick array holding tick.
func TickArrayStart(tick int32, spacing uint16) int32 {
	span := int32(spacing) * TicksPerArray
	start := tick / span
	if tick < 0 && tick%span != 0 {
		start--
	}
	return start * span
}

func TickArrayAddress(pool solana.PublicKey, start int32) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(common.TickArraySeed), pool.Bytes(), []byte(strconv.FormatInt(int64(start), 10))},
		common.WhirlpoolProgramID,
	)
	return addr, err
}

func WhirlpoolOracleAddress(pool solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(common.OracleSeed), pool.Bytes()},
		common.WhirlpoolProgramID,
	)
	return addr, err
}

type WhirlpoolCodec struct{}

func NewWhirlpoolCodec() *WhirlpoolCodec {
	return &WhirlpoolCodec{}
}

func (c *WhirlpoolCodec) Kind() domain.PoolKind {
	return domain.PoolKindWhirlpool
}

func (c *WhirlpoolCodec) ProgramID() solana.PublicKey {
	return common.WhirlpoolProgramID
}

func (c *WhirlpoolCodec) check(address solana.PublicKey, data []byte) error {
	if len(data) < whirlpoolSize {
		return common.NewDecodeError(c.Kind().String(), address, "account is %d bytes, want %d", len(data), whirlpoolSize)
	}
	if !hasDiscriminator(data, whirlpoolDiscriminator) {
		return common.NewDecodeError(c.Kind().String(), address, "bad discriminator")
	}
	return nil
}

func (c *WhirlpoolCodec) Mints(data []byte) (solana.PublicKey, solana.PublicKey, error) {
	if err := c.check(solana.PublicKey{}, data); err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	l := newLayout(data)
	return l.pubkey(wpMintAOffset), l.pubkey(wpMintBOffset), l.err
}

// tickArrayStarts lists the array starts around the current tick, lowest
// first, clipped to the valid tick range.
func tickArrayStarts(tickCurrent int32, spacing uint16) []int32 {
	span := int32(spacing) * TicksPerArray
	current := TickArrayStart(tickCurrent, spacing)
	starts := make([]int32, 0, 2*tickArraysAroundCurrent+1)
	for i := -tickArraysAroundCurrent; i <= tickArraysAroundCurrent; i++ {
		start := current + int32(i)*span
		if start+span <= MinTick || start > MaxTick {
			continue
		}
		starts = append(starts, start)
	}
	return starts
}

func (c *WhirlpoolCodec) Dependencies(address solana.PublicKey, data []byte) ([]solana.PublicKey, error) {
	if err := c.check(address, data); err != nil {
		return nil, err
	}
	l := newLayout(data)
	spacing := l.u16(wpTickSpacingOffset)
	tick := l.i32(wpTickCurrentOffset)
	deps := []solana.PublicKey{l.pubkey(wpVaultAOffset), l.pubkey(wpVaultBOffset)}
	if l.err != nil {
		return nil, common.NewDecodeError(c.Kind().String(), address, "%v", l.err)
	}
	if spacing == 0 {
		return nil, common.NewDecodeError(c.Kind().String(), address, "zero tick spacing")
	}
	for _, start := range tickArrayStarts(tick, spacing) {
		addr, err := TickArrayAddress(address, start)
		if err != nil {
			return nil, err
		}
		deps = append(deps, addr)
	}
	return deps, nil
}

func (c *WhirlpoolCodec) Decode(address solana.PublicKey, data []byte, accounts domain.AccountSet) (*domain.PoolState, error) {
	kind := c.Kind().String()
	if err := c.check(address, data); err != nil {
		return nil, err
	}

	l := newLayout(data)
	wp := &domain.WhirlpoolData{
		TickSpacing: l.u16(wpTickSpacingOffset),
		FeeRate:     l.u16(wpFeeRateOffset),
		Liquidity:   l.u128(wpLiquidityOffset),
		SqrtPrice:   l.u128(wpSqrtPriceOffset),
		TickCurrent: l.i32(wpTickCurrentOffset),
	}
	state := &domain.PoolState{
		Address:        address,
		ProgramID:      c.ProgramID(),
		Kind:           c.Kind(),
		MintA:          l.pubkey(wpMintAOffset),
		MintB:          l.pubkey(wpMintBOffset),
		VaultA:         l.pubkey(wpVaultAOffset),
		VaultB:         l.pubkey(wpVaultBOffset),
		FeeNumerator:   uint64(wp.FeeRate),
		FeeDenominator: wpFeeRateDenominator,
		Data:           wp,
	}
	if l.err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", l.err)
	}
	if wp.TickSpacing == 0 {
		return nil, common.NewDecodeError(kind, address, "zero tick spacing")
	}
	if wp.SqrtPrice.IsZero() {
		return nil, common.NewDecodeError(kind, address, "zero sqrt price")
	}

	var err error
	if wp.Oracle, err = WhirlpoolOracleAddress(address); err != nil {
		return nil, common.NewDecodeError(kind, address, "oracle: %v", err)
	}
	if state.ReserveA, err = tokenBalance(accounts, state.VaultA); err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", err)
	}
	if state.ReserveB, err = tokenBalance(accounts, state.VaultB); err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", err)
	}

	if err := c.loadTickArrays(address, wp, accounts); err != nil {
		return nil, err
	}
	return state, nil
}

// loadTickArrays keeps the contiguous run of fetched arrays around the
// current one. A gap ends the run; the quoter never walks past it.
func (c *WhirlpoolCodec) loadTickArrays(address solana.PublicKey, wp *domain.WhirlpoolData, accounts domain.AccountSet) error {
	kind := c.Kind().String()
	span := int32(wp.TickSpacing) * TicksPerArray
	current := TickArrayStart(wp.TickCurrent, wp.TickSpacing)
	starts := tickArrayStarts(wp.TickCurrent, wp.TickSpacing)

	type loaded struct {
		ref   domain.TickArrayRef
		ticks []domain.Tick
	}
	arrays := make(map[int32]loaded, len(starts))
	for _, start := range starts {
		addr, err := TickArrayAddress(address, start)
		if err != nil {
			return common.NewDecodeError(kind, address, "tick array pda: %v", err)
		}
		raw, ok := accounts[addr]
		if !ok || len(raw) == 0 {
			continue
		}
		ticks, err := decodeTickArray(address, raw, start, wp.TickSpacing)
		if err != nil {
			return common.NewDecodeError(kind, address, "tick array %s: %v", addr, err)
		}
		arrays[start] = loaded{ref: domain.TickArrayRef{Address: addr, StartIndex: start}, ticks: ticks}
	}

	if _, ok := arrays[current]; !ok {
		return common.NewDecodeError(kind, address, "tick array for current tick %d (start %d) missing", wp.TickCurrent, current)
	}
	lo, hi := current, current
	for {
		if _, ok := arrays[lo-span]; !ok {
			break
		}
		lo -= span
	}
	for {
		if _, ok := arrays[hi+span]; !ok {
			break
		}
		hi += span
	}

	for start := lo; start <= hi; start += span {
		a := arrays[start]
		wp.TickArrays = append(wp.TickArrays, a.ref)
		wp.Ticks = append(wp.Ticks, a.ticks...)
	}
	sort.Slice(wp.Ticks, func(i, j int) bool { return wp.Ticks[i].Index < wp.Ticks[j].Index })
	wp.LowerTick = max(lo, MinTick)
	wp.UpperTick = min(hi+span, MaxTick)
	return nil
}

// SwapTickArrays returns the tick arrays a swap passes: the one holding the
// current tick and the next two in the swap direction, repeating the last
// one at the loaded edge. B to A swaps look one spacing up. bound is the
// furthest tick the swap can move the price to with those arrays.
func SwapTickArrays(data *domain.WhirlpoolData, aToB bool) (refs [TickArraysPerSwap]domain.TickArrayRef, bound int32, err error) {
	tick := data.TickCurrent
	if !aToB {
		tick += int32(data.TickSpacing)
	}
	start := TickArrayStart(tick, data.TickSpacing)
	idx := -1
	for i, ref := range data.TickArrays {
		if ref.StartIndex == start {
			idx = i
			break
		}
	}
	if idx < 0 {
		return refs, 0, fmt.Errorf("tick array starting at %d not loaded", start)
	}

	step := 1
	if aToB {
		step = -1
	}
	for i := range refs {
		j := min(max(idx+i*step, 0), len(data.TickArrays)-1)
		refs[i] = data.TickArrays[j]
	}
	furthest := refs[TickArraysPerSwap-1].StartIndex
	if aToB {
		return refs, max(furthest, MinTick), nil
	}
	span := int32(data.TickSpacing) * TicksPerArray
	return refs, min(furthest+span, MaxTick), nil
}

func decodeTickArray(pool solana.PublicKey, data []byte, start int32, spacing uint16) ([]domain.Tick, error) {
	if len(data) < tickArraySize {
		return nil, common.NewDecodeError("TickArray", pool, "account is %d bytes, want %d", len(data), tickArraySize)
	}
	if !hasDiscriminator(data, tickArrayDiscriminator) {
		return nil, common.NewDecodeError("TickArray", pool, "bad discriminator")
	}
	l := newLayout(data)
	if got := l.i32(tickArrayStartOffset); got != start {
		return nil, common.NewDecodeError("TickArray", pool, "start index %d, want %d", got, start)
	}
	if owner := l.pubkey(tickArrayPoolOffset); owner != pool {
		return nil, common.NewDecodeError("TickArray", pool, "belongs to %s", owner)
	}

	ticks := make([]domain.Tick, 0, 8)
	for i := 0; i < TicksPerArray; i++ {
		off := uint(tickArrayTicksOffset + i*tickSize)
		if l.u8(off) == 0 {
			continue
		}
		net, negative := l.i128(off + 1)
		ticks = append(ticks, domain.Tick{
			Index:        start + int32(i)*int32(spacing),
			LiquidityNet: net,
			NetNegative:  negative,
		})
	}
	if l.err != nil {
		return nil, l.err
	}
	return ticks, nil
}
