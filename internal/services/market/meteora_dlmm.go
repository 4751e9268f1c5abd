package market

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
)

const (
	lbPairSize = 904

	lbBaseFactorOffset         = 8
	lbFilterPeriodOffset       = 10
	lbDecayPeriodOffset        = 12
	lbReductionFactorOffset    = 14
	lbVariableFeeControlOffset = 16
	lbMaxVolAccumOffset        = 20
	lbBaseFeePowerOffset       = 34
	lbVolAccumulatorOffset     = 40
	lbVolReferenceOffset       = 44
	lbIndexReferenceOffset     = 48
	lbLastUpdateOffset         = 56
	lbActiveIDOffset           = 76
	lbBinStepOffset            = 80
	lbStatusOffset             = 82
	lbMintXOffset              = 88
	lbMintYOffset              = 120
	lbReserveXOffset           = 152
	lbReserveYOffset           = 184
	lbOracleOffset             = 552

	binArraySize        = 10136
	binArrayIndexOffset = 8
	binArrayPairOffset  = 24
	binArrayBinsOffset  = 56
	binSize             = 144
	BinsPerArray        = 70

	binArraysAroundActive = 2
)

var (
	lbPairDiscriminator   = common.AccountDiscriminator("LbPair")
	binArrayDiscriminator = common.AccountDiscriminator("BinArray")
)

// BinArrayIndex returns the index of the bin array holding binID.
func BinArrayIndex(binID int32) int64 {
	idx := int64(binID) / BinsPerArray
	if binID < 0 && int64(binID)%BinsPerArray != 0 {
		idx--
	}
	return idx
}

func BinArrayAddress(pair solana.PublicKey, index int64) (solana.PublicKey, error) {
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], uint64(index))
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(common.BinArraySeed), pair.Bytes(), seed[:]},
		common.MeteoraDLMMProgramID,
	)
	return addr, err
}

type MeteoraDLMMCodec struct{}

func NewMeteoraDLMMCodec() *MeteoraDLMMCodec {
	return &MeteoraDLMMCodec{}
}

func (c *MeteoraDLMMCodec) Kind() domain.PoolKind {
	return domain.PoolKindMeteoraDLMM
}

func (c *MeteoraDLMMCodec) ProgramID() solana.PublicKey {
	return common.MeteoraDLMMProgramID
}

func (c *MeteoraDLMMCodec) check(address solana.PublicKey, data []byte) error {
	if len(data) < lbPairSize {
		return common.NewDecodeError(c.Kind().String(), address, "account is %d bytes, want %d", len(data), lbPairSize)
	}
	if !hasDiscriminator(data, lbPairDiscriminator) {
		return common.NewDecodeError(c.Kind().String(), address, "bad discriminator")
	}
	return nil
}

func (c *MeteoraDLMMCodec) Mints(data []byte) (solana.PublicKey, solana.PublicKey, error) {
	if err := c.check(solana.PublicKey{}, data); err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	l := newLayout(data)
	return l.pubkey(lbMintXOffset), l.pubkey(lbMintYOffset), l.err
}

func binArrayIndexes(activeID int32) []int64 {
	center := BinArrayIndex(activeID)
	out := make([]int64, 0, 2*binArraysAroundActive+1)
	for i := int64(-binArraysAroundActive); i <= binArraysAroundActive; i++ {
		out = append(out, center+i)
	}
	return out
}

func (c *MeteoraDLMMCodec) Dependencies(address solana.PublicKey, data []byte) ([]solana.PublicKey, error) {
	if err := c.check(address, data); err != nil {
		return nil, err
	}
	l := newLayout(data)
	active := l.i32(lbActiveIDOffset)
	deps := []solana.PublicKey{l.pubkey(lbReserveXOffset), l.pubkey(lbReserveYOffset)}
	if l.err != nil {
		return nil, common.NewDecodeError(c.Kind().String(), address, "%v", l.err)
	}
	for _, idx := range binArrayIndexes(active) {
		addr, err := BinArrayAddress(address, idx)
		if err != nil {
			return nil, err
		}
		deps = append(deps, addr)
	}
	return deps, nil
}

func (c *MeteoraDLMMCodec) Decode(address solana.PublicKey, data []byte, accounts domain.AccountSet) (*domain.PoolState, error) {
	kind := c.Kind().String()
	if err := c.check(address, data); err != nil {
		return nil, err
	}

	l := newLayout(data)
	dlmm := &domain.DLMMData{
		ActiveID:              l.i32(lbActiveIDOffset),
		BinStep:               l.u16(lbBinStepOffset),
		Oracle:                l.pubkey(lbOracleOffset),
		BaseFactor:            l.u16(lbBaseFactorOffset),
		BaseFeePowerFactor:    l.u8(lbBaseFeePowerOffset),
		FilterPeriod:          l.u16(lbFilterPeriodOffset),
		DecayPeriod:           l.u16(lbDecayPeriodOffset),
		ReductionFactor:       l.u16(lbReductionFactorOffset),
		VariableFeeControl:    l.u32(lbVariableFeeControlOffset),
		MaxVolatilityAccum:    l.u32(lbMaxVolAccumOffset),
		VolatilityAccumulator: l.u32(lbVolAccumulatorOffset),
		VolatilityReference:   l.u32(lbVolReferenceOffset),
		IndexReference:        l.i32(lbIndexReferenceOffset),
		LastUpdateTimestamp:   l.i64(lbLastUpdateOffset),
	}
	status := l.u8(lbStatusOffset)
	state := &domain.PoolState{
		Address:        address,
		ProgramID:      c.ProgramID(),
		Kind:           c.Kind(),
		MintA:          l.pubkey(lbMintXOffset),
		MintB:          l.pubkey(lbMintYOffset),
		VaultA:         l.pubkey(lbReserveXOffset),
		VaultB:         l.pubkey(lbReserveYOffset),
		FeeNumerator:   dlmm.BaseFee(),
		FeeDenominator: domain.DLMMFeePrecision,
		Data:           dlmm,
	}
	if l.err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", l.err)
	}
	if status != 0 {
		return nil, common.NewDecodeError(kind, address, "pair disabled (status %d)", status)
	}
	if dlmm.BinStep == 0 {
		return nil, common.NewDecodeError(kind, address, "zero bin step")
	}

	var err error
	if state.ReserveA, err = tokenBalance(accounts, state.VaultA); err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", err)
	}
	if state.ReserveB, err = tokenBalance(accounts, state.VaultB); err != nil {
		return nil, common.NewDecodeError(kind, address, "%v", err)
	}

	if err := c.loadBinArrays(address, dlmm, accounts); err != nil {
		return nil, err
	}
	return state, nil
}

// loadBinArrays keeps the contiguous run of fetched arrays around the
// active bin. Only bins holding liquidity are retained.
func (c *MeteoraDLMMCodec) loadBinArrays(address solana.PublicKey, dlmm *domain.DLMMData, accounts domain.AccountSet) error {
	kind := c.Kind().String()
	center := BinArrayIndex(dlmm.ActiveID)

	type loaded struct {
		ref  domain.BinArrayRef
		bins []domain.Bin
	}
	arrays := make(map[int64]loaded)
	for _, idx := range binArrayIndexes(dlmm.ActiveID) {
		addr, err := BinArrayAddress(address, idx)
		if err != nil {
			return common.NewDecodeError(kind, address, "bin array pda: %v", err)
		}
		raw, ok := accounts[addr]
		if !ok || len(raw) == 0 {
			continue
		}
		bins, err := decodeBinArray(address, raw, idx)
		if err != nil {
			return common.NewDecodeError(kind, address, "bin array %s: %v", addr, err)
		}
		arrays[idx] = loaded{ref: domain.BinArrayRef{Address: addr, Index: idx}, bins: bins}
	}

	if _, ok := arrays[center]; !ok {
		return common.NewDecodeError(kind, address, "bin array %d for active bin %d missing", center, dlmm.ActiveID)
	}
	lo, hi := center, center
	for {
		if _, ok := arrays[lo-1]; !ok {
			break
		}
		lo--
	}
	for {
		if _, ok := arrays[hi+1]; !ok {
			break
		}
		hi++
	}

	for idx := lo; idx <= hi; idx++ {
		a := arrays[idx]
		dlmm.BinArrays = append(dlmm.BinArrays, a.ref)
		dlmm.Bins = append(dlmm.Bins, a.bins...)
	}
	dlmm.MinBinID = int32(lo * BinsPerArray)
	dlmm.MaxBinID = int32((hi+1)*BinsPerArray - 1)
	return nil
}

func decodeBinArray(pair solana.PublicKey, data []byte, index int64) ([]domain.Bin, error) {
	if len(data) < binArraySize {
		return nil, common.NewDecodeError("BinArray", pair, "account is %d bytes, want %d", len(data), binArraySize)
	}
	if !hasDiscriminator(data, binArrayDiscriminator) {
		return nil, common.NewDecodeError("BinArray", pair, "bad discriminator")
	}
	l := newLayout(data)
	if got := l.i64(binArrayIndexOffset); got != index {
		return nil, common.NewDecodeError("BinArray", pair, "index %d, want %d", got, index)
	}
	if owner := l.pubkey(binArrayPairOffset); owner != pair {
		return nil, common.NewDecodeError("BinArray", pair, "belongs to %s", owner)
	}

	bins := make([]domain.Bin, 0, 16)
	for i := 0; i < BinsPerArray; i++ {
		off := uint(binArrayBinsOffset + i*binSize)
		b := domain.Bin{
			ID:      int32(index*BinsPerArray) + int32(i),
			AmountX: l.u64(off),
			AmountY: l.u64(off + 8),
			Price:   l.u128(off + 16),
		}
		if (b.AmountX == 0 && b.AmountY == 0) || b.Price.IsZero() {
			continue
		}
		bins = append(bins, b)
	}
	if l.err != nil {
		return nil, l.err
	}
	return bins, nil
}
