package market

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaydiumAMMDecode(t *testing.T) {
	base := solana.NewWallet().PublicKey()
	target := solana.NewWallet().PublicKey()
	f := newRaydiumAMMFixture(base, target)
	data := f.data(25, 10_000, 0, 0)
	accounts := domain.AccountSet{
		f.coinVault: tokenAccountData(base, 1_000_000),
		f.pcVault:   tokenAccountData(target, 2_000_000),
	}

	codec := NewRaydiumAMMCodec()
	deps, err := codec.Dependencies(f.address, data)
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{f.coinVault, f.pcVault}, deps)

	state, err := codec.Decode(f.address, data, accounts)
	require.NoError(t, err)
	assert.Equal(t, domain.PoolKindRaydiumAMM, state.Kind)
	assert.Equal(t, base, state.MintA)
	assert.Equal(t, target, state.MintB)
	assert.Equal(t, uint64(1_000_000), state.ReserveA)
	assert.Equal(t, uint64(2_000_000), state.ReserveB)
	assert.Equal(t, uint64(25), state.FeeNumerator)
	assert.Equal(t, uint64(10_000), state.FeeDenominator)
	assert.Equal(t, common.TokenProgramID, state.TokenProgramA)
	_, ok := state.Data.(*domain.RaydiumAMMData)
	assert.True(t, ok)
}

func TestRaydiumAMMDecodeSubtractsPendingPnl(t *testing.T) {
	f := newRaydiumAMMFixture(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	accounts := domain.AccountSet{
		f.coinVault: tokenAccountData(f.coinMint, 1_000_500),
		f.pcVault:   tokenAccountData(f.pcMint, 2_000_000),
	}

	state, err := NewRaydiumAMMCodec().Decode(f.address, f.data(25, 10_000, 500, 3_000_000), accounts)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), state.ReserveA)
	assert.Equal(t, uint64(0), state.ReserveB)
}

func TestRaydiumAMMRejectsBadAccounts(t *testing.T) {
	f := newRaydiumAMMFixture(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	accounts := domain.AccountSet{
		f.coinVault: tokenAccountData(f.coinMint, 1),
		f.pcVault:   tokenAccountData(f.pcMint, 1),
	}
	codec := NewRaydiumAMMCodec()

	tests := []struct {
		name     string
		data     []byte
		accounts domain.AccountSet
	}{
		{"truncated", f.data(25, 10_000, 0, 0)[:400], accounts},
		{"zeroed", make([]byte, raydiumAMMSize), accounts},
		{"zero fee denominator", f.data(25, 0, 0, 0), accounts},
		{"missing vault", f.data(25, 10_000, 0, 0), domain.AccountSet{f.coinVault: tokenAccountData(f.coinMint, 1)}},
		{"uninitialized vault", f.data(25, 10_000, 0, 0), domain.AccountSet{
			f.coinVault: tokenAccountData(f.coinMint, 1),
			f.pcVault:   make([]byte, 165),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(f.address, tt.data, tt.accounts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrDecode))
			var de *common.DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, "RaydiumAMM", de.Kind)
		})
	}
}

func cpmmFixture(t *testing.T, status uint8) (solana.PublicKey, []byte, domain.AccountSet) {
	t.Helper()
	address := solana.NewWallet().PublicKey()
	config := solana.NewWallet().PublicKey()
	vault0 := solana.NewWallet().PublicKey()
	vault1 := solana.NewWallet().PublicKey()
	mint0 := solana.NewWallet().PublicKey()
	mint1 := solana.NewWallet().PublicKey()

	buf := make([]byte, raydiumCPMMSize)
	copy(buf, cpmmPoolDiscriminator[:])
	putKey(buf, cpmmAmmConfigOffset, config)
	putKey(buf, cpmmToken0VaultOffset, vault0)
	putKey(buf, cpmmToken1VaultOffset, vault1)
	putKey(buf, cpmmToken0MintOffset, mint0)
	putKey(buf, cpmmToken1MintOffset, mint1)
	putKey(buf, cpmmToken0ProgramOffset, common.TokenProgramID)
	putKey(buf, cpmmToken1ProgramOffset, common.Token2022ID)
	buf[cpmmStatusOffset] = status
	putU64(buf, cpmmProtocolFees0Offset, 100)
	putU64(buf, cpmmFundFees0Offset, 50)
	putU64(buf, cpmmProtocolFees1Offset, 10)

	cfg := make([]byte, 236)
	copy(cfg, cpmmConfigDiscriminator[:])
	putU64(cfg, cpmmConfigTradeFeeOffset, 2_500)

	return address, buf, domain.AccountSet{
		config: cfg,
		vault0: tokenAccountData(mint0, 10_150),
		vault1: tokenAccountData(mint1, 20_010),
	}
}

func TestRaydiumCPMMDecode(t *testing.T) {
	address, data, accounts := cpmmFixture(t, 0)
	codec := NewRaydiumCPMMCodec()

	deps, err := codec.Dependencies(address, data)
	require.NoError(t, err)
	assert.Len(t, deps, 3)

	state, err := codec.Decode(address, data, accounts)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), state.ReserveA)
	assert.Equal(t, uint64(20_000), state.ReserveB)
	assert.Equal(t, uint64(2_500), state.FeeNumerator)
	assert.Equal(t, uint64(1_000_000), state.FeeDenominator)
	assert.Equal(t, common.Token2022ID, state.TokenProgramB)
}

func TestRaydiumCPMMRejectsDisabledSwap(t *testing.T) {
	address, data, accounts := cpmmFixture(t, cpmmSwapDisabled)
	_, err := NewRaydiumCPMMCodec().Decode(address, data, accounts)
	assert.ErrorIs(t, err, common.ErrDecode)

	data[0] ^= 0xff
	_, err = NewRaydiumCPMMCodec().Decode(address, data, accounts)
	assert.ErrorIs(t, err, common.ErrDecode)
}

func saberFixture(paused bool) (solana.PublicKey, []byte, domain.AccountSet) {
	address := solana.NewWallet().PublicKey()
	reserveA := solana.NewWallet().PublicKey()
	reserveB := solana.NewWallet().PublicKey()
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()

	buf := make([]byte, saberSize)
	buf[saberInitializedOffset] = 1
	if paused {
		buf[saberPausedOffset] = 1
	}
	buf[saberNonceOffset] = 254
	putU64(buf, saberInitialAmpOffset, 100)
	putU64(buf, saberTargetAmpOffset, 100)
	putKey(buf, saberReserveAOffset, reserveA)
	putKey(buf, saberReserveBOffset, reserveB)
	putKey(buf, saberMintAOffset, mintA)
	putKey(buf, saberMintBOffset, mintB)
	putKey(buf, saberAdminFeeAOffset, solana.NewWallet().PublicKey())
	putKey(buf, saberAdminFeeBOffset, solana.NewWallet().PublicKey())
	putU64(buf, saberTradeFeeNumOffset, 4)
	putU64(buf, saberTradeFeeDenOffset, 10_000)

	return address, buf, domain.AccountSet{
		reserveA: tokenAccountData(mintA, 5_000_000),
		reserveB: tokenAccountData(mintB, 4_000_000),
	}
}

func TestSaberDecode(t *testing.T) {
	address, data, accounts := saberFixture(false)
	state, err := NewSaberCodec().Decode(address, data, accounts)
	require.NoError(t, err)

	stable, ok := state.Data.(*domain.StableData)
	require.True(t, ok)
	assert.Equal(t, uint8(254), stable.Nonce)
	assert.Equal(t, uint64(100), stable.AmpFactor(0))
	assert.Equal(t, uint64(5_000_000), state.ReserveA)
	assert.Equal(t, uint64(4_000_000), state.ReserveB)
	assert.Equal(t, uint64(4), state.FeeNumerator)

	address, data, accounts = saberFixture(true)
	_, err = NewSaberCodec().Decode(address, data, accounts)
	assert.ErrorIs(t, err, common.ErrDecode)
}

func TestTickArrayStart(t *testing.T) {
	assert.Equal(t, int32(0), TickArrayStart(0, 64))
	assert.Equal(t, int32(0), TickArrayStart(5631, 64))
	assert.Equal(t, int32(5632), TickArrayStart(5632, 64))
	assert.Equal(t, int32(-5632), TickArrayStart(-1, 64))
	assert.Equal(t, int32(-5632), TickArrayStart(-5632, 64))
	assert.Equal(t, int32(-11264), TickArrayStart(-5633, 64))
}

func TestBinArrayIndex(t *testing.T) {
	assert.Equal(t, int64(0), BinArrayIndex(0))
	assert.Equal(t, int64(0), BinArrayIndex(69))
	assert.Equal(t, int64(1), BinArrayIndex(70))
	assert.Equal(t, int64(-1), BinArrayIndex(-1))
	assert.Equal(t, int64(-1), BinArrayIndex(-70))
	assert.Equal(t, int64(-2), BinArrayIndex(-71))
}

type whirlpoolFixture struct {
	address solana.PublicKey
	data    []byte
	vaultA  solana.PublicKey
	vaultB  solana.PublicKey
	mintA   solana.PublicKey
	mintB   solana.PublicKey
}

func newWhirlpoolFixture(tickCurrent int32, spacing uint16) whirlpoolFixture {
	f := whirlpoolFixture{
		address: solana.NewWallet().PublicKey(),
		vaultA:  solana.NewWallet().PublicKey(),
		vaultB:  solana.NewWallet().PublicKey(),
		mintA:   solana.NewWallet().PublicKey(),
		mintB:   solana.NewWallet().PublicKey(),
	}
	buf := make([]byte, whirlpoolSize)
	copy(buf, whirlpoolDiscriminator[:])
	putU16(buf, wpTickSpacingOffset, spacing)
	putU16(buf, wpFeeRateOffset, 3_000)
	putU128(buf, wpLiquidityOffset, 1_000_000_000)
	putU128(buf, wpSqrtPriceOffset, 1<<63)
	putU32(buf, wpTickCurrentOffset, uint32(tickCurrent))
	putKey(buf, wpMintAOffset, f.mintA)
	putKey(buf, wpVaultAOffset, f.vaultA)
	putKey(buf, wpMintBOffset, f.mintB)
	putKey(buf, wpVaultBOffset, f.vaultB)
	f.data = buf
	return f
}

// tickArray builds a tick array with one initialized tick at offset slot.
func (f whirlpoolFixture) tickArray(start int32, slot int, net int64) []byte {
	buf := make([]byte, tickArraySize)
	copy(buf, tickArrayDiscriminator[:])
	putU32(buf, tickArrayStartOffset, uint32(start))
	off := tickArrayTicksOffset + slot*tickSize
	buf[off] = 1
	if net < 0 {
		putI128Neg(buf, off+1, uint64(-net))
	} else {
		putU128(buf, off+1, uint64(net))
	}
	putKey(buf, tickArrayPoolOffset, f.address)
	return buf
}

func TestWhirlpoolDecode(t *testing.T) {
	f := newWhirlpoolFixture(100, 64)
	codec := NewWhirlpoolCodec()

	deps, err := codec.Dependencies(f.address, f.data)
	require.NoError(t, err)
	assert.Len(t, deps, 2+7)

	current, err := TickArrayAddress(f.address, 0)
	require.NoError(t, err)
	below, err := TickArrayAddress(f.address, -5632)
	require.NoError(t, err)
	farAbove, err := TickArrayAddress(f.address, 2*5632)
	require.NoError(t, err)

	accounts := domain.AccountSet{
		f.vaultA: tokenAccountData(f.mintA, 7),
		f.vaultB: tokenAccountData(f.mintB, 9),
		current:  f.tickArray(0, 3, 500),
		below:    f.tickArray(-5632, 10, -200),
		// not contiguous with the current array: ignored
		farAbove: f.tickArray(2*5632, 0, 1),
	}

	state, err := codec.Decode(f.address, f.data, accounts)
	require.NoError(t, err)
	wp := state.Data.(*domain.WhirlpoolData)
	assert.Equal(t, int32(-5632), wp.LowerTick)
	assert.Equal(t, int32(5632), wp.UpperTick)
	require.Len(t, wp.TickArrays, 2)
	assert.Equal(t, below, wp.TickArrays[0].Address)
	require.Len(t, wp.Ticks, 2)
	assert.Equal(t, int32(-5632+10*64), wp.Ticks[0].Index)
	assert.True(t, wp.Ticks[0].NetNegative)
	assert.Equal(t, uint64(200), wp.Ticks[0].LiquidityNet.Uint64())
	assert.Equal(t, int32(3*64), wp.Ticks[1].Index)
	assert.False(t, wp.Ticks[1].NetNegative)
	assert.Equal(t, uint64(3_000), state.FeeNumerator)
	assert.False(t, wp.Oracle.IsZero())
}

func TestWhirlpoolDecodeRequiresCurrentTickArray(t *testing.T) {
	f := newWhirlpoolFixture(100, 64)
	below, err := TickArrayAddress(f.address, -5632)
	require.NoError(t, err)
	accounts := domain.AccountSet{
		f.vaultA: tokenAccountData(f.mintA, 7),
		f.vaultB: tokenAccountData(f.mintB, 9),
		below:    f.tickArray(-5632, 0, 1),
	}
	_, err = NewWhirlpoolCodec().Decode(f.address, f.data, accounts)
	assert.ErrorIs(t, err, common.ErrDecode)
}

func TestMeteoraDLMMDecode(t *testing.T) {
	address := solana.NewWallet().PublicKey()
	reserveX := solana.NewWallet().PublicKey()
	reserveY := solana.NewWallet().PublicKey()
	mintX := solana.NewWallet().PublicKey()
	mintY := solana.NewWallet().PublicKey()

	buf := make([]byte, lbPairSize)
	copy(buf, lbPairDiscriminator[:])
	putU16(buf, lbBaseFactorOffset, 10_000)
	putU32(buf, lbActiveIDOffset, 10)
	putU16(buf, lbBinStepOffset, 25)
	putKey(buf, lbMintXOffset, mintX)
	putKey(buf, lbMintYOffset, mintY)
	putKey(buf, lbReserveXOffset, reserveX)
	putKey(buf, lbReserveYOffset, reserveY)

	arr := make([]byte, binArraySize)
	copy(arr, binArrayDiscriminator[:])
	putKey(arr, binArrayPairOffset, address)
	off := binArrayBinsOffset + 10*binSize
	putU64(arr, off, 1_000)
	putU64(arr, off+8, 2_000)
	putU128(arr, off+16, 1<<62)

	arrAddr, err := BinArrayAddress(address, 0)
	require.NoError(t, err)
	accounts := domain.AccountSet{
		reserveX: tokenAccountData(mintX, 1_000),
		reserveY: tokenAccountData(mintY, 2_000),
		arrAddr:  arr,
	}

	codec := NewMeteoraDLMMCodec()
	deps, err := codec.Dependencies(address, buf)
	require.NoError(t, err)
	assert.Len(t, deps, 2+5)
	assert.Contains(t, deps, arrAddr)

	state, err := codec.Decode(address, buf, accounts)
	require.NoError(t, err)
	dlmm := state.Data.(*domain.DLMMData)
	assert.Equal(t, int32(0), dlmm.MinBinID)
	assert.Equal(t, int32(69), dlmm.MaxBinID)
	require.Len(t, dlmm.Bins, 1)
	assert.Equal(t, int32(10), dlmm.Bins[0].ID)
	// 10000 * 25 * 10
	assert.Equal(t, uint64(2_500_000), state.FeeNumerator)
	assert.Equal(t, uint64(domain.DLMMFeePrecision), state.FeeDenominator)

	buf[lbStatusOffset] = 1
	_, err = codec.Decode(address, buf, accounts)
	assert.ErrorIs(t, err, common.ErrDecode)
}

func TestSwapTickArrays(t *testing.T) {
	const span = 64 * TicksPerArray
	refs := make([]domain.TickArrayRef, 7)
	for i := range refs {
		refs[i] = domain.TickArrayRef{Address: solana.NewWallet().PublicKey(), StartIndex: int32(i-3) * span}
	}
	data := &domain.WhirlpoolData{TickSpacing: 64, TickCurrent: 100, TickArrays: refs}

	down, bound, err := SwapTickArrays(data, true)
	require.NoError(t, err)
	assert.Equal(t, [TickArraysPerSwap]domain.TickArrayRef{refs[3], refs[2], refs[1]}, down)
	// refs[0] is loaded but not passed
	assert.Equal(t, int32(-2*span), bound)

	up, bound, err := SwapTickArrays(data, false)
	require.NoError(t, err)
	assert.Equal(t, [TickArraysPerSwap]domain.TickArrayRef{refs[3], refs[4], refs[5]}, up)
	assert.Equal(t, int32(3*span), bound)

	// at the loaded edge the last array repeats
	data.TickCurrent = 3*span + 10
	up, bound, err = SwapTickArrays(data, false)
	require.NoError(t, err)
	assert.Equal(t, refs[6], up[2])
	assert.Equal(t, int32(4*span), bound)

	data.TickCurrent = 5 * span
	_, _, err = SwapTickArrays(data, true)
	assert.Error(t, err)
}

type pumpFixture struct {
	address, baseMint, baseVault, quoteVault, creator, recipient solana.PublicKey
}

func newPumpFixture() pumpFixture {
	return pumpFixture{
		address:    solana.NewWallet().PublicKey(),
		baseMint:   solana.NewWallet().PublicKey(),
		baseVault:  solana.NewWallet().PublicKey(),
		quoteVault: solana.NewWallet().PublicKey(),
		creator:    solana.NewWallet().PublicKey(),
		recipient:  solana.NewWallet().PublicKey(),
	}
}

func (f pumpFixture) pool(mayhem bool) []byte {
	buf := make([]byte, 301)
	copy(buf, pumpPoolDiscriminator[:])
	putKey(buf, pumpBaseMintOffset, f.baseMint)
	putKey(buf, pumpQuoteMintOffset, common.SOLMint)
	putKey(buf, pumpBaseVaultOffset, f.baseVault)
	putKey(buf, pumpQuoteVaultOffset, f.quoteVault)
	putKey(buf, pumpCoinCreatorOffset, f.creator)
	if mayhem {
		buf[pumpMayhemModeOffset] = 1
	}
	return buf
}

func (f pumpFixture) accounts(disableFlags uint8) domain.AccountSet {
	cfg := make([]byte, 643)
	copy(cfg, pumpConfigDiscriminator[:])
	putU64(cfg, pumpConfigLPFeeOffset, 20)
	putU64(cfg, pumpConfigProtocolFeeOffset, 5)
	cfg[pumpConfigDisableFlagsOffset] = disableFlags
	// the first recipient slot is empty
	putKey(cfg, pumpConfigFeeRecipientsOffset+32, f.recipient)
	putU64(cfg, pumpConfigCreatorFeeOffset, 5)
	return domain.AccountSet{
		common.PumpGlobalConfig: cfg,
		f.baseVault:             tokenAccountData(f.baseMint, 900_000_000),
		f.quoteVault:            tokenAccountData(common.SOLMint, 30_000_000),
	}
}

func TestPumpAMMDecode(t *testing.T) {
	f := newPumpFixture()
	codec := NewPumpAMMCodec()
	data := f.pool(false)

	mintA, mintB, err := codec.Mints(data)
	require.NoError(t, err)
	assert.Equal(t, f.baseMint, mintA)
	assert.Equal(t, common.SOLMint, mintB)

	deps, err := codec.Dependencies(f.address, data)
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{common.PumpGlobalConfig, f.baseVault, f.quoteVault}, deps)

	state, err := codec.Decode(f.address, data, f.accounts(0))
	require.NoError(t, err)
	assert.Equal(t, domain.PoolKindPumpAMM, state.Kind)
	assert.Equal(t, domain.CurveConstantProduct, state.Kind.Curve())
	assert.Equal(t, uint64(900_000_000), state.ReserveA)
	assert.Equal(t, uint64(30_000_000), state.ReserveB)
	assert.Equal(t, uint64(30), state.FeeNumerator)
	assert.Equal(t, uint64(10_000), state.FeeDenominator)

	pump, ok := state.Data.(*domain.PumpAMMData)
	require.True(t, ok)
	assert.Equal(t, f.recipient, pump.ProtocolFeeRecipient)
	assert.Equal(t, f.creator, pump.CoinCreator)
	assert.Equal(t, uint64(5), pump.CreatorFeeBps)
}

func TestPumpAMMDecodeWithoutCreator(t *testing.T) {
	f := newPumpFixture()
	f.creator = solana.PublicKey{}

	state, err := NewPumpAMMCodec().Decode(f.address, f.pool(false), f.accounts(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(25), state.FeeNumerator)
	assert.Zero(t, state.Data.(*domain.PumpAMMData).CreatorFeeBps)
}

func TestPumpAMMRejectsBadAccounts(t *testing.T) {
	f := newPumpFixture()
	noConfig := f.accounts(0)
	delete(noConfig, common.PumpGlobalConfig)

	tests := []struct {
		name     string
		data     []byte
		accounts domain.AccountSet
	}{
		{"truncated", f.pool(false)[:200], f.accounts(0)},
		{"mayhem mode", f.pool(true), f.accounts(0)},
		{"sells disabled", f.pool(false), f.accounts(pumpSellDisabled)},
		{"missing global config", f.pool(false), noConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPumpAMMCodec().Decode(f.address, tt.data, tt.accounts)
			assert.ErrorIs(t, err, common.ErrDecode)
		})
	}
}
