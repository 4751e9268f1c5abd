package builder

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetATAAddressForMint(t *testing.T) {
	wallet, mint := newKey(), newKey()

	want, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)

	got, err := GetATAAddressForMint(wallet, mint, solana.PublicKey{})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	cached, err := GetATAAddressForMint(wallet, mint, common.TokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, cached)

	extended, err := GetATAAddressForMint(wallet, mint, common.Token2022ID)
	require.NoError(t, err)
	assert.NotEqual(t, want, extended)
}

func TestSeedPDAs(t *testing.T) {
	eventAuthority, err := GetEventAuthorityPDA(common.MeteoraDLMMProgramID)
	require.NoError(t, err)
	want, _, err := solana.FindProgramAddress([][]byte{[]byte("__event_authority")}, common.MeteoraDLMMProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, eventAuthority)

	market := newKey()
	authority, err := GetLendingMarketAuthorityPDA(common.KaminoLendProgramID, market)
	require.NoError(t, err)
	want, _, err = solana.FindProgramAddress([][]byte{[]byte("lma"), market[:]}, common.KaminoLendProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, authority)

	again, err := GetLendingMarketAuthorityPDA(common.KaminoLendProgramID, market)
	require.NoError(t, err)
	assert.Equal(t, authority, again)
}

func TestPumpPDAs(t *testing.T) {
	// addresses the Pump AMM program uses on mainnet
	eventAuthority, err := GetEventAuthorityPDA(common.PumpAMMProgramID)
	require.NoError(t, err)
	assert.Equal(t, solana.MustPublicKeyFromBase58("GS4CU59F31iL7aR2Q8zVS8DRrcRnXX1yjQ66TqNVQnaR"), eventAuthority)

	globalVolume, err := GetPumpGlobalVolumeAccumulator()
	require.NoError(t, err)
	assert.Equal(t, solana.MustPublicKeyFromBase58("C2aFPdENg4A2HQsmrd5rTw5TaYBX5Ku887cWjbFKtZpw"), globalVolume)

	feeConfig, err := GetPumpFeeConfig()
	require.NoError(t, err)
	assert.Equal(t, solana.MustPublicKeyFromBase58("5PHirr8joyTMp9JMm6nW7hNDVyEYdkzDqazxPD7RaTjx"), feeConfig)

	globalConfig, _, err := solana.FindProgramAddress([][]byte{[]byte("global_config")}, common.PumpAMMProgramID)
	require.NoError(t, err)
	assert.Equal(t, common.PumpGlobalConfig, globalConfig)

	creator := newKey()
	vault, err := GetPumpCreatorVaultAuthority(creator)
	require.NoError(t, err)
	want, _, err := solana.FindProgramAddress([][]byte{[]byte("creator_vault"), creator[:]}, common.PumpAMMProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, vault)
}

func TestCreateATAInstructionForMint(t *testing.T) {
	payer, mint := newKey(), newKey()
	ix, err := CreateATAInstructionForMint(payer, payer, mint, common.Token2022ID)
	require.NoError(t, err)

	ata, err := GetATAAddressForMint(payer, mint, common.Token2022ID)
	require.NoError(t, err)

	accounts := ix.Accounts()
	require.Len(t, accounts, 6)
	assert.True(t, accounts[0].IsSigner)
	assert.Equal(t, ata, accounts[1].PublicKey)
	assert.Equal(t, common.Token2022ID, accounts[5].PublicKey)
	assert.Equal(t, []byte{1}, instructionData(t, ix))
}

func BenchmarkGetATAAddressForMint(b *testing.B) {
	wallet, mint := newKey(), newKey()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = GetATAAddressForMint(wallet, mint, common.TokenProgramID)
	}
}
