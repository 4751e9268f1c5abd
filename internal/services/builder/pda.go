package builder

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
)

type ataKey struct {
	Wallet       solana.PublicKey
	Mint         solana.PublicKey
	TokenProgram solana.PublicKey
}

var (
	ataCache   = make(map[ataKey]solana.PublicKey)
	ataCacheMu sync.RWMutex
)

// GetATAAddressForMint derives the associated token account of wallet for a
// mint owned by tokenProgram.
func GetATAAddressForMint(wallet, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	if tokenProgram.IsZero() {
		tokenProgram = common.TokenProgramID
	}
	key := ataKey{Wallet: wallet, Mint: mint, TokenProgram: tokenProgram}

	ataCacheMu.RLock()
	if cached, ok := ataCache[key]; ok {
		ataCacheMu.RUnlock()
		return cached, nil
	}
	ataCacheMu.RUnlock()

	ata, _, err := solana.FindProgramAddress(
		[][]byte{
			wallet[:],
			tokenProgram[:],
			mint[:],
		},
		common.ATAProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, err
	}

	ataCacheMu.Lock()
	ataCache[key] = ata
	ataCacheMu.Unlock()

	return ata, nil
}

// seedKey caches single-seed PDAs of the form [seed, address] per program.
type seedKey struct {
	program solana.PublicKey
	seed    string
	address solana.PublicKey
}

var (
	seedPDACache   = make(map[seedKey]solana.PublicKey)
	seedPDACacheMu sync.RWMutex
)

func cachedPDA(program solana.PublicKey, seed string, address solana.PublicKey) (solana.PublicKey, error) {
	key := seedKey{program: program, seed: seed, address: address}

	seedPDACacheMu.RLock()
	if cached, ok := seedPDACache[key]; ok {
		seedPDACacheMu.RUnlock()
		return cached, nil
	}
	seedPDACacheMu.RUnlock()

	seeds := [][]byte{[]byte(seed)}
	if !address.IsZero() {
		seeds = append(seeds, address[:])
	}
	pda, _, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive %s pda: %w", seed, err)
	}

	seedPDACacheMu.Lock()
	seedPDACache[key] = pda
	seedPDACacheMu.Unlock()

	return pda, nil
}

// GetEventAuthorityPDA is the Anchor event CPI authority of a program.
func GetEventAuthorityPDA(program solana.PublicKey) (solana.PublicKey, error) {
	return cachedPDA(program, common.EventAuthoritySeed, solana.PublicKey{})
}

// GetLendingMarketAuthorityPDA signs reserve transfers for a Kamino market.
func GetLendingMarketAuthorityPDA(program, lendingMarket solana.PublicKey) (solana.PublicKey, error) {
	return cachedPDA(program, common.LendingMarketSeed, lendingMarket)
}

// GetPumpCreatorVaultAuthority owns the quote-mint vault that collects a coin
// creator's fees.
func GetPumpCreatorVaultAuthority(creator solana.PublicKey) (solana.PublicKey, error) {
	return cachedPDA(common.PumpAMMProgramID, common.PumpCreatorVaultSeed, creator)
}

func GetPumpGlobalVolumeAccumulator() (solana.PublicKey, error) {
	return cachedPDA(common.PumpAMMProgramID, common.PumpGlobalVolumeSeed, solana.PublicKey{})
}

func GetPumpUserVolumeAccumulator(user solana.PublicKey) (solana.PublicKey, error) {
	return cachedPDA(common.PumpAMMProgramID, common.PumpUserVolumeSeed, user)
}

// GetPumpFeeConfig is the fee program's config for the Pump AMM, seeded with
// the AMM program id.
func GetPumpFeeConfig() (solana.PublicKey, error) {
	return cachedPDA(common.PumpFeeProgramID, common.PumpFeeConfigSeed, common.PumpAMMProgramID)
}

// GetSaberSwapAuthority is the program address derived from the swap account
// and its stored nonce. Saber uses create_program_address, not a bump search.
func GetSaberSwapAuthority(swap solana.PublicKey, nonce uint8) (solana.PublicKey, error) {
	return solana.CreateProgramAddress([][]byte{swap[:], {nonce}}, common.SaberProgramID)
}

// CreateATAInstructionForMint creates an idempotent ATA creation instruction.
func CreateATAInstructionForMint(payer, owner, mint, tokenProgram solana.PublicKey) (solana.Instruction, error) {
	ata, err := GetATAAddressForMint(owner, mint, tokenProgram)
	if err != nil {
		return nil, err
	}
	if tokenProgram.IsZero() {
		tokenProgram = common.TokenProgramID
	}
	return solana.NewInstruction(
		common.ATAProgramID,
		solana.AccountMetaSlice{
			{PublicKey: payer, IsSigner: true, IsWritable: true},
			{PublicKey: ata, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: false, IsWritable: false},
			{PublicKey: mint, IsSigner: false, IsWritable: false},
			{PublicKey: common.SystemProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: tokenProgram, IsSigner: false, IsWritable: false},
		},
		// 1 = CreateIdempotent
		[]byte{1},
	), nil
}
