// Package common contains common constants and variables used across services
package common

import "github.com/gagliardetto/solana-go"

var (
	TokenProgramID  = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ID     = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	MemoProgramID   = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	ATAProgramID    = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	SystemProgramID = solana.SystemProgramID
	SysvarClockID   = solana.SysVarClockPubkey
	SysvarIxID      = solana.SysVarInstructionsPubkey
)

// DEX programs. Pool kind is inferred from the account owner.
var (
	RaydiumAMMProgramID  = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	RaydiumCPMMProgramID = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1R")
	WhirlpoolProgramID   = solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	MeteoraDLMMProgramID = solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9t2uVm")
	SaberProgramID       = solana.MustPublicKeyFromBase58("SSwpkEEcbUqx4vtoEByFjSkhKdCT862DNVb52nZg1UZ")
	KaminoLendProgramID  = solana.MustPublicKeyFromBase58("KLend2g3cP87fffoy8q1mQqGKjrxjC8boSyAYavgmjD")
	PumpAMMProgramID     = solana.MustPublicKeyFromBase58("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")
	PumpFeeProgramID     = solana.MustPublicKeyFromBase58("pfeeUxB6jkeY1Hxd7CsFCAjcbHA9rWtchMGdZ6VojVZ")
)

var (
	// PumpGlobalConfig is the ["global_config"] PDA of the Pump AMM program.
	PumpGlobalConfig = solana.MustPublicKeyFromBase58("ADyA8hdefvWN2dbGGWFotbzWxrAvLW83WG6QCVXvJKqw")

	RaydiumAMMAuthority  = solana.MustPublicKeyFromBase58("5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1")
	RaydiumCPMMAuthority = solana.MustPublicKeyFromBase58("GpMZbSM2GgvTKHJirzeGfMFoaZ8UR2X7F4v8vHTvxFbL")
)

var (
	SOLMint  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	USDCMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

const (
	OracleSeed         = "oracle"
	TickArraySeed      = "tick_array"
	BinArraySeed       = "bin_array"
	EventAuthoritySeed = "__event_authority"
	LendingMarketSeed  = "lma"

	PumpCreatorVaultSeed = "creator_vault"
	PumpGlobalVolumeSeed = "global_volume_accumulator"
	PumpUserVolumeSeed   = "user_volume_accumulator"
	PumpFeeConfigSeed    = "fee_config"

	// MaxTransactionSize is the packet limit for a serialized transaction.
	MaxTransactionSize = 1232
	// MaxTransactionAccounts bounds the account locks a transaction may take.
	MaxTransactionAccounts = 64
	// MaxAccountsPerRequest is the getMultipleAccounts batch ceiling.
	MaxAccountsPerRequest = 100

	BpsDenominator = 10_000
)
