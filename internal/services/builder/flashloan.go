package builder

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/config"
)

var (
	flashBorrowDiscriminator = common.InstructionDiscriminator("flash_borrow_reserve_liquidity")
	flashRepayDiscriminator  = common.InstructionDiscriminator("flash_repay_reserve_liquidity")
)

type flashBorrowArgs struct {
	Discriminator   [8]byte
	LiquidityAmount uint64
}

type flashRepayArgs struct {
	Discriminator          [8]byte
	LiquidityAmount        uint64
	BorrowInstructionIndex uint8
}

// Flashloan emits the Kamino borrow/repay pair around the swaps. The repay
// names the borrow by its index in the transaction; the program charges the
// fee on top of the repaid amount.
type Flashloan struct {
	cfg       *config.FlashloanConfig
	authority solana.PublicKey
}

func NewFlashloan(cfg *config.FlashloanConfig) (*Flashloan, error) {
	authority, err := GetLendingMarketAuthorityPDA(cfg.Program, cfg.LendingMarket)
	if err != nil {
		return nil, fmt.Errorf("lending market authority: %w", err)
	}
	return &Flashloan{cfg: cfg, authority: authority}, nil
}

func (f *Flashloan) accounts(owner, mint, userLiquidity solana.PublicKey, tokenProgram solana.PublicKey) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		{PublicKey: owner, IsSigner: true},
		readonly(f.authority),
		readonly(f.cfg.LendingMarket),
		writable(f.cfg.Reserve),
		readonly(mint),
		writable(f.cfg.ReserveLiquiditySupply),
		writable(userLiquidity),
		writable(f.cfg.ReserveLiquidityFeeRecv),
		readonly(f.cfg.Program), // referrer token state
		readonly(f.cfg.Program), // referrer account
		readonly(common.SysvarIxID),
		readonly(tokenProgramOr(tokenProgram)),
	}
}

func (f *Flashloan) Borrow(owner, mint, userLiquidity, tokenProgram solana.PublicKey, amount uint64) (solana.Instruction, error) {
	raw, err := bin.MarshalBorsh(&flashBorrowArgs{Discriminator: flashBorrowDiscriminator, LiquidityAmount: amount})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(f.cfg.Program, f.accounts(owner, mint, userLiquidity, tokenProgram), raw), nil
}

func (f *Flashloan) Repay(owner, mint, userLiquidity, tokenProgram solana.PublicKey, amount uint64, borrowIndex uint8) (solana.Instruction, error) {
	raw, err := bin.MarshalBorsh(&flashRepayArgs{
		Discriminator:          flashRepayDiscriminator,
		LiquidityAmount:        amount,
		BorrowInstructionIndex: borrowIndex,
	})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(f.cfg.Program, f.accounts(owner, mint, userLiquidity, tokenProgram), raw), nil
}
