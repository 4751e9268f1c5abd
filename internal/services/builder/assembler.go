package builder

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/services/market"
)

// borrowInstructionIndex is the position of the flash borrow, right after
// the two compute budget instructions. The repay names it.
const borrowInstructionIndex = 2

// Signer signs transaction messages. The engine only ever sees this
// capability, never the key material behind it. solana.PrivateKey satisfies it.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(message []byte) (solana.Signature, error)
}

// WalletContext is everything per-cycle the assembler needs besides the route.
type WalletContext struct {
	Signer           Signer
	Blockhash        solana.Hash
	ComputeUnitPrice uint64
}

// AddressTableProvider serves the lookup tables a message may compress
// against. LUTManager implements it.
type AddressTableProvider interface {
	GetAddressTables() map[solana.PublicKey]solana.PublicKeySlice
}

type SwapBuilder interface {
	BuildSwap(leg *domain.Leg, owner, userSource, userDest solana.PublicKey) (solana.Instruction, error)
}

// Assembler turns a route into a signed V0 transaction.
type Assembler struct {
	swaps            SwapBuilder
	tables           AddressTableProvider
	flashloan        *Flashloan
	computeUnitLimit uint32
}

// NewAssembler wires an assembler. flashloan may be nil, in which case the
// first leg spends the wallet's own balance.
func NewAssembler(swaps SwapBuilder, tables AddressTableProvider, flashloan *Flashloan, computeUnitLimit uint32) *Assembler {
	return &Assembler{
		swaps:            swaps,
		tables:           tables,
		flashloan:        flashloan,
		computeUnitLimit: computeUnitLimit,
	}
}

// Instructions lists the route's instructions in execution order:
// compute unit limit, compute unit price, [borrow], one swap per leg, [repay].
func (a *Assembler) Instructions(route *domain.RoutePlan, owner solana.PublicKey, computeUnitPrice uint64) ([]solana.Instruction, error) {
	if len(route.Legs) == 0 {
		return nil, fmt.Errorf("%w: route without legs", common.ErrNoRoute)
	}

	ixs := make([]solana.Instruction, 0, len(route.Legs)+4)
	ixs = append(ixs,
		computebudget.NewSetComputeUnitLimitInstruction(a.computeUnitLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(computeUnitPrice).Build(),
	)

	first := &route.Legs[0]
	baseProgram, _ := first.Pool.TokenPrograms(first.Direction)
	baseAccount, err := GetATAAddressForMint(owner, route.BaseMint, baseProgram)
	if err != nil {
		return nil, fmt.Errorf("base token account: %w", err)
	}

	if a.flashloan != nil {
		borrow, err := a.flashloan.Borrow(owner, route.BaseMint, baseAccount, baseProgram, route.AmountIn)
		if err != nil {
			return nil, fmt.Errorf("flash borrow: %w", err)
		}
		ixs = append(ixs, borrow)
	}

	for i := range route.Legs {
		leg := &route.Legs[i]
		programIn, programOut := leg.Pool.TokenPrograms(leg.Direction)
		source, err := GetATAAddressForMint(owner, leg.InputMint, programIn)
		if err != nil {
			return nil, fmt.Errorf("leg %d source account: %w", i, err)
		}
		dest, err := GetATAAddressForMint(owner, leg.OutputMint, programOut)
		if err != nil {
			return nil, fmt.Errorf("leg %d destination account: %w", i, err)
		}
		swap, err := a.swaps.BuildSwap(leg, owner, source, dest)
		if err != nil {
			return nil, fmt.Errorf("leg %d (%s %s): %w", i, leg.Pool.Kind, leg.Pool.Address, err)
		}
		ixs = append(ixs, swap)
	}

	if a.flashloan != nil {
		repay, err := a.flashloan.Repay(owner, route.BaseMint, baseAccount, baseProgram, route.AmountIn, borrowInstructionIndex)
		if err != nil {
			return nil, fmt.Errorf("flash repay: %w", err)
		}
		ixs = append(ixs, repay)
	}
	return ixs, nil
}

// Build assembles, signs and serializes the route. A plan that does not fit
// one transaction fails with ErrPlanTooLarge.
func (a *Assembler) Build(route *domain.RoutePlan, wallet WalletContext) (*domain.TransactionPlan, error) {
	owner := wallet.Signer.PublicKey()
	ixs, err := a.Instructions(route, owner, wallet.ComputeUnitPrice)
	if err != nil {
		return nil, err
	}

	plan, err := a.sign(ixs, wallet)
	if err != nil {
		return nil, err
	}
	plan.ComputeUnitLimit = a.computeUnitLimit
	plan.ComputeUnitPrice = wallet.ComputeUnitPrice
	plan.Route = route
	return plan, nil
}

// sign compiles the instructions against the cached lookup tables, checks
// the transaction limits and signs the message.
func (a *Assembler) sign(ixs []solana.Instruction, wallet WalletContext) (*domain.TransactionPlan, error) {
	owner := wallet.Signer.PublicKey()
	opts := []solana.TransactionOption{solana.TransactionPayer(owner)}
	if a.tables != nil {
		if tables := a.tables.GetAddressTables(); len(tables) > 0 {
			opts = append(opts, solana.TransactionAddressTables(tables))
		}
	}

	tx, err := solana.NewTransaction(ixs, wallet.Blockhash, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile transaction: %w", err)
	}

	accounts := len(tx.Message.AccountKeys)
	lookupTables := make([]solana.PublicKey, 0, len(tx.Message.AddressTableLookups))
	for _, lookup := range tx.Message.AddressTableLookups {
		accounts += len(lookup.WritableIndexes) + len(lookup.ReadonlyIndexes)
		lookupTables = append(lookupTables, lookup.AccountKey)
	}
	if accounts > common.MaxTransactionAccounts {
		return nil, fmt.Errorf("%w: %d accounts, limit %d", common.ErrPlanTooLarge, accounts, common.MaxTransactionAccounts)
	}
	if n := tx.Message.Header.NumRequiredSignatures; n != 1 {
		return nil, fmt.Errorf("transaction needs %d signatures, only the wallet signs", n)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	sig, err := wallet.Signer.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	tx.Signatures = []solana.Signature{sig}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	if len(raw) > common.MaxTransactionSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", common.ErrPlanTooLarge, len(raw), common.MaxTransactionSize)
	}

	return &domain.TransactionPlan{
		Instructions: ixs,
		Signer:       owner,
		LookupTables: lookupTables,
		Blockhash:    wallet.Blockhash,
		Tx:           tx,
		Raw:          raw,
		Signature:    sig,
	}, nil
}

// TokenAccountPlans creates the missing associated token accounts of the
// wallet, at most perTx instructions per transaction. mints maps each mint
// to its token program. Accounts in existing are skipped.
func (a *Assembler) TokenAccountPlans(mints map[solana.PublicKey]solana.PublicKey, existing map[solana.PublicKey]bool, wallet WalletContext, perTx int) ([]*domain.TransactionPlan, error) {
	owner := wallet.Signer.PublicKey()
	var pending []solana.Instruction
	var plans []*domain.TransactionPlan

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		plan, err := a.sign(pending, wallet)
		if err != nil {
			return err
		}
		plans = append(plans, plan)
		pending = nil
		return nil
	}

	for mint, program := range mints {
		ata, err := GetATAAddressForMint(owner, mint, program)
		if err != nil {
			return nil, err
		}
		if existing[ata] {
			continue
		}
		ix, err := CreateATAInstructionForMint(owner, owner, mint, program)
		if err != nil {
			return nil, err
		}
		pending = append(pending, ix)
		if len(pending) >= perTx {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return plans, nil
}

var _ SwapBuilder = (*market.MarketRegistry)(nil)
