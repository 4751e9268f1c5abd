package common

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Pipeline failures. Each one is scoped to a pool, a candidate, a route or a
// single send attempt; none of them stops the engine.
var (
	ErrDecode                = errors.New("account decode failed")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrMathOverflow          = errors.New("math overflow")
	ErrPlanTooLarge          = errors.New("transaction plan too large")
	ErrTransport             = errors.New("transport error")
	ErrRejectedByNode        = errors.New("rejected by node")

	ErrUnknownProgram      = errors.New("unknown pool program")
	ErrUnsupportedPoolKind = errors.New("unsupported pool kind")
	ErrNoRoute             = errors.New("no profitable route")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// DecodeError describes why an account could not be turned into a pool state.
type DecodeError struct {
	Kind    string
	Address solana.PublicKey
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %s: %s", e.Kind, e.Address, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return ErrDecode
}

func NewDecodeError(kind string, address solana.PublicKey, format string, args ...any) error {
	return &DecodeError{Kind: kind, Address: address, Reason: fmt.Sprintf(format, args...)}
}
