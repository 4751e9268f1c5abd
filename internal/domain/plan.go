package domain

import (
	"github.com/gagliardetto/solana-go"
)

// TransactionPlan is a signed, serialized route transaction. It is built once
// per opportunity and dropped after submission.
type TransactionPlan struct {
	Instructions     []solana.Instruction
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
	Signer           solana.PublicKey
	LookupTables     []solana.PublicKey
	Blockhash        solana.Hash

	Tx        *solana.Transaction
	Raw       []byte
	Signature solana.Signature
	Route     *RoutePlan
}

type SubmissionStatus uint8

const (
	SubmissionAccepted SubmissionStatus = iota
	SubmissionRejected
	// SubmissionTimedOut covers every transport failure that outlived its
	// retry budget: timeouts, refused connections, HTTP errors.
	SubmissionTimedOut
)

func (s SubmissionStatus) String() string {
	switch s {
	case SubmissionAccepted:
		return "accepted"
	case SubmissionRejected:
		return "rejected"
	default:
		return "timed_out"
	}
}

// SubmissionResult is the outcome of one endpoint's send attempts.
type SubmissionResult struct {
	Endpoint  string
	Status    SubmissionStatus
	Signature solana.Signature
	Attempts  int
	Err       error
}
