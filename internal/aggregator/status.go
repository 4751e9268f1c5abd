package aggregator

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/domain"
)

type Outcome uint8

const (
	OutcomeSkipped Outcome = iota
	OutcomeNoRoute
	OutcomeStale
	OutcomeSubmitted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoRoute:
		return "no_route"
	case OutcomeStale:
		return "stale"
	case OutcomeSubmitted:
		return "submitted"
	default:
		return "skipped"
	}
}

// CycleResult is what a group loop reports to the collector after each
// cycle.
type CycleResult struct {
	Mint     solana.PublicKey
	Pools    int
	Outcome  Outcome
	Reason   string
	Profit   uint64
	Started  time.Time
	Duration time.Duration

	Signature   solana.Signature
	Submissions []domain.SubmissionResult
	Err         error
}

// allFailed reports whether a submitted cycle reached no endpoint.
func (r *CycleResult) allFailed() bool {
	if r.Outcome != OutcomeSubmitted {
		return false
	}
	for _, s := range r.Submissions {
		if s.Status == domain.SubmissionAccepted {
			return false
		}
	}
	return true
}

// GroupStatus is the collector's view of one mint group.
type GroupStatus struct {
	Mint      solana.PublicKey
	BaseMint  solana.PublicKey
	PoolCount int

	Cycles     uint64
	Submitted  uint64
	LastCycle  time.Time
	LastResult string
	LastError  string

	LastProfit    uint64
	LastSignature string

	// ConsecutiveFailures counts submitted cycles in a row where every
	// endpoint failed.
	ConsecutiveFailures int
	Escalated           bool
}
