package priority

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Urgency represents the priority level for a transaction
type Urgency uint8

const (
	// UrgencyLow uses p50 (median) priority fee
	UrgencyLow Urgency = iota
	// UrgencyMedium uses p75 priority fee
	UrgencyMedium
	// UrgencyHigh uses p90 priority fee
	UrgencyHigh
	// UrgencyExtreme uses p99 priority fee
	UrgencyExtreme
)

// minFeePerCU is the floor of a percentile based price, in microLamports.
const minFeePerCU = 100

// maxFeeAccounts is the most accounts getRecentPrioritizationFees accepts.
const maxFeeAccounts = 128

// DefaultFees are fallback fees when RPC fails (microLamports per CU)
var DefaultFees = map[Urgency]uint64{
	UrgencyLow:     1000,
	UrgencyMedium:  10000,
	UrgencyHigh:    100000,
	UrgencyExtreme: 1000000,
}

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyMedium:
		return "medium"
	case UrgencyHigh:
		return "high"
	default:
		return "extreme"
	}
}

// ParseUrgency reads PRIORITY_URGENCY. "off" (or empty) disables percentile
// pricing and reports false.
func ParseUrgency(s string) (Urgency, bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return UrgencyLow, false, nil
	case "low":
		return UrgencyLow, true, nil
	case "medium":
		return UrgencyMedium, true, nil
	case "high":
		return UrgencyHigh, true, nil
	case "extreme":
		return UrgencyExtreme, true, nil
	}
	return UrgencyLow, false, fmt.Errorf("unknown priority urgency %q", s)
}

// FeeReader is the RPC call the calculator samples. *rpc.Client implements it.
type FeeReader interface {
	GetRecentPrioritizationFees(ctx context.Context, accounts solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error)
}

// FeeCalculator calculates priority fees based on network conditions
type FeeCalculator struct {
	reader FeeReader
}

func NewFeeCalculator(reader FeeReader) *FeeCalculator {
	return &FeeCalculator{reader: reader}
}

// PriorityFeeResult holds the calculated fee information
type PriorityFeeResult struct {
	FeePerCU    uint64 // microLamports per compute unit
	Urgency     Urgency
	Percentile  int
	SampleCount int
	Fallback    bool
}

// GetOptimalFee samples recent fees paid around the given accounts and takes
// the urgency's percentile. RPC failures and empty samples fall back to
// DefaultFees.
func (f *FeeCalculator) GetOptimalFee(ctx context.Context, urgency Urgency, accounts []solana.PublicKey) *PriorityFeeResult {
	if len(accounts) > maxFeeAccounts {
		accounts = accounts[:maxFeeAccounts]
	}
	percentile := getPercentileForUrgency(urgency)
	fallback := &PriorityFeeResult{
		FeePerCU:   DefaultFees[urgency],
		Urgency:    urgency,
		Percentile: percentile,
		Fallback:   true,
	}

	recentFees, err := f.reader.GetRecentPrioritizationFees(ctx, accounts)
	if err != nil {
		return fallback
	}

	fees := make([]uint64, 0, len(recentFees))
	for _, fee := range recentFees {
		if fee.PrioritizationFee > 0 {
			fees = append(fees, fee.PrioritizationFee)
		}
	}
	if len(fees) == 0 {
		return fallback
	}

	sort.Slice(fees, func(i, j int) bool { return fees[i] < fees[j] })
	feePerCU := max(calculatePercentile(fees, percentile), minFeePerCU)

	return &PriorityFeeResult{
		FeePerCU:    feePerCU,
		Urgency:     urgency,
		Percentile:  percentile,
		SampleCount: len(fees),
	}
}

// getPercentileForUrgency returns the percentile to use for each urgency level
func getPercentileForUrgency(urgency Urgency) int {
	switch urgency {
	case UrgencyLow:
		return 50
	case UrgencyMedium:
		return 75
	case UrgencyHigh:
		return 90
	case UrgencyExtreme:
		return 99
	default:
		return 75
	}
}

// calculatePercentile returns the value at the given percentile of sorted,
// interpolating linearly between neighbours.
func calculatePercentile(sorted []uint64, percentile int) uint64 {
	if len(sorted) == 0 {
		return 0
	}
	if percentile <= 0 {
		return sorted[0]
	}
	if percentile >= 100 {
		return sorted[len(sorted)-1]
	}

	k := float64(percentile) / 100.0 * float64(len(sorted)-1)
	f := int(k)
	c := min(f+1, len(sorted)-1)

	d := k - float64(f)
	return uint64(float64(sorted[f])*(1-d) + float64(sorted[c])*d)
}

// GetFeeForAmount is the total priority fee in microLamports for a limit.
func (r *PriorityFeeResult) GetFeeForAmount(computeUnits uint32) uint64 {
	return r.FeePerCU * uint64(computeUnits)
}
