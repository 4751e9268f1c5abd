package sender

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Simulator is the slice of *rpc.Client a dry run needs.
type Simulator interface {
	SimulateRawTransactionWithOpts(ctx context.Context, txData []byte, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error)
}

type SimulationResult struct {
	Success              bool
	Error                string
	Reason               string
	Logs                 []string
	ComputeUnitsConsumed uint64
}

// simulationEndpoint stands in for the send endpoints when DRY_RUN is set:
// the transaction is simulated against the read node and never broadcast.
type simulationEndpoint struct {
	url       string
	simulator Simulator
}

func NewSimulationEndpoint(url string, simulator Simulator) Endpoint {
	return &simulationEndpoint{url: url, simulator: simulator}
}

func (e *simulationEndpoint) Name() string {
	return "simulate:" + e.url
}

func (e *simulationEndpoint) Send(ctx context.Context, raw []byte) (solana.Signature, error) {
	res, err := SimulateTransaction(ctx, e.simulator, raw)
	if err != nil {
		return solana.Signature{}, err
	}
	if !res.Success {
		log.Debug().Strs("logs", res.Logs).Str("reason", res.Reason).Msg("[Sender] simulation logs")
		return solana.Signature{}, fmt.Errorf("%w: simulation failed (%s): %s", common.ErrRejectedByNode, res.Reason, res.Error)
	}
	log.Info().Uint64("compute_units", res.ComputeUnitsConsumed).Msg("[Sender] simulation succeeded")
	// the plan already carries its signature
	return solana.Signature{}, nil
}

// SimulateTransaction runs raw through simulateTransaction with signature
// verification on. A failed call is a transport error; a failed execution is
// reported in the result.
func SimulateTransaction(ctx context.Context, simulator Simulator, raw []byte) (*SimulationResult, error) {
	metrics.SimulationRequests.Inc()
	out, err := simulator.SimulateRawTransactionWithOpts(ctx, raw, &rpc.SimulateTransactionOpts{
		SigVerify:  true,
		Commitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		metrics.SimulationFailures.WithLabelValues("transport").Inc()
		return nil, classify(err)
	}
	if out == nil || out.Value == nil {
		metrics.SimulationFailures.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("%w: empty simulation response", common.ErrTransport)
	}

	res := &SimulationResult{
		Success: out.Value.Err == nil,
		Logs:    out.Value.Logs,
	}
	if out.Value.UnitsConsumed != nil {
		res.ComputeUnitsConsumed = *out.Value.UnitsConsumed
		metrics.ComputeUnits.Observe(float64(res.ComputeUnitsConsumed))
	}
	if out.Value.Err != nil {
		res.Error = fmt.Sprintf("%v", out.Value.Err)
		res.Reason = failureReason(res.Error, res.Logs)
		metrics.SimulationFailures.WithLabelValues(res.Reason).Inc()
	}
	return res, nil
}

// failureReason buckets a simulation error by the usual suspects.
func failureReason(errStr string, logs []string) string {
	text := strings.ToLower(errStr + "\n" + strings.Join(logs, "\n"))
	switch {
	case strings.Contains(text, "insufficient") || strings.Contains(text, "not enough"):
		return "insufficient_funds"
	case strings.Contains(text, "slippage") || strings.Contains(text, "exceeded") || strings.Contains(text, "minimum"):
		return "slippage"
	case strings.Contains(text, "accountnotfound") || strings.Contains(text, "invalidaccountdata"):
		return "missing_account"
	case strings.Contains(text, "blockhash"):
		return "blockhash"
	default:
		return "other"
	}
}
