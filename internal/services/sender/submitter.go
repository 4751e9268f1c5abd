package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Submitter broadcasts one signed transaction to every endpoint at once.
// Each endpoint retries transport failures on its own; a node rejection ends
// that endpoint's attempts.
type Submitter struct {
	timeout time.Duration
	backoff time.Duration
}

// NewSubmitter bounds a whole broadcast by timeout and waits backoff between
// two attempts on the same endpoint.
func NewSubmitter(timeout, backoff time.Duration) *Submitter {
	return &Submitter{timeout: timeout, backoff: backoff}
}

type indexedResult struct {
	idx    int
	result domain.SubmissionResult
}

// Submit sends plan.Raw to every endpoint, at most maxRetries attempts each
// (the first try included). It returns one result per endpoint, in endpoint
// order, once all are done or the timeout expires; endpoints still in flight
// at that point are reported timed out.
func (s *Submitter) Submit(ctx context.Context, plan *domain.TransactionPlan, endpoints []Endpoint, maxRetries int) []domain.SubmissionResult {
	maxRetries = max(maxRetries, 1)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	done := make(chan indexedResult, len(endpoints))
	for i, ep := range endpoints {
		go func(i int, ep Endpoint) {
			done <- indexedResult{idx: i, result: s.sendWithRetry(ctx, plan, ep, maxRetries)}
		}(i, ep)
	}

	results := make([]domain.SubmissionResult, len(endpoints))
	reported := make([]bool, len(endpoints))
collect:
	for pending := len(endpoints); pending > 0; pending-- {
		select {
		case r := <-done:
			results[r.idx] = r.result
			reported[r.idx] = true
		case <-ctx.Done():
			break collect
		}
	}
	// the buffered channel lets late goroutines finish without a reader
	for i, ep := range endpoints {
		if !reported[i] {
			results[i] = domain.SubmissionResult{
				Endpoint: ep.Name(),
				Status:   domain.SubmissionTimedOut,
				Err:      fmt.Errorf("%w: %v", common.ErrTransport, ctx.Err()),
			}
		}
	}

	metrics.SubmitDuration.Observe(time.Since(started).Seconds())
	for _, r := range results {
		metrics.Submissions.WithLabelValues(r.Endpoint, r.Status.String()).Inc()
		if r.Attempts > 0 {
			metrics.SubmitAttempts.Observe(float64(r.Attempts))
		}
	}
	return results
}

func (s *Submitter) sendWithRetry(ctx context.Context, plan *domain.TransactionPlan, ep Endpoint, maxRetries int) domain.SubmissionResult {
	res := domain.SubmissionResult{Endpoint: ep.Name(), Signature: plan.Signature}
	for attempt := 1; attempt <= maxRetries; attempt++ {
		res.Attempts = attempt
		sig, err := ep.Send(ctx, plan.Raw)
		if err == nil {
			res.Status = domain.SubmissionAccepted
			if !sig.IsZero() {
				res.Signature = sig
			}
			res.Err = nil
			log.Info().
				Str("endpoint", ep.Name()).
				Str("signature", res.Signature.String()).
				Int("attempt", attempt).
				Msg("[Sender] transaction accepted")
			return res
		}

		res.Err = classify(err)
		if errors.Is(res.Err, common.ErrRejectedByNode) {
			res.Status = domain.SubmissionRejected
			log.Warn().Err(res.Err).Str("endpoint", ep.Name()).Int("attempt", attempt).Msg("[Sender] transaction rejected")
			return res
		}
		log.Debug().Err(res.Err).Str("endpoint", ep.Name()).Int("attempt", attempt).Msg("[Sender] send failed")

		if attempt == maxRetries || !s.wait(ctx) {
			break
		}
	}
	res.Status = domain.SubmissionTimedOut
	return res
}

// wait sleeps the backoff, false when the context ends first.
func (s *Submitter) wait(ctx context.Context) bool {
	if s.backoff <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
