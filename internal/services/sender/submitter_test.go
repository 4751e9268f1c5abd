package sender

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedEndpoint fails with errs in order, then succeeds.
type scriptedEndpoint struct {
	name  string
	errs  []error
	sig   solana.Signature
	calls atomic.Int32
	block chan struct{}
}

func (e *scriptedEndpoint) Name() string {
	return e.name
}

func (e *scriptedEndpoint) Send(_ context.Context, _ []byte) (solana.Signature, error) {
	n := int(e.calls.Add(1))
	if e.block != nil {
		<-e.block
	}
	if n <= len(e.errs) {
		return solana.Signature{}, e.errs[n-1]
	}
	return e.sig, nil
}

func failing(name string, err error, n int) *scriptedEndpoint {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = err
	}
	return &scriptedEndpoint{name: name, errs: errs}
}

func testPlan() *domain.TransactionPlan {
	var sig solana.Signature
	sig[0] = 7
	return &domain.TransactionPlan{Raw: []byte{1, 2, 3}, Signature: sig}
}

func TestSubmitBoundsAttemptsOnTransportFailure(t *testing.T) {
	refused := errors.New("dial tcp: connection refused")
	eps := []*scriptedEndpoint{failing("a", refused, 10), failing("b", refused, 10), failing("c", refused, 10)}
	endpoints := []Endpoint{eps[0], eps[1], eps[2]}

	results := NewSubmitter(time.Second, 0).Submit(context.Background(), testPlan(), endpoints, 3)

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, eps[i].name, r.Endpoint)
		assert.Equal(t, domain.SubmissionTimedOut, r.Status)
		assert.Equal(t, 3, r.Attempts)
		assert.ErrorIs(t, r.Err, common.ErrTransport)
		assert.Equal(t, int32(3), eps[i].calls.Load())
	}
}

func TestSubmitDoesNotRetryRejection(t *testing.T) {
	rejected := &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed"}
	ep := failing("node", rejected, 10)

	results := NewSubmitter(time.Second, 0).Submit(context.Background(), testPlan(), []Endpoint{ep}, 5)

	require.Len(t, results, 1)
	assert.Equal(t, domain.SubmissionRejected, results[0].Status)
	assert.Equal(t, 1, results[0].Attempts)
	assert.ErrorIs(t, results[0].Err, common.ErrRejectedByNode)
	assert.Equal(t, int32(1), ep.calls.Load())
}

func TestSubmitRetriesUntilAccepted(t *testing.T) {
	ep := failing("flaky", errors.New("i/o timeout"), 2)
	ep.sig[0] = 9

	results := NewSubmitter(time.Second, time.Millisecond).Submit(context.Background(), testPlan(), []Endpoint{ep}, 3)

	require.Len(t, results, 1)
	assert.Equal(t, domain.SubmissionAccepted, results[0].Status)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, ep.sig, results[0].Signature)
	assert.NoError(t, results[0].Err)
}

func TestSubmitKeepsPlanSignatureWhenEndpointReturnsNone(t *testing.T) {
	plan := testPlan()
	results := NewSubmitter(time.Second, 0).Submit(context.Background(), plan, []Endpoint{&scriptedEndpoint{name: "quiet"}}, 1)
	require.Len(t, results, 1)
	assert.Equal(t, plan.Signature, results[0].Signature)
}

func TestSubmitMixedOutcomes(t *testing.T) {
	ok := &scriptedEndpoint{name: "ok"}
	ok.sig[0] = 1
	rejected := failing("rejected", &jsonrpc.RPCError{Code: -32003, Message: "blockhash not found"}, 1)
	down := failing("down", errors.New("EOF"), 5)

	results := NewSubmitter(time.Second, 0).Submit(context.Background(), testPlan(), []Endpoint{ok, rejected, down}, 2)

	require.Len(t, results, 3)
	assert.Equal(t, domain.SubmissionAccepted, results[0].Status)
	assert.Equal(t, domain.SubmissionRejected, results[1].Status)
	assert.Equal(t, domain.SubmissionTimedOut, results[2].Status)
	assert.Equal(t, 2, results[2].Attempts)
}

func TestSubmitTimeoutBoundsBroadcast(t *testing.T) {
	hung := &scriptedEndpoint{name: "hung", block: make(chan struct{})}
	defer close(hung.block)
	fast := &scriptedEndpoint{name: "fast"}

	started := time.Now()
	results := NewSubmitter(50*time.Millisecond, 0).Submit(context.Background(), testPlan(), []Endpoint{hung, fast}, 3)

	assert.Less(t, time.Since(started), time.Second)
	require.Len(t, results, 2)
	assert.Equal(t, domain.SubmissionTimedOut, results[0].Status)
	assert.ErrorIs(t, results[0].Err, common.ErrTransport)
	assert.Equal(t, domain.SubmissionAccepted, results[1].Status)
}

func TestSubmitAtLeastOneAttempt(t *testing.T) {
	ep := failing("a", errors.New("reset by peer"), 5)
	results := NewSubmitter(time.Second, 0).Submit(context.Background(), testPlan(), []Endpoint{ep}, 0)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Attempts)
}

func TestClassify(t *testing.T) {
	err := classify(fmt.Errorf("send: %w", &jsonrpc.RPCError{Code: -32002, Message: "simulation failed"}))
	assert.ErrorIs(t, err, common.ErrRejectedByNode)

	err = classify(errors.New("context deadline exceeded"))
	assert.ErrorIs(t, err, common.ErrTransport)

	already := fmt.Errorf("%w: x", common.ErrRejectedByNode)
	assert.Same(t, already, classify(already))
}

type captureSender struct {
	opts rpc.TransactionOpts
	err  error
}

func (c *captureSender) SendRawTransactionWithOpts(_ context.Context, _ []byte, opts rpc.TransactionOpts) (solana.Signature, error) {
	c.opts = opts
	return solana.Signature{}, c.err
}

func TestRPCEndpointSkipsPreflight(t *testing.T) {
	capture := &captureSender{}
	ep := &rpcEndpoint{url: "http://node", client: capture}

	_, err := ep.Send(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.True(t, capture.opts.SkipPreflight)
	require.NotNil(t, capture.opts.MaxRetries)
	assert.Zero(t, *capture.opts.MaxRetries)

	capture.err = &jsonrpc.RPCError{Code: -32005, Message: "node is behind"}
	_, err = ep.Send(context.Background(), []byte{1})
	assert.ErrorIs(t, err, common.ErrRejectedByNode)
}
