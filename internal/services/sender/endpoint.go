package sender

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/hxuan190/arb-engine/internal/common"
)

// Endpoint is one node a signed transaction is broadcast to.
type Endpoint interface {
	Name() string
	Send(ctx context.Context, raw []byte) (solana.Signature, error)
}

// rawSender is the slice of *rpc.Client an RPC endpoint needs.
type rawSender interface {
	SendRawTransactionWithOpts(ctx context.Context, rawTx []byte, opts rpc.TransactionOpts) (solana.Signature, error)
}

type rpcEndpoint struct {
	url    string
	client rawSender
}

// NewRPCEndpoint sends through a JSON-RPC node with preflight disabled, so
// the node forwards instead of simulating, and node side rebroadcast off.
func NewRPCEndpoint(url string) Endpoint {
	return &rpcEndpoint{url: url, client: rpc.New(url)}
}

func (e *rpcEndpoint) Name() string {
	return e.url
}

func (e *rpcEndpoint) Send(ctx context.Context, raw []byte) (solana.Signature, error) {
	noRetries := uint(0)
	sig, err := e.client.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight: true,
		MaxRetries:    &noRetries,
	})
	if err != nil {
		return solana.Signature{}, classify(err)
	}
	return sig, nil
}

// classify maps a send error onto the taxonomy: a JSON-RPC error object is
// the node refusing the transaction, anything else never reached a verdict.
func classify(err error) error {
	if errors.Is(err, common.ErrRejectedByNode) || errors.Is(err, common.ErrTransport) {
		return err
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: code %d: %s", common.ErrRejectedByNode, rpcErr.Code, rpcErr.Message)
	}
	return fmt.Errorf("%w: %v", common.ErrTransport, err)
}
