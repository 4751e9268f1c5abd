package sender

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hxuan190/arb-engine/internal/config"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/services"
	container "github.com/thehyperflames/dicontainer-go"
)

const SENDER_SERVICE_NAME = "SenderService"

// retryBackoff spaces two attempts on the same endpoint.
const retryBackoff = 50 * time.Millisecond

type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	submitter  *Submitter
	endpoints  []Endpoint
	maxRetries int
	dryRun     bool
}

func NewService(submitter *Submitter, endpoints []Endpoint, maxRetries int) *Service {
	svc := &Service{submitter: submitter, endpoints: endpoints, maxRetries: maxRetries}
	svc.logger = services.NewServiceLogger(svc)
	return svc
}

func (svc *Service) ID() string {
	return SENDER_SERVICE_NAME
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	rpcConfig := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	arbConfig := c.GetConfig(config.ARB_CONFIG_KEY).(*config.ArbConfig)

	svc.submitter = NewSubmitter(arbConfig.SubmitTimeout, retryBackoff)
	svc.maxRetries = arbConfig.MaxRetries
	svc.dryRun = arbConfig.DryRun
	if svc.dryRun {
		svc.endpoints = []Endpoint{NewSimulationEndpoint(rpcConfig.RPCUrl, rpc.New(rpcConfig.RPCUrl))}
		return nil
	}
	for _, url := range rpcConfig.SendURLs() {
		svc.endpoints = append(svc.endpoints, NewRPCEndpoint(url))
	}
	return nil
}

func (svc *Service) Start() error {
	names := make([]string, len(svc.endpoints))
	for i, ep := range svc.endpoints {
		names[i] = ep.Name()
	}
	svc.logger.Info().
		Strs("endpoints", names).
		Int("max_retries", svc.maxRetries).
		Bool("dry_run", svc.dryRun).
		Msg("[Sender] submitter ready")
	return nil
}

func (svc *Service) Stop() error {
	return nil
}

// Submit broadcasts the plan to the configured endpoints.
func (svc *Service) Submit(ctx context.Context, plan *domain.TransactionPlan) []domain.SubmissionResult {
	return svc.submitter.Submit(ctx, plan, svc.endpoints, svc.maxRetries)
}
