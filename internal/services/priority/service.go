package priority

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hxuan190/arb-engine/internal/config"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/metrics"
	"github.com/hxuan190/arb-engine/internal/services"
	container "github.com/thehyperflames/dicontainer-go"
)

const PRIORITY_SERVICE_NAME = "PriorityService"

// Service prices compute units for a route: the fixed COMPUTE_UNIT_PRICE, or
// when an urgency is configured the larger of that and the urgency's
// percentile of recent fees on the route's writable pool accounts.
type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	calculator       *FeeCalculator
	fixed            uint64
	urgency          Urgency
	dynamic          bool
	computeUnitLimit uint32
}

func NewService(reader FeeReader, fixed uint64, urgency Urgency, dynamic bool, computeUnitLimit uint32) *Service {
	svc := &Service{
		calculator:       NewFeeCalculator(reader),
		fixed:            fixed,
		urgency:          urgency,
		dynamic:          dynamic,
		computeUnitLimit: computeUnitLimit,
	}
	svc.logger = services.NewServiceLogger(svc)
	return svc
}

func (svc *Service) ID() string {
	return PRIORITY_SERVICE_NAME
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	rpcConfig := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	arbConfig := c.GetConfig(config.ARB_CONFIG_KEY).(*config.ArbConfig)

	urgency, dynamic, err := ParseUrgency(arbConfig.PriorityUrgency)
	if err != nil {
		return err
	}
	svc.calculator = NewFeeCalculator(rpc.New(rpcConfig.RPCUrl))
	svc.fixed = arbConfig.ComputeUnitPrice
	svc.urgency = urgency
	svc.dynamic = dynamic
	svc.computeUnitLimit = arbConfig.ComputeUnitLimit
	return nil
}

func (svc *Service) Start() error {
	ev := svc.logger.Info().Uint64("fixed_price", svc.fixed)
	if svc.dynamic {
		ev = ev.Str("urgency", svc.urgency.String())
	}
	ev.Msg("[Priority] compute unit pricing ready")
	return nil
}

func (svc *Service) Stop() error {
	return nil
}

// Price returns the compute unit price in microLamports for the route.
func (svc *Service) Price(ctx context.Context, route *domain.RoutePlan) uint64 {
	price := svc.fixed
	if svc.dynamic {
		result := svc.calculator.GetOptimalFee(ctx, svc.urgency, writablePoolAccounts(route))
		price = max(price, result.FeePerCU)
		svc.logger.Debug().
			Uint64("fee_per_cu", result.FeePerCU).
			Int("samples", result.SampleCount).
			Bool("fallback", result.Fallback).
			Uint64("total_micro_lamports", result.GetFeeForAmount(svc.computeUnitLimit)).
			Msg("[Priority] sampled recent fees")
	}
	metrics.PriorityFee.Set(float64(price))
	return price
}

// writablePoolAccounts lists each leg's pool and vaults, the accounts the
// route write-locks and competes for.
func writablePoolAccounts(route *domain.RoutePlan) []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{}, len(route.Legs)*3)
	out := make([]solana.PublicKey, 0, len(route.Legs)*3)
	for _, leg := range route.Legs {
		for _, k := range []solana.PublicKey{leg.Pool.Address, leg.Pool.VaultA, leg.Pool.VaultB} {
			if k.IsZero() {
				continue
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
