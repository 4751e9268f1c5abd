package router

import (
	"context"
	"time"

	"github.com/hxuan190/arb-engine/internal/config"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/metrics"
	"github.com/hxuan190/arb-engine/internal/services"
	"github.com/hxuan190/arb-engine/internal/services/market"
	container "github.com/thehyperflames/dicontainer-go"
)

const ROUTER_SERVICE = "router-service"

// RegisterQuoters installs the quoter of every curve family.
func RegisterQuoters(registry *market.MarketRegistry) {
	registry.RegisterQuoter(NewConstantProductQuoter())
	registry.RegisterQuoter(NewStableQuoter())
	registry.RegisterQuoter(NewConcentratedQuoter())
	registry.RegisterQuoter(NewBinQuoter())
}

// Service owns the optimizer. It must be configured after the market
// service, whose registry it extends with the quoters.
type Service struct {
	container.BaseDIInstance
	logger    *services.ServiceLogger
	registry  *market.MarketRegistry
	optimizer *Optimizer
}

func NewService(registry *market.MarketRegistry, params SearchParams) *Service {
	svc := &Service{}
	svc.init(registry, params)
	return svc
}

// init is the only place quoters are registered, once per registry.
func (svc *Service) init(registry *market.MarketRegistry, params SearchParams) {
	svc.logger = services.NewServiceLogger(svc)
	if svc.registry != registry {
		RegisterQuoters(registry)
		svc.registry = registry
	}
	svc.optimizer = NewOptimizer(registry.Quote, params)
}

func (svc *Service) ID() string {
	return ROUTER_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	arbConfig := c.GetConfig(config.ARB_CONFIG_KEY).(*config.ArbConfig)
	flashloanConfig := c.GetConfig(config.FLASHLOAN_CONFIG_KEY).(*config.FlashloanConfig)
	registry := c.Instance(market.ServiceName).(*market.Service).Registry()

	svc.init(registry, SearchParamsFromConfig(arbConfig, flashloanConfig))
	return nil
}

func (svc *Service) Start() error {
	p := svc.optimizer.Params()
	svc.logger.Info().
		Uint64("min_input", p.MinInput).
		Uint64("max_input", p.MaxInput).
		Uint64("min_profit", p.MinProfit).
		Int("samples", p.Samples).
		Int("max_iter", p.MaxIter).
		Msg("[Router] optimizer ready")
	return nil
}

func (svc *Service) Stop() error {
	return nil
}

// FindRoute searches the group's snapshots for the best cycle. A nil plan
// with a nil error is the common "nothing to do" outcome.
func (svc *Service) FindRoute(ctx context.Context, group *domain.MintGroup, states []*domain.PoolState) (*domain.RoutePlan, error) {
	started := time.Now()
	plan, err := svc.optimizer.FindBestRoute(ctx, group, states)
	metrics.SearchDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}
	mint := group.TargetMint.String()
	if plan == nil {
		svc.logger.Debug().Str("mint", mint).Int("pools", len(states)).Msg("[Router] no profitable route")
		return nil, nil
	}

	metrics.RoutesFound.WithLabelValues(mint).Inc()
	metrics.LastRouteProfit.WithLabelValues(mint).Set(float64(plan.Profit))
	svc.logger.Info().
		Str("mint", mint).
		Interface("pools", routeKey(plan)).
		Uint64("amount_in", plan.AmountIn).
		Uint64("final_out", plan.FinalOut).
		Uint64("profit", plan.Profit).
		Msg("[Router] route found")
	return plan, nil
}
