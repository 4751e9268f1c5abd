package builder

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/config"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/services"
	"github.com/hxuan190/arb-engine/internal/services/market"
	container "github.com/thehyperflames/dicontainer-go"
)

const BUILDER_SERVICE_NAME = "BuilderService"

// ataInstructionsPerTx keeps account creation transactions well under the
// size limit.
const ataInstructionsPerTx = 8

// Service owns the assembler and the lookup table cache. It must be
// configured after the market service.
type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	marketSvc  *market.Service
	lutConfig  *config.LUTConfig
	lutManager *LUTManager
	assembler  *Assembler

	ctx    context.Context
	cancel context.CancelFunc
}

func (svc *Service) ID() string {
	return BUILDER_SERVICE_NAME
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	arbConfig := c.GetConfig(config.ARB_CONFIG_KEY).(*config.ArbConfig)
	flashloanConfig := c.GetConfig(config.FLASHLOAN_CONFIG_KEY).(*config.FlashloanConfig)
	svc.lutConfig = c.GetConfig(config.LUT_CONFIG_KEY).(*config.LUTConfig)
	svc.marketSvc = c.Instance(market.ServiceName).(*market.Service)

	registry := svc.marketSvc.Registry()
	RegisterBuilders(registry)

	var flashloan *Flashloan
	if flashloanConfig.Enabled {
		var err error
		if flashloan, err = NewFlashloan(flashloanConfig); err != nil {
			return err
		}
	}

	svc.lutManager = NewLUTManager(svc.marketSvc, nil, svc.lutConfig.RefreshInterval)
	svc.assembler = NewAssembler(registry, svc.lutManager, flashloan, arbConfig.ComputeUnitLimit)
	svc.ctx, svc.cancel = context.WithCancel(context.Background())
	return nil
}

// Start loads the lookup tables from the config and the markets file. The
// markets file is only known once the market service has started.
func (svc *Service) Start() error {
	addresses := make([]solana.PublicKey, 0, len(svc.lutConfig.Addresses))
	for _, addr := range svc.lutConfig.Addresses {
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return fmt.Errorf("invalid LUT address %q: %w", addr, err)
		}
		addresses = append(addresses, pk)
	}
	addresses = append(addresses, svc.marketSvc.LookupTables()...)

	svc.lutManager.addresses = dedupeKeys(addresses)
	svc.lutManager.Start(svc.ctx)

	svc.logger.Info().
		Int("lookup_tables", len(svc.lutManager.addresses)).
		Bool("flashloan", svc.assembler.flashloan != nil).
		Msg("[Builder] assembler ready")
	return nil
}

func (svc *Service) Stop() error {
	if svc.cancel != nil {
		svc.cancel()
	}
	return nil
}

// Build assembles and signs the route's transaction.
func (svc *Service) Build(route *domain.RoutePlan, wallet WalletContext) (*domain.TransactionPlan, error) {
	return svc.assembler.Build(route, wallet)
}

// GetAddressTables returns the cached Address Lookup Tables.
func (svc *Service) GetAddressTables() map[solana.PublicKey]solana.PublicKeySlice {
	return svc.lutManager.GetAddressTables()
}

// TokenAccountPlans returns the transactions creating the wallet's missing
// token accounts for the base mint and every group's target mint. It
// returns nothing when all accounts exist.
func (svc *Service) TokenAccountPlans(ctx context.Context, wallet WalletContext) ([]*domain.TransactionPlan, error) {
	owner := wallet.Signer.PublicKey()
	mints := make(map[solana.PublicKey]solana.PublicKey)
	mints[svc.marketSvc.BaseMint()] = svc.tokenProgram(svc.marketSvc.BaseMint())
	for _, g := range svc.marketSvc.Groups() {
		mints[g.TargetMint] = svc.tokenProgram(g.TargetMint)
	}

	atas := make([]solana.PublicKey, 0, len(mints))
	for mint, program := range mints {
		ata, err := GetATAAddressForMint(owner, mint, program)
		if err != nil {
			return nil, err
		}
		atas = append(atas, ata)
	}
	accounts, err := svc.marketSvc.FetchAccounts(ctx, atas)
	if err != nil {
		return nil, fmt.Errorf("fetch token accounts: %w", err)
	}
	existing := make(map[solana.PublicKey]bool, len(accounts))
	for addr := range accounts {
		existing[addr] = true
	}

	plans, err := svc.assembler.TokenAccountPlans(mints, existing, wallet, ataInstructionsPerTx)
	if err != nil {
		return nil, err
	}
	svc.logger.Info().
		Int("mints", len(mints)).
		Int("missing", len(mints)-len(existing)).
		Msg("[Builder] token accounts checked")
	return plans, nil
}

func (svc *Service) tokenProgram(mint solana.PublicKey) solana.PublicKey {
	if info, ok := svc.marketSvc.MintInfo(mint); ok {
		return info.TokenProgram
	}
	return solana.PublicKey{}
}
