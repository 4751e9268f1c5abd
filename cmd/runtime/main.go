package main

import (
	"github.com/hxuan190/arb-engine/internal/aggregator"
	"github.com/hxuan190/arb-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/arb-engine/internal/common"
	"github.com/hxuan190/arb-engine/internal/config"
	"github.com/hxuan190/arb-engine/internal/http"
	"github.com/hxuan190/arb-engine/internal/services"
	"github.com/hxuan190/arb-engine/internal/services/builder"
	"github.com/hxuan190/arb-engine/internal/services/market"
	"github.com/hxuan190/arb-engine/internal/services/priority"
	"github.com/hxuan190/arb-engine/internal/services/router"
	"github.com/hxuan190/arb-engine/internal/services/sender"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"
)

func main() {
	common.InitRuntime()

	// load env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file, using process environment")
	}

	generalConfig := &config.GeneralConfig{}
	if err := generalConfig.Load(); err != nil {
		log.Error().Err(err).Msg("invalid general config")
		return
	}
	services.ConfigureLogging(generalConfig.ZerologLevel(), generalConfig.DebugServices)

	walletConfig := &config.WalletConfig{}
	if err := walletConfig.Load(); err != nil {
		log.Error().Err(err).Msg("failed to load wallet config")
		return
	}
	if err := walletConfig.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid wallet config")
		return
	}
	wallet, err := walletConfig.Keypair()
	if err != nil {
		log.Error().Err(err).Msg("failed to load wallet")
		return
	}

	// di container config
	conf := container.NewConf(
		generalConfig,
		&config.RPCConfig{},
		&config.ArbConfig{},
		&config.FlashloanConfig{},
		&config.LUTConfig{},
	)

	// services are configured and started in this order
	dic, err := container.New(
		conf,

		&market.Service{},
		&router.Service{},
		&builder.Service{},
		&priority.Service{},
		&sender.Service{},
		&blockchain.BlockhashCacheService{},
		aggregator.NewEngine(wallet),

		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return
	}

	// Run blocks until SIGINT/SIGTERM
	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return
	}

	// Run doesn't call Stop(), we must do it manually
	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("Shutdown complete")
}
