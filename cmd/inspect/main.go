package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hxuan190/arb-engine/internal/config"
	"github.com/hxuan190/arb-engine/internal/services/market"
)

var (
	envFile string
	timeout time.Duration
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "inspect",
		Short:         "Decode and quote the configured markets without sending anything",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env") {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "env file to load")
	root.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "overall RPC timeout")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pool decode details")

	root.AddCommand(newGroupsCmd(), newRouteCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// session is the configuration and discovered markets shared by commands.
type session struct {
	arb       *config.ArbConfig
	flashloan *config.FlashloanConfig
	markets   *market.Service
}

func loadSession(ctx context.Context) (*session, error) {
	rpcConfig := &config.RPCConfig{}
	if err := rpcConfig.Load(); err != nil {
		return nil, err
	}
	if err := rpcConfig.Validate(); err != nil {
		return nil, err
	}
	arbConfig := &config.ArbConfig{}
	if err := arbConfig.Load(); err != nil {
		return nil, err
	}
	flashloanConfig := &config.FlashloanConfig{}
	if err := flashloanConfig.Load(); err != nil {
		return nil, err
	}

	mf, err := config.LoadMarketsFile(arbConfig.MarketsFile)
	if err != nil {
		return nil, err
	}
	spec, err := mf.Parse(arbConfig.ProcessDelay)
	if err != nil {
		return nil, err
	}

	markets := market.NewService(rpc.New(rpcConfig.RPCUrl), market.NewDefaultMarketRegistry(), arbConfig.BaseMint)
	if err := markets.Discover(ctx, spec); err != nil {
		return nil, err
	}
	return &session{arb: arbConfig, flashloan: flashloanConfig, markets: markets}, nil
}
