package main

import (
	"context"
	"fmt"
	"io"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/services/router"
)

func newRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route <mint>",
		Short: "Refresh one group and print the best cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid mint %q: %w", args[0], err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			s, err := loadSession(ctx)
			if err != nil {
				return err
			}
			var group *domain.MintGroup
			for _, g := range s.markets.Groups() {
				if g.TargetMint.Equals(mint) {
					group = g
					break
				}
			}
			if group == nil {
				return fmt.Errorf("no group for mint %s", mint)
			}

			states, err := s.markets.Refresh(ctx, group)
			if err != nil {
				return err
			}
			routes := router.NewService(s.markets.Registry(), router.SearchParamsFromConfig(s.arb, s.flashloan))
			plan, err := routes.FindRoute(ctx, group, states)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d of %d pools decoded\n", mint, len(states), len(group.Pools))
			if plan == nil {
				fmt.Fprintln(out, "no route")
				return nil
			}
			decimals := int32(0)
			if info, ok := s.markets.MintInfo(plan.BaseMint); ok {
				decimals = int32(info.Decimals)
			}
			printPlan(out, plan, decimals)
			return nil
		},
	}
}

func printPlan(out io.Writer, plan *domain.RoutePlan, baseDecimals int32) {
	for i, leg := range plan.Legs {
		fmt.Fprintf(out, "leg %d  %s %s %s\n", i+1, leg.Pool.Kind, leg.Pool.Address, leg.Direction)
		fmt.Fprintf(out, "       in %d  expected %d  min %d  fee %d\n", leg.AmountIn, leg.ExpectedOut, leg.MinOut, leg.Fee)
	}
	fmt.Fprintf(out, "input   %s\n", uiAmount(plan.AmountIn, baseDecimals))
	fmt.Fprintf(out, "output  %s\n", uiAmount(plan.FinalOut, baseDecimals))
	if plan.FlashloanFee > 0 {
		fmt.Fprintf(out, "loan fee %s\n", uiAmount(plan.FlashloanFee, baseDecimals))
	}
	fmt.Fprintf(out, "profit  %s\n", uiAmount(plan.Profit, baseDecimals))
}

func uiAmount(amount uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals).String()
}
