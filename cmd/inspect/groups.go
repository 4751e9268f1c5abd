package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the mint groups found in the markets file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			s, err := loadSession(ctx)
			if err != nil {
				return err
			}
			groups := s.markets.Groups()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "base mint %s, %d groups\n", s.markets.BaseMint(), len(groups))

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, g := range groups {
				fmt.Fprintf(w, "\n%s\tdelay %s\t%d pools\n", g.TargetMint, g.ProcessDelay, len(g.Pools))
				for _, p := range g.Pools {
					fmt.Fprintf(w, "  %s\t%s\n", p.Address, p.Kind)
				}
			}
			return w.Flush()
		},
	}
}
