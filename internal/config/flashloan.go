package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/andrew-solarstorm/go-packages/common"
	"github.com/gagliardetto/solana-go"
)

// FlashloanConfig describes the lending reserve that funds the first leg.
// The reserve's liquidity mint must be the base mint.
type FlashloanConfig struct {
	Enabled bool
	FeeBps  uint16

	Program                 solana.PublicKey
	LendingMarket           solana.PublicKey
	Reserve                 solana.PublicKey
	ReserveLiquiditySupply  solana.PublicKey
	ReserveLiquidityFeeRecv solana.PublicKey
}

func (c *FlashloanConfig) Key() string {
	return FLASHLOAN_CONFIG_KEY
}

func (c *FlashloanConfig) Load() error {
	c.Enabled = common.GetEnvOrDefault("FLASHLOAN_ENABLED", "false") == "true"
	c.FeeBps = uint16(common.GetEnvOrDefaultInt("FLASHLOAN_FEE_BPS", 9))
	if !c.Enabled {
		return nil
	}

	fields := []struct {
		env string
		dst *solana.PublicKey
		def string
	}{
		{"FLASHLOAN_PROGRAM", &c.Program, "KLend2g3cP87fffoy8q1mQqGKjrxjC8boSyAYavgmjD"},
		{"FLASHLOAN_LENDING_MARKET", &c.LendingMarket, ""},
		{"FLASHLOAN_RESERVE", &c.Reserve, ""},
		{"FLASHLOAN_RESERVE_LIQUIDITY_SUPPLY", &c.ReserveLiquiditySupply, ""},
		{"FLASHLOAN_RESERVE_FEE_RECEIVER", &c.ReserveLiquidityFeeRecv, ""},
	}
	for _, f := range fields {
		raw := os.Getenv(f.env)
		if raw == "" {
			raw = f.def
		}
		if raw == "" {
			return fmt.Errorf("invalid flashloan config: %s is required", f.env)
		}
		pk, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return fmt.Errorf("invalid flashloan config %s: %w", f.env, err)
		}
		*f.dst = pk
	}
	return c.Validate()
}

func (c *FlashloanConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.FeeBps >= 10_000 {
		return errors.New("invalid flashloan config: FLASHLOAN_FEE_BPS must be below 10000")
	}
	return nil
}

// FeeBpsIfEnabled is the borrow fee the optimizer subtracts from profit.
func (c *FlashloanConfig) FeeBpsIfEnabled() uint16 {
	if c == nil || !c.Enabled {
		return 0
	}
	return c.FeeBps
}
