package config

import (
	"os"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

const LUT_CONFIG_KEY = "lut-config"

type LUTConfig struct {
	// Addresses is a list of on-chain Address Lookup Table public keys (base58).
	// Tables listed in the markets file are appended at startup.
	Addresses []string

	// RefreshInterval controls how often LUT states are re-fetched from RPC.
	RefreshInterval time.Duration
}

func (c *LUTConfig) Key() string {
	return LUT_CONFIG_KEY
}

func (c *LUTConfig) Load() error {
	c.Addresses = splitList(os.Getenv("LUT_ADDRESSES"))
	c.RefreshInterval = time.Duration(common.GetEnvOrDefaultInt("LUT_REFRESH_SECONDS", 60)) * time.Second
	return nil
}

func (c *LUTConfig) Validate() error {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 60 * time.Second
	}
	return nil
}
