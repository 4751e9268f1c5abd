package config

import (
	"errors"
	"os"

	"github.com/andrew-solarstorm/go-packages/common"
)

type RPCConfig struct {
	// RPCUrl serves every read: pools, lookup tables, blockhashes, simulation.
	RPCUrl string

	// SpamEnabled broadcasts each transaction to every SpamRPCUrls entry.
	// When disabled the read endpoint is the only send target.
	SpamEnabled bool
	SpamRPCUrls []string
}

func (r *RPCConfig) Key() string {
	return RPC_CONFIG_KEY
}

func (r *RPCConfig) Load() error {
	r.RPCUrl = os.Getenv("RPC_URL")
	r.SpamEnabled = common.GetEnvOrDefault("SPAM_ENABLED", "false") == "true"
	r.SpamRPCUrls = splitList(os.Getenv("SPAM_RPC_URLS"))
	return nil
}

func (r *RPCConfig) Validate() error {
	if r.RPCUrl == "" {
		return errors.New("invalid rpc config: RPC_URL is required")
	}
	if r.SpamEnabled && len(r.SpamRPCUrls) == 0 {
		return errors.New("invalid rpc config: SPAM_ENABLED requires SPAM_RPC_URLS")
	}
	return nil
}

// SendURLs lists the endpoints a signed transaction is broadcast to.
func (r *RPCConfig) SendURLs() []string {
	if r.SpamEnabled {
		return r.SpamRPCUrls
	}
	return []string{r.RPCUrl}
}
