package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
)

type WalletConfig struct {
	// PrivateKey is either a base58 secret key or a path to a keypair file.
	PrivateKey string
}

func (c *WalletConfig) Key() string {
	return WALLET_CONFIG_KEY
}

func (c *WalletConfig) Load() error {
	c.PrivateKey = os.Getenv("WALLET_PRIVATE_KEY")
	return nil
}

func (c *WalletConfig) Validate() error {
	if c.PrivateKey == "" {
		return errors.New("invalid wallet config: WALLET_PRIVATE_KEY is required")
	}
	return nil
}

// Keypair resolves the configured key. Only cmd/ calls this; the engine
// receives the resulting key as a signer.
func (c *WalletConfig) Keypair() (solana.PrivateKey, error) {
	if key, err := solana.PrivateKeyFromBase58(c.PrivateKey); err == nil {
		return key, nil
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(c.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("load wallet key: %w", err)
	}
	return key, nil
}
