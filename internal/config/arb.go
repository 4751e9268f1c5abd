package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
	"github.com/gagliardetto/solana-go"
)

type ArbConfig struct {
	// MarketsFile is the JSON file listing pools per mint (see markets.go).
	MarketsFile string
	BaseMint    solana.PublicKey

	// ProcessDelay is the floor between two cycles of the same mint group.
	ProcessDelay time.Duration
	// CycleBudget bounds refresh plus search; a cycle past it is dropped.
	CycleBudget time.Duration
	// SubmitTimeout bounds one spam broadcast.
	SubmitTimeout time.Duration

	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
	// PriorityUrgency enables percentile based pricing when not "off".
	PriorityUrgency string

	MaxRetries  int
	SlippageBps uint16

	MinInput        uint64
	MaxInput        uint64
	MinProfit       uint64
	ProfitTolerance uint64
	SearchSamples   int
	SearchMaxIter   int

	// EscalateAfter is the number of consecutive cycles with every endpoint
	// failing before the group is reported at error level.
	EscalateAfter int

	// DryRun simulates against RPCUrl instead of sending.
	DryRun bool

	baseMintRaw string
}

func (c *ArbConfig) Key() string {
	return ARB_CONFIG_KEY
}

func (c *ArbConfig) Load() error {
	c.MarketsFile = common.GetEnvOrDefault("MARKETS_FILE", "./markets.json")
	c.baseMintRaw = common.GetEnvOrDefault("BASE_MINT", "So11111111111111111111111111111111111111112")

	c.ProcessDelay = time.Duration(common.GetEnvOrDefaultInt("PROCESS_DELAY_MS", 400)) * time.Millisecond
	c.CycleBudget = time.Duration(common.GetEnvOrDefaultInt("CYCLE_BUDGET_MS", 1500)) * time.Millisecond
	c.SubmitTimeout = time.Duration(common.GetEnvOrDefaultInt("SUBMIT_TIMEOUT_MS", 2000)) * time.Millisecond

	c.ComputeUnitLimit = uint32(common.GetEnvOrDefaultInt("COMPUTE_UNIT_LIMIT", 400_000))
	c.ComputeUnitPrice = uint64(common.GetEnvOrDefaultInt("COMPUTE_UNIT_PRICE", 1_000))
	c.PriorityUrgency = common.GetEnvOrDefault("PRIORITY_URGENCY", "off")

	c.MaxRetries = common.GetEnvOrDefaultInt("MAX_RETRIES", 3)
	c.SlippageBps = uint16(common.GetEnvOrDefaultInt("SLIPPAGE_BPS", 50))

	c.MinInput = uint64(common.GetEnvOrDefaultInt("MIN_INPUT", 10_000_000))
	c.MaxInput = uint64(common.GetEnvOrDefaultInt("MAX_INPUT", 100_000_000_000))
	c.MinProfit = uint64(common.GetEnvOrDefaultInt("MIN_PROFIT", 5_000))
	c.ProfitTolerance = uint64(common.GetEnvOrDefaultInt("PROFIT_TOLERANCE", 0))
	c.SearchSamples = common.GetEnvOrDefaultInt("SEARCH_SAMPLES", 16)
	c.SearchMaxIter = common.GetEnvOrDefaultInt("SEARCH_MAX_ITER", 24)

	c.EscalateAfter = common.GetEnvOrDefaultInt("ESCALATE_AFTER", 20)
	c.DryRun = common.GetEnvOrDefault("DRY_RUN", "false") == "true"
	return c.Validate()
}

func (c *ArbConfig) Validate() error {
	mint, err := solana.PublicKeyFromBase58(c.baseMintRaw)
	if err != nil {
		return fmt.Errorf("invalid BASE_MINT %q: %w", c.baseMintRaw, err)
	}
	c.BaseMint = mint

	if c.MarketsFile == "" {
		return errors.New("invalid arb config: MARKETS_FILE is required")
	}
	if c.MinInput == 0 || c.MaxInput < c.MinInput {
		return errors.New("invalid arb config: need 0 < MIN_INPUT <= MAX_INPUT")
	}
	if c.MinProfit == 0 {
		c.MinProfit = 1
	}
	if c.SlippageBps >= 10_000 {
		return errors.New("invalid arb config: SLIPPAGE_BPS must be below 10000")
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if c.SearchSamples < 2 {
		c.SearchSamples = 2
	}
	if c.SearchMaxIter < 0 {
		c.SearchMaxIter = 0
	}
	if c.EscalateAfter < 1 {
		c.EscalateAfter = 1
	}
	if c.ComputeUnitLimit == 0 {
		return errors.New("invalid arb config: COMPUTE_UNIT_LIMIT must be positive")
	}
	return nil
}
