package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
)

// MarketsFile is the pool list the engine trades.
//
//	{
//	  "process_delay_ms": 400,
//	  "lookup_table_accounts": ["..."],
//	  "markets": ["<pool>", "<pool>"],
//	  "groups": [
//	    {"mint": "<mint>", "process_delay_ms": 250,
//	     "pools": {"raydium_amm": ["<pool>"], "whirlpool": ["<pool>"]}}
//	  ]
//	}
//
// Pools under "markets" are grouped by their non-base mint after discovery.
// Labels under "pools" are informational; the kind always comes from the
// account owner.
type MarketsFile struct {
	ProcessDelayMs int           `json:"process_delay_ms"`
	LookupTables   []string      `json:"lookup_table_accounts"`
	Markets        []string      `json:"markets"`
	Groups         []MintMarkets `json:"groups"`
}

type MintMarkets struct {
	Mint           string              `json:"mint"`
	ProcessDelayMs int                 `json:"process_delay_ms"`
	LookupTables   []string            `json:"lookup_table_accounts"`
	Pools          map[string][]string `json:"pools"`
}

// MarketSpec is the parsed form handed to pool discovery.
type MarketSpec struct {
	ProcessDelay time.Duration
	LookupTables []solana.PublicKey
	Ungrouped    []solana.PublicKey
	Groups       []GroupSpec
}

type GroupSpec struct {
	Mint         solana.PublicKey
	ProcessDelay time.Duration
	LookupTables []solana.PublicKey
	Pools        []solana.PublicKey
	Labels       map[solana.PublicKey]string
}

func LoadMarketsFile(path string) (*MarketsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markets file: %w", err)
	}
	var mf MarketsFile
	if err := sonic.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("parse markets file %s: %w", path, err)
	}
	return &mf, nil
}

// Parse validates every address and applies the default delay where a group
// does not set its own.
func (m *MarketsFile) Parse(defaultDelay time.Duration) (*MarketSpec, error) {
	spec := &MarketSpec{ProcessDelay: defaultDelay}
	if m.ProcessDelayMs > 0 {
		spec.ProcessDelay = time.Duration(m.ProcessDelayMs) * time.Millisecond
	}

	var err error
	if spec.LookupTables, err = parseKeys("lookup_table_accounts", m.LookupTables); err != nil {
		return nil, err
	}
	if spec.Ungrouped, err = parseKeys("markets", m.Markets); err != nil {
		return nil, err
	}

	for i, g := range m.Groups {
		mint, err := solana.PublicKeyFromBase58(g.Mint)
		if err != nil {
			return nil, fmt.Errorf("groups[%d].mint %q: %w", i, g.Mint, err)
		}
		gs := GroupSpec{
			Mint:         mint,
			ProcessDelay: spec.ProcessDelay,
			Labels:       make(map[solana.PublicKey]string),
		}
		if g.ProcessDelayMs > 0 {
			gs.ProcessDelay = time.Duration(g.ProcessDelayMs) * time.Millisecond
		}
		if gs.LookupTables, err = parseKeys(fmt.Sprintf("groups[%d].lookup_table_accounts", i), g.LookupTables); err != nil {
			return nil, err
		}
		labels := make([]string, 0, len(g.Pools))
		for label := range g.Pools {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			keys, err := parseKeys(fmt.Sprintf("groups[%d].pools.%s", i, label), g.Pools[label])
			if err != nil {
				return nil, err
			}
			for _, k := range keys {
				if _, dup := gs.Labels[k]; dup {
					continue
				}
				gs.Labels[k] = label
				gs.Pools = append(gs.Pools, k)
			}
		}
		spec.Groups = append(spec.Groups, gs)
	}

	if len(spec.Ungrouped) == 0 && len(spec.Groups) == 0 {
		return nil, fmt.Errorf("markets file lists no pools")
	}
	return spec, nil
}

func parseKeys(field string, raw []string) ([]solana.PublicKey, error) {
	out := make([]solana.PublicKey, 0, len(raw))
	for _, s := range raw {
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid address %q: %w", field, s, err)
		}
		out = append(out, pk)
	}
	return out, nil
}
