package builder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLUTManagerRefresh(t *testing.T) {
	active, stale, missing, garbage := newKey(), newKey(), newKey(), newKey()
	entries := solana.PublicKeySlice{newKey(), newKey(), newKey()}
	fetcher := &fakeFetcher{accounts: map[solana.PublicKey][]byte{
		active:  lookupTableBytes(t, true, entries...),
		stale:   lookupTableBytes(t, false, newKey()),
		garbage: {1, 2, 3},
	}}

	m := NewLUTManager(fetcher, []solana.PublicKey{active, stale, missing, garbage, active}, time.Minute)
	assert.Empty(t, m.GetAddressTables())

	m.refresh(context.Background())
	tables := m.GetAddressTables()
	require.Len(t, tables, 1)
	assert.Equal(t, entries, tables[active])
}

func TestLUTManagerKeepsCacheOnFetchError(t *testing.T) {
	table := newKey()
	fetcher := &fakeFetcher{accounts: map[solana.PublicKey][]byte{table: lookupTableBytes(t, true, newKey())}}
	m := NewLUTManager(fetcher, []solana.PublicKey{table}, time.Minute)

	m.refresh(context.Background())
	require.Len(t, m.GetAddressTables(), 1)

	fetcher.err = errors.New("connection refused")
	m.refresh(context.Background())
	assert.Len(t, m.GetAddressTables(), 1)
	assert.Equal(t, 2, fetcher.calls)
}

func TestLUTManagerStartWithoutTables(t *testing.T) {
	fetcher := &fakeFetcher{}
	m := NewLUTManager(fetcher, nil, time.Minute)
	m.Start(context.Background())
	assert.Zero(t, fetcher.calls)
	assert.Empty(t, m.GetAddressTables())
}
