package market

import (
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/hxuan190/arb-engine/internal/domain"
)

const numShards = 16

// ShardedStateMap keeps the latest published snapshot per pool address.
// Mint groups refresh concurrently, so writes are spread over shards.
type ShardedStateMap struct {
	shards [numShards]stateShard
}

type stateShard struct {
	mu     sync.RWMutex
	states map[solana.PublicKey]*domain.PoolState
}

func NewShardedStateMap() *ShardedStateMap {
	m := &ShardedStateMap{}
	for i := 0; i < numShards; i++ {
		m.shards[i].states = make(map[solana.PublicKey]*domain.PoolState)
	}
	return m
}

func (m *ShardedStateMap) shard(key solana.PublicKey) *stateShard {
	return &m.shards[key[0]%numShards]
}

func (m *ShardedStateMap) Get(key solana.PublicKey) (*domain.PoolState, bool) {
	s := m.shard(key)
	s.mu.RLock()
	st, ok := s.states[key]
	s.mu.RUnlock()
	return st, ok
}

// Publish swaps in a new snapshot; the previous one stays valid for readers
// still holding it.
func (m *ShardedStateMap) Publish(state *domain.PoolState) {
	s := m.shard(state.Address)
	s.mu.Lock()
	s.states[state.Address] = state
	s.mu.Unlock()
}

func (m *ShardedStateMap) Delete(key solana.PublicKey) {
	s := m.shard(key)
	s.mu.Lock()
	delete(s.states, key)
	s.mu.Unlock()
}

func (m *ShardedStateMap) Len() int {
	n := 0
	for i := range m.shards {
		m.shards[i].mu.RLock()
		n += len(m.shards[i].states)
		m.shards[i].mu.RUnlock()
	}
	return n
}
