package ledger

import (
	"context"
	"sync"
)

// MemoryLedger is an in-process Reader backed by a map. It counts account
// queries per key and can be told to fail specific lookups, which makes it
// the reader of choice for tests and offline fixtures.
type MemoryLedger struct {
	mu       sync.RWMutex
	slot     uint64
	times    map[uint64]int64
	accounts map[Pubkey]*Account
	failures map[Pubkey]error
	queries  map[Pubkey]int
}

// NewMemoryLedger creates an empty ledger positioned at slot with the given
// block time.
func NewMemoryLedger(slot uint64, blockTime int64) *MemoryLedger {
	return &MemoryLedger{
		slot:     slot,
		times:    map[uint64]int64{slot: blockTime},
		accounts: make(map[Pubkey]*Account),
		failures: make(map[Pubkey]error),
		queries:  make(map[Pubkey]int),
	}
}

// SetAccount stores a copy of acc under key.
func (m *MemoryLedger) SetAccount(key Pubkey, acc *Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[key] = acc.Copy()
}

// Fail makes every lookup of key return err until cleared with a nil err.
func (m *MemoryLedger) Fail(key Pubkey, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, key)
		return
	}
	m.failures[key] = err
}

// Advance moves the ledger to a new slot with the given block time.
func (m *MemoryLedger) Advance(slot uint64, blockTime int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slot = slot
	m.times[slot] = blockTime
}

// Queries returns how many times key has been looked up.
func (m *MemoryLedger) Queries(key Pubkey) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queries[key]
}

// TotalQueries returns the number of account lookups across all keys.
func (m *MemoryLedger) TotalQueries() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int
	for _, c := range m.queries {
		n += c
	}
	return n
}

func (m *MemoryLedger) CurrentSlot(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slot, nil
}

func (m *MemoryLedger) BlockTime(ctx context.Context, slot uint64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ts, ok := m.times[slot]
	if !ok {
		return 0, ErrBlockTimeUnavailable
	}
	return ts, nil
}

func (m *MemoryLedger) GetAccount(ctx context.Context, key Pubkey) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[key]++
	if err, ok := m.failures[key]; ok {
		return nil, err
	}
	acc, ok := m.accounts[key]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Copy(), nil
}
