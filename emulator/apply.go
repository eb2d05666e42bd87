package emulator

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/evm-loader/emulator/tracing"
	"github.com/holiman/uint256"
)

// Effect is one state transition produced by the interpreter: Modify or
// Delete.
type Effect interface {
	EffectAddress() common.Address
	isEffect()
}

// Basic is the updated balance and nonce of a modified account.
type Basic struct {
	Balance *uint256.Int
	Nonce   uint64
}

// StorageChange is a single storage slot write.
type StorageChange struct {
	Key   common.Hash
	Value common.Hash
}

// Modify updates an account. Code is nil when the code did not change.
type Modify struct {
	Address      common.Address
	Basic        Basic
	Code         []byte
	Storage      []StorageChange
	ResetStorage bool
}

// Delete removes an account.
type Delete struct {
	Address common.Address
}

func (m Modify) EffectAddress() common.Address { return m.Address }
func (d Delete) EffectAddress() common.Address { return d.Address }

func (Modify) isEffect() {}
func (Delete) isEffect() {}

// ApplyStats summarizes one Apply call.
type ApplyStats struct {
	Modified int // Modify effects on cached accounts
	Unknown  int // Modify effects on addresses never materialized
	Deleted  int
}

// Apply consumes effects in order. A Modify marks the cached account
// writable; a Modify for an address the cache never materialized is reported
// through the event sink and skipped. A Delete is only recorded. Nothing is
// written to the ledger.
func (s *AccountStorage) Apply(effects []Effect) ApplyStats {
	var (
		stats  ApplyStats
		events = make([]Event, 0, len(effects))
	)
	s.mu.Lock()
	for _, effect := range effects {
		switch e := effect.(type) {
		case Modify:
			events = append(events, s.applyModify(&e, &stats))
		case *Modify:
			events = append(events, s.applyModify(e, &stats))
		case Delete:
			events = append(events, s.applyDelete(e.Address, &stats))
		case *Delete:
			events = append(events, s.applyDelete(e.Address, &stats))
		}
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.events.OnEvent(ev)
	}
	return stats
}

// applyModify must be called with s.mu held.
func (s *AccountStorage) applyModify(m *Modify, stats *ApplyStats) Event {
	balance := m.Basic.Balance
	if balance == nil {
		balance = new(uint256.Int)
	}
	ctx := []any{
		"nonce", m.Basic.Nonce,
		"balance", balance,
		"code", m.Code != nil,
		"slots", len(m.Storage),
		"reset", m.ResetStorage,
	}
	acc, ok := s.accounts[m.Address]
	if !ok {
		stats.Unknown++
		modifyUnknownMeter.Mark(1)
		return Event{Kind: tracing.EventModifyUnknown, Address: m.Address, Ctx: ctx}
	}
	acc.writable = true
	stats.Modified++
	return Event{Kind: tracing.EventModify, Address: m.Address, Key: acc.key, Ctx: ctx}
}

// applyDelete must be called with s.mu held.
func (s *AccountStorage) applyDelete(addr common.Address, stats *ApplyStats) Event {
	s.deleted.Add(addr)
	stats.Deleted++
	return Event{Kind: tracing.EventDelete, Address: addr}
}

// Deleted returns the addresses named by Delete effects, in address order.
func (s *AccountStorage) Deleted() []common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedAddresses(s.deleted.ToSlice())
}
