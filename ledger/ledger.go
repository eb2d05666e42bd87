// Package ledger describes the host ledger that backs emulated EVM state: its
// account keys, the deterministic key-derivation scheme, and the read-only
// interface the emulator queries accounts through.
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrAccountNotFound is returned by a Reader when the ledger confirms
	// that no account exists under the requested key.
	ErrAccountNotFound = errors.New("account not found")

	// ErrBlockTimeUnavailable is returned when the ledger has no timestamp
	// for the requested slot.
	ErrBlockTimeUnavailable = errors.New("block time unavailable")
)

// Account is a native ledger account record.
type Account struct {
	Data       []byte
	Lamports   uint64 // balance
	Owner      Pubkey // owning program id
	Executable bool
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	if a == nil {
		return nil
	}
	cpy := *a
	cpy.Data = append([]byte(nil), a.Data...)
	return &cpy
}

// Reader is the read side of the host ledger. Implementations may block on
// network I/O; they must return ErrAccountNotFound (possibly wrapped) for
// confirmed absence so that callers can tell it apart from a failed fetch.
type Reader interface {
	CurrentSlot(ctx context.Context) (uint64, error)
	BlockTime(ctx context.Context, slot uint64) (int64, error)
	GetAccount(ctx context.Context, key Pubkey) (*Account, error)
}
