package emulator

import (
	"bytes"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/evm-loader/emulator/ledger"
)

// AccountSnapshot describes one cached account at snapshot time.
type AccountSnapshot struct {
	Address  common.Address
	Key      ledger.Pubkey
	Lamports uint64
	Owner    ledger.Pubkey
	DataLen  int
	Writable bool
}

// Snapshot is a read-only copy of the session cache. Later changes to the
// storage do not affect it.
type Snapshot struct {
	Env      Environment
	Accounts []AccountSnapshot // sorted by address
	Pending  []common.Address  // pending creation, sorted
	Failed   []common.Address  // subset of Pending whose fetch failed
	Deleted  []common.Address
}

// Snapshot copies the current cache state.
func (s *AccountStorage) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		Env:      s.env,
		Accounts: make([]AccountSnapshot, 0, len(s.accounts)),
		Pending:  sortedAddresses(s.pending.ToSlice()),
		Deleted:  sortedAddresses(s.deleted.ToSlice()),
	}
	for addr, acc := range s.accounts {
		snap.Accounts = append(snap.Accounts, AccountSnapshot{
			Address:  addr,
			Key:      acc.key,
			Lamports: acc.account.Lamports,
			Owner:    acc.account.Owner,
			DataLen:  len(acc.account.Data),
			Writable: acc.writable,
		})
	}
	slices.SortFunc(snap.Accounts, func(a, b AccountSnapshot) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	failed := make([]common.Address, 0, len(s.failed))
	for addr := range s.failed {
		failed = append(failed, addr)
	}
	snap.Failed = sortedAddresses(failed)
	return snap
}

// DirtyAccount is a writable account handed to the commit stage.
type DirtyAccount struct {
	Address common.Address
	Key     ledger.Pubkey
	Account *ledger.Account // private copy
}

// Dirty returns copies of every account marked writable, sorted by address.
func (s *AccountStorage) Dirty() []DirtyAccount {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dirty []DirtyAccount
	for addr, acc := range s.accounts {
		if acc.writable {
			dirty = append(dirty, DirtyAccount{Address: addr, Key: acc.key, Account: acc.account.Copy()})
		}
	}
	slices.SortFunc(dirty, func(a, b DirtyAccount) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	return dirty
}

func sortedAddresses(addrs []common.Address) []common.Address {
	slices.SortFunc(addrs, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return addrs
}
