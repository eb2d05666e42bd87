// Package emulator maps EVM addresses onto host ledger accounts for the
// duration of one emulation session. Accounts are fetched lazily, memoized,
// decoded on demand for the interpreter, and flagged writable when the
// interpreter's state-transition effects touch them. Nothing is persisted
// here; a separate commit stage consumes the dirty set.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/evm-loader/emulator/account"
	"github.com/evm-loader/emulator/ledger"
	"github.com/evm-loader/emulator/tracing"
	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
	"golang.org/x/sync/singleflight"
)

// errCallerCancelled marks a lookup abandoned because the caller's context
// ended. Nothing is recorded for it.
var errCallerCancelled = errors.New("lookup cancelled")

// Status is what the session knows about the ledger account behind an
// address.
type Status int

const (
	StatusUnknown     Status = iota // never looked up
	StatusFound                     // backed by a cached ledger account
	StatusAbsent                    // ledger confirmed no account
	StatusFetchFailed               // lookup failed, treated as absent
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusFound:
		return "found"
	case StatusAbsent:
		return "absent"
	case StatusFetchFailed:
		return "fetch-failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Environment is the block context captured when the session starts.
type Environment struct {
	Slot      uint64
	Timestamp int64
}

// cachedAccount is one materialized ledger account. key never changes once
// the entry exists.
type cachedAccount struct {
	account  *ledger.Account
	key      ledger.Pubkey
	writable bool
}

// -----------------------------------------------------------------------------
// AccountStorage
// -----------------------------------------------------------------------------

// AccountStorage is the per-session account cache. All cache mutation is
// serialized by one mutex; concurrent lookups of the same address share a
// single ledger query.
type AccountStorage struct {
	cfg    Config
	reader ledger.Reader
	events EventSink
	env    Environment

	// mu protects the maps and sets below.
	mu       sync.Mutex
	accounts map[common.Address]*cachedAccount
	pending  mapset.Set[common.Address] // pending creation, disjoint from accounts
	failed   map[common.Address]error   // pending entries whose fetch failed
	deleted  mapset.Set[common.Address]

	fetches singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// New starts a session: it captures the ledger's current slot and block time
// once and returns an empty cache. A nil sink logs events to the root logger.
func New(ctx context.Context, reader ledger.Reader, cfg Config, sink EventSink) (*AccountStorage, error) {
	conf, err := cfg.sanitize()
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = NewLogSink(nil)
	}
	s := &AccountStorage{
		cfg:      conf,
		reader:   reader,
		events:   sink,
		accounts: make(map[common.Address]*cachedAccount),
		pending:  mapset.NewThreadUnsafeSet[common.Address](),
		failed:   make(map[common.Address]error),
		deleted:  mapset.NewThreadUnsafeSet[common.Address](),
	}
	if err := s.captureEnvironment(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AccountStorage) captureEnvironment(ctx context.Context) error {
	slot, err := s.reader.CurrentSlot(ctx)
	if err != nil {
		if s.cfg.FetchPolicy == FetchStrict {
			return fmt.Errorf("query current slot: %w", err)
		}
		s.events.OnEvent(Event{Kind: tracing.EventEnvironment, Err: err, Ctx: []any{"field", "slot", "value", 0}})
		slot = 0
	}
	ts, err := s.reader.BlockTime(ctx, slot)
	if err != nil {
		if s.cfg.FetchPolicy == FetchStrict {
			return fmt.Errorf("query block time of slot %d: %w", slot, err)
		}
		s.events.OnEvent(Event{Kind: tracing.EventEnvironment, Err: err, Ctx: []any{"field", "timestamp", "value", 0}})
		ts = 0
	}
	s.env = Environment{Slot: slot, Timestamp: ts}
	s.events.OnEvent(Event{Kind: tracing.EventEnvironment, Ctx: []any{"slot", slot, "timestamp", ts}})
	return nil
}

// -----------------------------------------------------------------------------
// Session-fixed accessors
// -----------------------------------------------------------------------------

// Contract returns the address of the contract under execution.
func (s *AccountStorage) Contract() common.Address { return s.cfg.Contract }

// Caller returns the transaction sender.
func (s *AccountStorage) Caller() common.Address { return s.cfg.Caller }

// Origin returns the EVM ORIGIN of the session: the transaction sender, not
// the contract under execution.
func (s *AccountStorage) Origin() common.Address { return s.cfg.Caller }

// Env returns the block context captured at session start.
func (s *AccountStorage) Env() Environment { return s.env }

// BlockNumber returns the session slot as the EVM block number.
func (s *AccountStorage) BlockNumber() *uint256.Int {
	return uint256.NewInt(s.env.Slot)
}

// BlockTimestamp returns the session block time as the EVM timestamp.
// Times before the epoch are reported as zero.
func (s *AccountStorage) BlockTimestamp() *uint256.Int {
	if s.env.Timestamp < 0 {
		return new(uint256.Int)
	}
	return uint256.NewInt(uint64(s.env.Timestamp))
}

// -----------------------------------------------------------------------------
// Lookup
// -----------------------------------------------------------------------------

// DerivedKey returns the ledger key backing addr. The contract under
// execution lives at a program-derived key seeded with its address bytes;
// every other address at a key derived from the base account and the base58
// form of the address.
func (s *AccountStorage) DerivedKey(addr common.Address) (ledger.Pubkey, error) {
	if addr == s.cfg.Contract {
		key, _, err := ledger.FindProgramAddress([][]byte{addr.Bytes()}, s.cfg.ProgramID)
		return key, err
	}
	return ledger.CreateWithSeed(s.cfg.BaseAccount, base58.Encode(addr.Bytes()), s.cfg.ProgramID)
}

// Ensure reports whether a ledger account backs addr, querying the ledger on
// first use only. Under FetchDegrade a failed query reports false with a nil
// error; under FetchStrict the error is returned and nothing is recorded.
// If ctx ends before the query completes, its error is returned and nothing
// is recorded under either policy.
func (s *AccountStorage) Ensure(ctx context.Context, addr common.Address) (bool, error) {
	if exists, known := s.known(addr); known {
		s.hits.Add(1)
		cacheHitMeter.Mark(1)
		return exists, nil
	}
	for {
		v, err, shared := s.fetches.Do(string(addr[:]), func() (any, error) {
			return s.load(ctx, addr)
		})
		// A flight led by another caller was abandoned with that caller's
		// context; fetch again with ours.
		if shared && errors.Is(err, errCallerCancelled) && ctx.Err() == nil {
			continue
		}
		if err != nil {
			return false, err
		}
		return v.(bool), nil
	}
}

// Status returns the tri-state lookup outcome for addr without querying
// the ledger.
func (s *AccountStorage) Status(addr common.Address) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[addr]; ok {
		return StatusFound
	}
	if _, ok := s.failed[addr]; ok {
		return StatusFetchFailed
	}
	if s.pending.Contains(addr) {
		return StatusAbsent
	}
	return StatusUnknown
}

// FetchError returns the error recorded for an address whose lookup failed
// under FetchDegrade, or nil.
func (s *AccountStorage) FetchError(addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed[addr]
}

func (s *AccountStorage) known(addr common.Address) (exists, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[addr]; ok {
		return true, true
	}
	if s.pending.Contains(addr) {
		return false, true
	}
	return false, false
}

// load runs inside the per-address flight. The re-check makes
// check-then-insert atomic for callers that missed the cache while an
// earlier flight for the same address was completing.
func (s *AccountStorage) load(ctx context.Context, addr common.Address) (bool, error) {
	if exists, known := s.known(addr); known {
		return exists, nil
	}
	s.misses.Add(1)
	cacheMissMeter.Mark(1)

	key, err := s.DerivedKey(addr)
	if err != nil {
		return false, fmt.Errorf("derive ledger key for %s: %w", addr, err)
	}
	log.Trace("Account not cached", "address", addr, "key", key)

	acc, err := s.fetch(ctx, key)
	if err != nil && ctx.Err() != nil {
		log.Debug("Account lookup abandoned", "address", addr, "key", key, "err", ctx.Err())
		return false, fmt.Errorf("%w: fetch account %s: %w", errCallerCancelled, addr, ctx.Err())
	}

	var ev Event
	s.mu.Lock()
	switch {
	case err == nil:
		s.accounts[addr] = &cachedAccount{account: acc, key: key}
		ev = Event{Kind: tracing.EventAccountFound, Address: addr, Key: key, Ctx: []any{"len", len(acc.Data), "owner", acc.Owner}}
		accountFoundMeter.Mark(1)
	case errors.Is(err, ledger.ErrAccountNotFound):
		s.pending.Add(addr)
		ev = Event{Kind: tracing.EventAccountAbsent, Address: addr, Key: key}
		accountAbsentMeter.Mark(1)
	default:
		ev = Event{Kind: tracing.EventFetchFailed, Address: addr, Key: key, Err: err, Ctx: []any{"policy", s.cfg.FetchPolicy}}
		fetchFailedMeter.Mark(1)
		if s.cfg.FetchPolicy == FetchDegrade {
			s.pending.Add(addr)
			s.failed[addr] = err
		}
	}
	s.mu.Unlock()
	s.events.OnEvent(ev)

	if ev.Kind == tracing.EventFetchFailed && s.cfg.FetchPolicy == FetchStrict {
		return false, fmt.Errorf("fetch account %s at %s: %w", addr, key, err)
	}
	return ev.Kind == tracing.EventAccountFound, nil
}

// fetch queries the ledger with the configured per-attempt timeout and
// bounded exponential retry. Confirmed absence is never retried.
func (s *AccountStorage) fetch(ctx context.Context, key ledger.Pubkey) (*ledger.Account, error) {
	defer ledgerFetchTimer.UpdateSince(time.Now())

	var acc *ledger.Account
	op := func() error {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.cfg.FetchTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		}
		defer cancel()

		a, err := s.reader.GetAccount(attemptCtx, key)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Debug("Ledger account query failed", "key", key, "err", err)
			return err
		}
		acc = a
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = time.Second

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, s.cfg.FetchRetries), ctx)); err != nil {
		return nil, err
	}
	return acc, nil
}

// -----------------------------------------------------------------------------
// Views
// -----------------------------------------------------------------------------

// View ensures addr and decodes a private copy of its account. The boolean
// is false if no ledger account backs the address. Changes made to the view
// are not reflected in the cache; they reach the ledger only through the
// effects applied with Apply and the external commit stage.
func (s *AccountStorage) View(ctx context.Context, addr common.Address) (*account.View, bool, error) {
	exists, err := s.Ensure(ctx, addr)
	if err != nil || !exists {
		return nil, false, err
	}
	s.mu.Lock()
	entry := s.accounts[addr]
	acc, key := entry.account.Copy(), entry.key
	s.mu.Unlock()

	view, err := account.Decode(key, acc)
	if err != nil {
		return nil, true, fmt.Errorf("decode account %s: %w", addr, err)
	}
	return view, true, nil
}

// WithAccount calls onFound with a fresh view of addr's account, or
// onMissing if no ledger account backs it. Neither callback runs when the
// lookup or the decode fails.
func WithAccount[U any](ctx context.Context, s *AccountStorage, addr common.Address, onMissing func() U, onFound func(*account.View) U) (U, error) {
	view, found, err := s.View(ctx, addr)
	if err != nil {
		var zero U
		return zero, err
	}
	if !found {
		return onMissing(), nil
	}
	return onFound(view), nil
}

// WithContract is WithAccount for the contract under execution.
func WithContract[U any](ctx context.Context, s *AccountStorage, onMissing func() U, onFound func(*account.View) U) (U, error) {
	return WithAccount(ctx, s, s.cfg.Contract, onMissing, onFound)
}

// WithCaller is WithAccount for the transaction sender.
func WithCaller[U any](ctx context.Context, s *AccountStorage, onMissing func() U, onFound func(*account.View) U) (U, error) {
	return WithAccount(ctx, s, s.cfg.Caller, onMissing, onFound)
}
