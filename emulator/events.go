package emulator

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/evm-loader/emulator/ledger"
	"github.com/evm-loader/emulator/tracing"
)

// Event is a structured diagnostic emitted by an AccountStorage.
type Event struct {
	Kind    tracing.EventKind
	Address common.Address
	Key     ledger.Pubkey
	Err     error
	Ctx     []any // additional key/value pairs
}

// EventSink receives the diagnostics of a session. OnEvent is called outside
// the storage lock but may be called from several goroutines when the host
// fetches concurrently.
type EventSink interface {
	OnEvent(ev Event)
}

// LogSink writes events to a go-ethereum logger.
type LogSink struct {
	logger log.Logger
}

// NewLogSink returns a sink logging through l, or the root logger if l is nil.
func NewLogSink(l log.Logger) *LogSink {
	if l == nil {
		l = log.Root()
	}
	return &LogSink{logger: l}
}

func (s *LogSink) OnEvent(ev Event) {
	ctx := make([]any, 0, 6+len(ev.Ctx))
	if ev.Address != (common.Address{}) {
		ctx = append(ctx, "address", ev.Address)
	}
	if !ev.Key.IsZero() {
		ctx = append(ctx, "key", ev.Key)
	}
	ctx = append(ctx, ev.Ctx...)
	if ev.Err != nil {
		ctx = append(ctx, "err", ev.Err)
	}
	switch ev.Kind {
	case tracing.EventModifyUnknown:
		s.logger.Warn("Modify for account never loaded", ctx...)
	case tracing.EventFetchFailed:
		s.logger.Warn("Ledger account fetch failed", ctx...)
	case tracing.EventEnvironment:
		if ev.Err != nil {
			s.logger.Warn("Session environment defaulted", ctx...)
			return
		}
		s.logger.Debug("Session environment captured", ctx...)
	case tracing.EventAccountFound:
		s.logger.Debug("Account found", ctx...)
	case tracing.EventAccountAbsent:
		s.logger.Debug("Account not found", ctx...)
	case tracing.EventModify:
		s.logger.Debug("Modify", ctx...)
	case tracing.EventDelete:
		s.logger.Debug("Delete", ctx...)
	default:
		s.logger.Trace("Emulator event", append(ctx, "kind", ev.Kind)...)
	}
}

// Recorder is a sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of the given kind were recorded.
func (r *Recorder) Count(kind tracing.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// MultiSink forwards every event to each of its sinks in order.
type MultiSink []EventSink

func (m MultiSink) OnEvent(ev Event) {
	for _, s := range m {
		s.OnEvent(ev)
	}
}
