package ledger

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// DefaultCommitment is the commitment level used when none is configured.
const DefaultCommitment = "confirmed"

// RPCLedger reads the host ledger over its JSON-RPC 2.0 API.
type RPCLedger struct {
	client     *rpc.Client
	commitment string
	limiter    *rate.Limiter // nil for unlimited
}

// DialRPC connects to the ledger JSON-RPC endpoint at url.
func DialRPC(ctx context.Context, url, commitment string) (*RPCLedger, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial ledger %s: %w", url, err)
	}
	return NewRPCLedger(client, commitment), nil
}

// NewRPCLedger wraps an existing client.
func NewRPCLedger(client *rpc.Client, commitment string) *RPCLedger {
	if commitment == "" {
		commitment = DefaultCommitment
	}
	return &RPCLedger{client: client, commitment: commitment}
}

// Close terminates the underlying connection.
func (l *RPCLedger) Close() {
	l.client.Close()
}

// SetRateLimit caps outgoing requests at r per second with the given burst.
// A non-positive r removes the limit. Not safe to call concurrently with
// queries.
func (l *RPCLedger) SetRateLimit(r float64, burst int) {
	if r <= 0 {
		l.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	l.limiter = rate.NewLimiter(rate.Limit(r), burst)
}

func (l *RPCLedger) call(ctx context.Context, result any, method string, args ...any) error {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limit: %w", method, err)
		}
	}
	return l.client.CallContext(ctx, result, method, args...)
}

type commitmentConfig struct {
	Commitment string `json:"commitment,omitempty"`
}

type accountInfoConfig struct {
	Encoding   string `json:"encoding"`
	Commitment string `json:"commitment,omitempty"`
}

// rpcAccount mirrors the "value" object of getAccountInfo with base64 data.
type rpcAccount struct {
	Data       []string `json:"data"`
	Lamports   uint64   `json:"lamports"`
	Owner      Pubkey   `json:"owner"`
	Executable bool     `json:"executable"`
}

type rpcAccountResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value *rpcAccount `json:"value"`
}

func (l *RPCLedger) CurrentSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := l.call(ctx, &slot, "getSlot", commitmentConfig{Commitment: l.commitment}); err != nil {
		return 0, fmt.Errorf("getSlot: %w", err)
	}
	return slot, nil
}

func (l *RPCLedger) BlockTime(ctx context.Context, slot uint64) (int64, error) {
	var ts *int64
	if err := l.call(ctx, &ts, "getBlockTime", slot); err != nil {
		return 0, fmt.Errorf("getBlockTime %d: %w", slot, err)
	}
	if ts == nil {
		return 0, fmt.Errorf("slot %d: %w", slot, ErrBlockTimeUnavailable)
	}
	return *ts, nil
}

func (l *RPCLedger) GetAccount(ctx context.Context, key Pubkey) (*Account, error) {
	var res rpcAccountResult
	cfg := accountInfoConfig{Encoding: "base64", Commitment: l.commitment}
	if err := l.call(ctx, &res, "getAccountInfo", key.String(), cfg); err != nil {
		return nil, fmt.Errorf("getAccountInfo %s: %w", key, err)
	}
	if res.Value == nil {
		return nil, fmt.Errorf("%s: %w", key, ErrAccountNotFound)
	}
	if len(res.Value.Data) == 0 {
		return nil, fmt.Errorf("getAccountInfo %s: missing data field", key)
	}
	if len(res.Value.Data) > 1 && res.Value.Data[1] != "base64" {
		return nil, fmt.Errorf("getAccountInfo %s: unexpected encoding %q", key, res.Value.Data[1])
	}
	data, err := base64.StdEncoding.DecodeString(res.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("getAccountInfo %s: %w", key, err)
	}
	log.Trace("Fetched ledger account", "key", key, "slot", res.Context.Slot, "len", len(data), "owner", res.Value.Owner)
	return &Account{
		Data:       data,
		Lamports:   res.Value.Lamports,
		Owner:      res.Value.Owner,
		Executable: res.Value.Executable,
	}, nil
}
