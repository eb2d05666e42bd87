package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newFakeLedgerServer answers the subset of the ledger JSON-RPC API used by
// RPCLedger. Keys present in accounts are returned, a key mapped to nil is
// answered with a JSON-RPC error, anything else with a null value.
func newFakeLedgerServer(t *testing.T, slot uint64, blockTime *int64, accounts map[string]*Account) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request: %v", err)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "getSlot":
			resp["result"] = slot
		case "getBlockTime":
			resp["result"] = blockTime
		case "getAccountInfo":
			var key string
			if err := json.Unmarshal(req.Params[0], &key); err != nil {
				t.Errorf("bad key param: %v", err)
			}
			acc, ok := accounts[key]
			switch {
			case ok && acc == nil:
				resp["error"] = map[string]any{"code": -32005, "message": "node is behind"}
			case ok:
				resp["result"] = map[string]any{
					"context": map[string]any{"slot": slot},
					"value": map[string]any{
						"data":       []string{base64.StdEncoding.EncodeToString(acc.Data), "base64"},
						"lamports":   acc.Lamports,
						"owner":      acc.Owner.String(),
						"executable": acc.Executable,
						"rentEpoch":  0,
					},
				}
			default:
				resp["result"] = map[string]any{"context": map[string]any{"slot": slot}, "value": nil}
			}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestRPCLedger(t *testing.T) {
	var (
		ctx     = context.Background()
		ts      = int64(1_700_000_000)
		found   = MustPubkey("4sW3SZDJB7qXUyCYKA7pFL8eCTfm3REr8oSiKkww7MaT")
		broken  = testProgramID
		missing = Pubkey{7}
	)
	srv := newFakeLedgerServer(t, 42, &ts, map[string]*Account{
		found.String():  {Data: []byte{2, 0xaa, 0xbb}, Lamports: 1000, Owner: testProgramID},
		broken.String(): nil,
	})
	defer srv.Close()

	l, err := DialRPC(ctx, srv.URL, "")
	require.NoError(t, err)
	defer l.Close()

	slot, err := l.CurrentSlot(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(42), slot)

	bt, err := l.BlockTime(ctx, slot)
	require.NoError(t, err)
	require.Equal(t, ts, bt)

	acc, err := l.GetAccount(ctx, found)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 0xaa, 0xbb}, acc.Data)
	require.Equal(t, uint64(1000), acc.Lamports)
	require.Equal(t, testProgramID, acc.Owner)

	_, err = l.GetAccount(ctx, missing)
	require.ErrorIs(t, err, ErrAccountNotFound)

	_, err = l.GetAccount(ctx, broken)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAccountNotFound)
}

func TestRPCLedgerMissingBlockTime(t *testing.T) {
	srv := newFakeLedgerServer(t, 7, nil, nil)
	defer srv.Close()

	l, err := DialRPC(context.Background(), srv.URL, "finalized")
	require.NoError(t, err)
	defer l.Close()

	_, err = l.BlockTime(context.Background(), 7)
	require.ErrorIs(t, err, ErrBlockTimeUnavailable)
}

func TestRPCLedgerRateLimit(t *testing.T) {
	srv := newFakeLedgerServer(t, 9, nil, nil)
	defer srv.Close()

	l, err := DialRPC(context.Background(), srv.URL, "")
	require.NoError(t, err)
	defer l.Close()
	l.SetRateLimit(0.001, 1)

	_, err = l.CurrentSlot(context.Background())
	require.NoError(t, err)

	// The burst is spent; the next token is far beyond the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.CurrentSlot(ctx)
	require.ErrorContains(t, err, "rate limit")

	l.SetRateLimit(0, 0)
	slot, err := l.CurrentSlot(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(9), slot)
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger(10, 100)
	key := Pubkey{1}

	_, err := m.GetAccount(ctx, key)
	require.ErrorIs(t, err, ErrAccountNotFound)

	m.SetAccount(key, &Account{Data: []byte{1}, Lamports: 5})
	acc, err := m.GetAccount(ctx, key)
	require.NoError(t, err)
	acc.Data[0] = 9

	again, err := m.GetAccount(ctx, key)
	require.NoError(t, err)
	require.Equal(t, byte(1), again.Data[0], "returned accounts must not alias ledger storage")
	require.Equal(t, 3, m.Queries(key))

	m.Fail(key, context.DeadlineExceeded)
	_, err = m.GetAccount(ctx, key)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	m.Fail(key, nil)
	_, err = m.GetAccount(ctx, key)
	require.NoError(t, err)
}
