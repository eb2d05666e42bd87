package emulator

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/evm-loader/emulator/account"
	"github.com/evm-loader/emulator/ledger"
	"github.com/evm-loader/emulator/tracing"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestApplyModifyMarksWritable(t *testing.T) {
	s, ml, rec := newTestStorage(t, FetchDegrade)
	ctx := context.Background()
	putAccount(t, s, ml, contractAddr, contractAccount([]byte{0x00}))

	exists, err := s.Ensure(ctx, contractAddr)
	require.NoError(t, err)
	require.True(t, exists)

	stats := s.Apply([]Effect{
		Modify{
			Address: contractAddr,
			Basic:   Basic{Balance: uint256.NewInt(5), Nonce: 1},
			Storage: []StorageChange{{Key: common.Hash{1}, Value: common.Hash{2}}},
		},
	})
	require.Equal(t, ApplyStats{Modified: 1}, stats)
	require.Equal(t, 1, rec.Count(tracing.EventModify))

	dirty := s.Dirty()
	require.Len(t, dirty, 1)
	require.Equal(t, contractAddr, dirty[0].Address)

	report := s.Report(tracing.ExitSucceed, []byte{0xde, 0xad})
	require.Equal(t, []AccountReport{{Address: contractAddr, Writable: true, New: false}}, report.Accounts)
	require.Equal(t, "dead", report.Result)
	require.Equal(t, "succeed", report.ExitStatus)
}

func TestApplyModifyUnknownIsReported(t *testing.T) {
	s, _, rec := newTestStorage(t, FetchDegrade)

	stats := s.Apply([]Effect{
		&Modify{Address: otherAddr, Code: []byte{0x00}},
		Delete{Address: callerAddr},
	})
	require.Equal(t, ApplyStats{Unknown: 1, Deleted: 1}, stats)
	require.Equal(t, 1, rec.Count(tracing.EventModifyUnknown))
	require.Equal(t, 1, rec.Count(tracing.EventDelete))

	// Neither effect materializes an entry.
	require.Equal(t, StatusUnknown, s.Status(otherAddr))
	require.Empty(t, s.Snapshot().Accounts)
	require.Empty(t, s.Dirty())
	require.Equal(t, []common.Address{callerAddr}, s.Deleted())
}

func TestApplyDeleteKeepsCacheEntry(t *testing.T) {
	s, ml, _ := newTestStorage(t, FetchDegrade)
	ctx := context.Background()
	putAccount(t, s, ml, callerAddr, &ledger.Account{Data: []byte{account.TagAccount}, Lamports: 9, Owner: testProgramID})
	_, err := s.Ensure(ctx, callerAddr)
	require.NoError(t, err)

	s.Apply([]Effect{&Delete{Address: callerAddr}})

	require.Equal(t, StatusFound, s.Status(callerAddr))
	snap := s.Snapshot()
	require.Len(t, snap.Accounts, 1)
	require.False(t, snap.Accounts[0].Writable)
	require.Equal(t, uint64(9), snap.Accounts[0].Lamports)
	require.Equal(t, []common.Address{callerAddr}, snap.Deleted)
}

func TestLogSinkWarnsOnUnknownModify(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLogger(log.JSONHandler(&buf))

	ml := ledger.NewMemoryLedger(testSlot, testBlockTime)
	s, err := New(context.Background(), ml, testConfig(FetchDegrade), NewLogSink(logger))
	require.NoError(t, err)

	s.Apply([]Effect{Modify{Address: otherAddr}})
	out := buf.String()
	require.True(t, strings.Contains(out, "Modify for account never loaded"), "log output: %s", out)
	require.True(t, strings.Contains(out, otherAddr.Hex()), "log output: %s", out)
}

func TestMultiSink(t *testing.T) {
	a, b := new(Recorder), new(Recorder)
	sink := MultiSink{a, b}
	sink.OnEvent(Event{Kind: tracing.EventDelete, Address: otherAddr})
	require.Equal(t, 1, a.Count(tracing.EventDelete))
	require.Equal(t, a.Events(), b.Events())
}

func TestReportJSON(t *testing.T) {
	s, ml, _ := newTestStorage(t, FetchDegrade)
	ctx := context.Background()
	putAccount(t, s, ml, contractAddr, contractAccount(nil))
	putAccount(t, s, ml, callerAddr, &ledger.Account{Data: []byte{account.TagAccount}, Owner: testProgramID})

	for _, addr := range []common.Address{otherAddr, callerAddr, contractAddr} {
		_, err := s.Ensure(ctx, addr)
		require.NoError(t, err)
	}
	s.Apply([]Effect{Modify{Address: contractAddr}})

	var buf bytes.Buffer
	require.NoError(t, s.Report(tracing.ExitRevert, nil).WriteJSON(&buf))

	var decoded struct {
		Accounts []struct {
			Address  string `json:"address"`
			Writable bool   `json:"writable"`
			New      bool   `json:"new"`
		} `json:"accounts"`
		Result     string `json:"result"`
		ExitStatus string `json:"exit_status"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "revert", decoded.ExitStatus)
	require.Equal(t, "", decoded.Result)
	require.Len(t, decoded.Accounts, 3)

	// Cached accounts in address order, then accounts pending creation.
	require.Equal(t, "0x00000000000000000000000000000000000ca11e", decoded.Accounts[0].Address)
	require.False(t, decoded.Accounts[0].Writable)
	require.Equal(t, "0x00000000000000000000000000000000c0ffee01", decoded.Accounts[1].Address)
	require.True(t, decoded.Accounts[1].Writable)
	require.Equal(t, "0x0000000000000000000000000000000000000bad", decoded.Accounts[2].Address)
	require.True(t, decoded.Accounts[2].New)
}
