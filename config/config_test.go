package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/evm-loader/emulator/emulator"
	"github.com/evm-loader/emulator/ledger"
	"github.com/stretchr/testify/require"
)

const sample = `
[Ledger]
URL = "https://ledger.example:8899"

[Emulator]
ProgramID = "53DfF883gyixYNXnM7s5xhdeyV8mVk9T4i2hGV9vG9io"
BaseAccount = "4sW3SZDJB7qXUyCYKA7pFL8eCTfm3REr8oSiKkww7MaT"
Contract = "0x00000000000000000000000000000000c0ffee01"
FetchPolicy = "strict"
FetchTimeout = 5000000000
`

func TestDecodeKeepsDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(sample), &cfg))

	require.Equal(t, "https://ledger.example:8899", cfg.Ledger.URL)
	require.Equal(t, ledger.DefaultCommitment, cfg.Ledger.Commitment)
	require.Equal(t, ledger.MustPubkey("53DfF883gyixYNXnM7s5xhdeyV8mVk9T4i2hGV9vG9io"), cfg.Emulator.ProgramID)
	require.Equal(t, common.HexToAddress("0xc0ffee01"), cfg.Emulator.Contract)
	require.Equal(t, emulator.FetchStrict, cfg.Emulator.FetchPolicy)
	require.Equal(t, 5*time.Second, cfg.Emulator.FetchTimeout)
	require.Equal(t, emulator.DefaultConfig.FetchRetries, cfg.Emulator.FetchRetries)
	require.Equal(t, emulator.DefaultConfig.PrefetchConcurrency, cfg.Emulator.PrefetchConcurrency)
}

func TestDecodeRejectsUnknownField(t *testing.T) {
	cfg := Default()
	err := Decode(strings.NewReader("[Ledger]\nEndpoint = \"x\"\n"), &cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Endpoint")
}

func TestDecodeRejectsBadPolicy(t *testing.T) {
	cfg := Default()
	err := Decode(strings.NewReader("[Emulator]\nFetchPolicy = \"sometimes\"\n"), &cfg)
	require.Error(t, err)
}

func TestLoadAddsFileName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evmemu.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Ledger]\nEndpoint = \"x\"\n"), 0o644))

	cfg := Default()
	err := Load(path, &cfg)
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), path+", "), "error %q lacks file name", err)
}

func TestEncodeDecode(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(sample), &cfg))

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &cfg))

	var again Config
	require.NoError(t, Decode(&buf, &again))
	require.Equal(t, cfg, again)
}
