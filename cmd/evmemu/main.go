// evmemu is a developer tool for the account-storage emulation layer. It
// derives ledger keys for EVM addresses, decodes emulator-owned accounts and
// runs read-only probe sessions against a ledger RPC endpoint.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/evm-loader/emulator/config"
	"github.com/evm-loader/emulator/emulator"
	"github.com/evm-loader/emulator/ledger"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	ledgerURLFlag = &cli.StringFlag{
		Name:  "ledger",
		Usage: "Ledger JSON-RPC endpoint",
	}
	commitmentFlag = &cli.StringFlag{
		Name:  "commitment",
		Usage: "Commitment level of ledger queries",
	}
	rateLimitFlag = &cli.Float64Flag{
		Name:  "ledger-rps",
		Usage: "Maximum ledger requests per second (0 = unlimited)",
	}
	programIDFlag = &cli.StringFlag{
		Name:  "program-id",
		Usage: "Emulator program id (base58)",
	}
	baseAccountFlag = &cli.StringFlag{
		Name:  "base-account",
		Usage: "Base account of seed-derived keys (base58)",
	}
	contractFlag = &cli.StringFlag{
		Name:  "contract",
		Usage: "Address of the contract under execution",
	}
	callerFlag = &cli.StringFlag{
		Name:  "caller",
		Usage: "Address of the transaction sender",
	}
	strictFlag = &cli.BoolFlag{
		Name:  "strict",
		Usage: "Fail on ledger query errors instead of treating the account as absent",
	}
	fetchTimeoutFlag = &cli.DurationFlag{
		Name:  "fetch-timeout",
		Usage: "Timeout of a single ledger query",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
)

var appFlags = []cli.Flag{
	configFileFlag,
	ledgerURLFlag,
	commitmentFlag,
	rateLimitFlag,
	programIDFlag,
	baseAccountFlag,
	contractFlag,
	callerFlag,
	strictFlag,
	fetchTimeoutFlag,
	verbosityFlag,
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "evmemu",
		Usage: "EVM account-storage emulation toolkit",
		Flags: appFlags,
		Commands: []*cli.Command{
			deriveCommand,
			inspectCommand,
			probeCommand,
			dumpConfigCommand,
		},
		Before: setupLogging,
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) error {
	var (
		output   io.Writer = os.Stderr
		useColor           = isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
	)
	if useColor {
		output = colorable.NewColorableStderr()
	}
	handler := log.NewTerminalHandlerWithLevel(output, log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)), useColor)
	log.SetDefault(log.NewLogger(handler))
	return nil
}

// loadConfig builds the configuration from defaults, the optional config
// file and command line overrides, in that order.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := config.Load(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if ctx.IsSet(ledgerURLFlag.Name) {
		cfg.Ledger.URL = ctx.String(ledgerURLFlag.Name)
	}
	if ctx.IsSet(commitmentFlag.Name) {
		cfg.Ledger.Commitment = ctx.String(commitmentFlag.Name)
	}
	if ctx.IsSet(rateLimitFlag.Name) {
		cfg.Ledger.RateLimit = ctx.Float64(rateLimitFlag.Name)
	}
	if ctx.IsSet(programIDFlag.Name) {
		key, err := ledger.PubkeyFromString(ctx.String(programIDFlag.Name))
		if err != nil {
			return cfg, fmt.Errorf("--%s: %w", programIDFlag.Name, err)
		}
		cfg.Emulator.ProgramID = key
	}
	if ctx.IsSet(baseAccountFlag.Name) {
		key, err := ledger.PubkeyFromString(ctx.String(baseAccountFlag.Name))
		if err != nil {
			return cfg, fmt.Errorf("--%s: %w", baseAccountFlag.Name, err)
		}
		cfg.Emulator.BaseAccount = key
	}
	if ctx.IsSet(contractFlag.Name) {
		addr, err := parseAddress(ctx.String(contractFlag.Name))
		if err != nil {
			return cfg, fmt.Errorf("--%s: %w", contractFlag.Name, err)
		}
		cfg.Emulator.Contract = addr
	}
	if ctx.IsSet(callerFlag.Name) {
		addr, err := parseAddress(ctx.String(callerFlag.Name))
		if err != nil {
			return cfg, fmt.Errorf("--%s: %w", callerFlag.Name, err)
		}
		cfg.Emulator.Caller = addr
	}
	if ctx.IsSet(strictFlag.Name) {
		cfg.Emulator.FetchPolicy = emulator.FetchDegrade
		if ctx.Bool(strictFlag.Name) {
			cfg.Emulator.FetchPolicy = emulator.FetchStrict
		}
	}
	if ctx.IsSet(fetchTimeoutFlag.Name) {
		cfg.Emulator.FetchTimeout = ctx.Duration(fetchTimeoutFlag.Name)
	}
	return cfg, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAddresses(args []string) ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(args))
	for _, arg := range args {
		addr, err := parseAddress(arg)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// openSession dials the configured ledger and starts a session on it.
func openSession(ctx *cli.Context, cfg config.Config) (*emulator.AccountStorage, func(), error) {
	start := time.Now()
	rpcLedger, err := ledger.DialRPC(ctx.Context, cfg.Ledger.URL, cfg.Ledger.Commitment)
	if err != nil {
		return nil, nil, err
	}
	rpcLedger.SetRateLimit(cfg.Ledger.RateLimit, cfg.Ledger.RateBurst)
	storage, err := emulator.New(ctx.Context, rpcLedger, cfg.Emulator, nil)
	if err != nil {
		rpcLedger.Close()
		return nil, nil, err
	}
	env := storage.Env()
	log.Info("Session started", "ledger", cfg.Ledger.URL, "slot", env.Slot, "timestamp", env.Timestamp, "ffi", emulator.FFICallbacks, "elapsed", common.PrettyDuration(time.Since(start)))
	return storage, rpcLedger.Close, nil
}
