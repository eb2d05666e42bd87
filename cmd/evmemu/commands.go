package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/evm-loader/emulator/account"
	"github.com/evm-loader/emulator/config"
	"github.com/evm-loader/emulator/emulator"
	"github.com/evm-loader/emulator/ledger"
	"github.com/evm-loader/emulator/tracing"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

var (
	deriveCommand = &cli.Command{
		Action:    derive,
		Name:      "derive",
		Usage:     "Print the ledger keys backing EVM addresses",
		ArgsUsage: "<address> [<address>...]",
		Description: `The derive command prints the ledger account key of every given address.
The contract under execution (--contract) maps to a program-derived key, all
other addresses to keys derived from the base account. No ledger is queried.`,
	}
	inspectCommand = &cli.Command{
		Action:    inspect,
		Name:      "inspect",
		Usage:     "Decode the ledger account backing an EVM address",
		ArgsUsage: "<address>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "storage",
				Usage: "Dump every storage slot of a contract",
			},
		},
	}
	probeCommand = &cli.Command{
		Action:    probe,
		Name:      "probe",
		Usage:     "Run a read-only session over the given addresses and print its report",
		ArgsUsage: "<address> [<address>...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "touch",
				Usage: "Addresses to mark modified before reporting",
			},
		},
	}
	dumpConfigCommand = &cli.Command{
		Action: dumpConfig,
		Name:   "dumpconfig",
		Usage:  "Show configuration values",
	}
)

func derive(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	addrs, err := parseAddresses(ctx.Args().Slice())
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return errors.New("no addresses given")
	}
	// Key derivation needs no environment, so a session on an empty
	// in-memory ledger is enough.
	storage, err := offlineSession(ctx, cfg)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		key, err := storage.DerivedKey(addr)
		if err != nil {
			return fmt.Errorf("derive %s: %w", addr, err)
		}
		fmt.Printf("%s %s\n", addr, key)
	}
	return nil
}

func inspect(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("expected exactly one address")
	}
	addr, err := parseAddress(ctx.Args().First())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	storage, closeLedger, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	view, found, err := storage.View(ctx.Context, addr)
	if err != nil {
		return err
	}
	key, _ := storage.DerivedKey(addr)
	if !found {
		fmt.Printf("address: %s\nkey:     %s\nstatus:  %s\n", addr, key, storage.Status(addr))
		if ferr := storage.FetchError(addr); ferr != nil {
			fmt.Printf("error:   %v\n", ferr)
		}
		return nil
	}
	fmt.Printf("address:  %s\nkey:      %s\nlamports: %d\nowner:    %s\ntag:      %s\n", addr, view.Key, view.Lamports, view.Owner, tagName(view.Tag))
	if !view.IsContract() {
		return nil
	}
	ext := view.Extension
	fmt.Printf("code:     %d bytes\nslots:    %d (%d bytes free)\n", view.Data.CodeSize, ext.Storage.Len(), ext.Storage.Free())
	if !ctx.Bool("storage") {
		return nil
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Slot", "Value"})
	table.SetAutoWrapText(false)
	err = ext.Storage.ForEach(func(k, v common.Hash) bool {
		table.Append([]string{k.Hex(), v.Hex()})
		return true
	})
	if err != nil {
		return err
	}
	table.Render()
	return nil
}

func probe(ctx *cli.Context) error {
	addrs, err := parseAddresses(ctx.Args().Slice())
	if err != nil {
		return err
	}
	touched, err := parseAddresses(ctx.StringSlice("touch"))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	storage, closeLedger, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	addrs = append(addrs, storage.Contract(), storage.Caller())
	if err := storage.Prefetch(ctx.Context, addrs); err != nil {
		return err
	}
	effects := make([]emulator.Effect, 0, len(touched))
	for _, addr := range touched {
		effects = append(effects, emulator.Modify{Address: addr})
	}
	stats := storage.Apply(effects)
	hits, misses := storage.ProfileCounters()
	log.Info("Probe finished", "accounts", len(addrs), "modified", stats.Modified, "unknown", stats.Unknown, "hits", hits, "misses", misses)

	return storage.Report(tracing.ExitSucceed, nil).WriteJSON(os.Stdout)
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	return config.Encode(os.Stdout, &cfg)
}

// offlineSession starts a session that never reaches a ledger.
func offlineSession(ctx *cli.Context, cfg config.Config) (*emulator.AccountStorage, error) {
	return emulator.New(ctx.Context, ledger.NewMemoryLedger(0, 0), cfg.Emulator, nil)
}

func tagName(tag byte) string {
	switch tag {
	case account.TagEmpty:
		return "empty"
	case account.TagAccount:
		return "account"
	case account.TagContract:
		return "contract"
	}
	return fmt.Sprintf("unknown(%d)", tag)
}
