// Package config loads evmemu settings from TOML files.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"unicode"

	"github.com/evm-loader/emulator/emulator"
	"github.com/evm-loader/emulator/ledger"
	"github.com/naoina/toml"
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see %s for available fields", rt.PkgPath())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// LedgerConfig selects the ledger RPC endpoint.
type LedgerConfig struct {
	URL        string
	Commitment string
	RateLimit  float64 // requests per second, 0 for unlimited
	RateBurst  int
}

// Config is the top-level file layout.
type Config struct {
	Ledger   LedgerConfig
	Emulator emulator.Config
}

// Default returns the settings used for keys absent from a file.
func Default() Config {
	return Config{
		Ledger:   LedgerConfig{URL: "http://127.0.0.1:8899", Commitment: ledger.DefaultCommitment},
		Emulator: emulator.DefaultConfig,
	}
}

// Load decodes the file at path on top of cfg. Keys missing from the file
// keep their current value.
func Load(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = Decode(bufio.NewReader(f), cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return err
}

// Decode reads TOML settings from r into cfg.
func Decode(r io.Reader, cfg *Config) error {
	return tomlSettings.NewDecoder(r).Decode(cfg)
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg *Config) error {
	out, err := tomlSettings.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
