package emulator

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/evm-loader/emulator/ledger"
)

// FetchPolicy decides what a failed ledger query means for an address.
type FetchPolicy int

const (
	// FetchDegrade treats a failed query like confirmed absence: the address
	// joins the pending-creation set and emulation carries on.
	FetchDegrade FetchPolicy = iota
	// FetchStrict surfaces the failure to the caller and records nothing, so
	// the address can be fetched again later.
	FetchStrict
)

func (p FetchPolicy) String() string {
	switch p {
	case FetchDegrade:
		return "degrade"
	case FetchStrict:
		return "strict"
	}
	return fmt.Sprintf("FetchPolicy(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p FetchPolicy) MarshalText() ([]byte, error) {
	switch p {
	case FetchDegrade, FetchStrict:
		return []byte(p.String()), nil
	}
	return nil, fmt.Errorf("unknown fetch policy %d", int(p))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *FetchPolicy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "degrade":
		*p = FetchDegrade
	case "strict":
		*p = FetchStrict
	default:
		return fmt.Errorf(`unknown fetch policy %q, want "degrade" or "strict"`, text)
	}
	return nil
}

// Config contains the parameters of one emulation session.
type Config struct {
	ProgramID   ledger.Pubkey  // program owning every emulated account
	BaseAccount ledger.Pubkey  // base of seed-derived account keys
	Contract    common.Address // contract under execution
	Caller      common.Address // transaction sender

	FetchPolicy  FetchPolicy
	FetchTimeout time.Duration // per ledger query attempt, 0 for none
	FetchRetries uint64        // additional attempts after a failed query

	PrefetchConcurrency int
}

// DefaultConfig contains the default session settings.
var DefaultConfig = Config{
	FetchPolicy:         FetchDegrade,
	FetchTimeout:        10 * time.Second,
	FetchRetries:        2,
	PrefetchConcurrency: 8,
}

var errNoProgramID = errors.New("emulator: program id not configured")

// sanitize checks the config and replaces unusable values with defaults.
func (c *Config) sanitize() (Config, error) {
	conf := *c
	if conf.ProgramID.IsZero() {
		return conf, errNoProgramID
	}
	if conf.FetchPolicy != FetchDegrade && conf.FetchPolicy != FetchStrict {
		return conf, fmt.Errorf("emulator: %v", conf.FetchPolicy)
	}
	if conf.FetchTimeout < 0 {
		log.Warn("Sanitizing invalid fetch timeout", "provided", conf.FetchTimeout, "updated", DefaultConfig.FetchTimeout)
		conf.FetchTimeout = DefaultConfig.FetchTimeout
	}
	if conf.PrefetchConcurrency < 1 {
		log.Warn("Sanitizing invalid prefetch concurrency", "provided", conf.PrefetchConcurrency, "updated", DefaultConfig.PrefetchConcurrency)
		conf.PrefetchConcurrency = DefaultConfig.PrefetchConcurrency
	}
	return conf, nil
}
