package emulator

import (
	"encoding/json"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/evm-loader/emulator/tracing"
)

// AccountReport is one entry of the session report.
type AccountReport struct {
	Address  common.Address `json:"address"`
	Writable bool           `json:"writable"`
	New      bool           `json:"new"`
}

// Report is the externally consumed summary of a session.
type Report struct {
	Accounts   []AccountReport `json:"accounts"`
	Result     string          `json:"result"`
	ExitStatus string          `json:"exit_status"`
}

// Report lists every account the session touched, cached accounts first and
// then those pending creation, together with the execution output.
func (s *AccountStorage) Report(status tracing.ExitStatus, result []byte) *Report {
	snap := s.Snapshot()
	r := &Report{
		Accounts:   make([]AccountReport, 0, len(snap.Accounts)+len(snap.Pending)),
		Result:     common.Bytes2Hex(result),
		ExitStatus: status.String(),
	}
	for _, acc := range snap.Accounts {
		r.Accounts = append(r.Accounts, AccountReport{Address: acc.Address, Writable: acc.Writable})
	}
	for _, addr := range snap.Pending {
		r.Accounts = append(r.Accounts, AccountReport{Address: addr, New: true})
	}
	return r
}

// WriteJSON encodes the report as a single JSON line.
func (r *Report) WriteJSON(w io.Writer) error {
	return json.NewEncoder(w).Encode(r)
}
