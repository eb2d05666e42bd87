package emulator

import "github.com/ethereum/go-ethereum/metrics"

var (
	cacheHitMeter  = metrics.NewRegisteredMeter("emulator/cache/hit", nil)
	cacheMissMeter = metrics.NewRegisteredMeter("emulator/cache/miss", nil)

	accountFoundMeter  = metrics.NewRegisteredMeter("emulator/ledger/found", nil)
	accountAbsentMeter = metrics.NewRegisteredMeter("emulator/ledger/absent", nil)
	fetchFailedMeter   = metrics.NewRegisteredMeter("emulator/ledger/failed", nil)
	ledgerFetchTimer   = metrics.NewRegisteredTimer("emulator/ledger/fetch", nil)

	modifyUnknownMeter = metrics.NewRegisteredMeter("emulator/apply/unknown", nil)
)

// ResetProfileCounters zeros the session's cache hit and miss counters.
func (s *AccountStorage) ResetProfileCounters() {
	s.hits.Store(0)
	s.misses.Store(0)
}

// ProfileCounters returns (cacheHits, cacheMisses) since the last reset. A
// miss is one ledger lookup; concurrent callers sharing it count once.
func (s *AccountStorage) ProfileCounters() (int64, int64) {
	return s.hits.Load(), s.misses.Load()
}
