// Package tracing holds the enumerations shared by the emulator's
// diagnostics and its session report.
package tracing

// EventKind describes what an emulator diagnostic event is about.
type EventKind int

const (
	EventUnspecified   EventKind = iota
	EventAccountFound            // ledger returned an account
	EventAccountAbsent           // ledger confirmed absence
	EventFetchFailed             // ledger query failed
	EventModify                  // Modify effect applied to a cached account
	EventModifyUnknown           // Modify effect for an address never materialized
	EventDelete                  // Delete effect recorded
	EventEnvironment             // session slot/timestamp captured or defaulted
)

// String returns a human-readable string for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventUnspecified:
		return "unspecified"
	case EventAccountFound:
		return "account_found"
	case EventAccountAbsent:
		return "account_absent"
	case EventFetchFailed:
		return "fetch_failed"
	case EventModify:
		return "modify"
	case EventModifyUnknown:
		return "modify_unknown"
	case EventDelete:
		return "delete"
	case EventEnvironment:
		return "environment"
	}
	return "unknown"
}

// ExitStatus is the outcome of an emulated execution as reported to the
// session observer.
type ExitStatus int

const (
	ExitSucceed ExitStatus = iota
	ExitRevert
	ExitError
	ExitFatal
)

// String returns the status code emitted in session reports.
func (s ExitStatus) String() string {
	switch s {
	case ExitSucceed:
		return "succeed"
	case ExitRevert:
		return "revert"
	case ExitError:
		return "error"
	case ExitFatal:
		return "fatal"
	}
	return "unknown"
}

// ParseExitStatus is the inverse of ExitStatus.String.
func ParseExitStatus(s string) (ExitStatus, bool) {
	for st := ExitSucceed; st <= ExitFatal; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}
