package tracing

import "testing"

func TestExitStatusStrings(t *testing.T) {
	for st := ExitSucceed; st <= ExitFatal; st++ {
		parsed, ok := ParseExitStatus(st.String())
		if !ok || parsed != st {
			t.Fatalf("status %d: parse(%q) = %d, %v", st, st.String(), parsed, ok)
		}
	}
	if _, ok := ParseExitStatus("halted"); ok {
		t.Fatalf("unknown status must not parse")
	}
	if got := ExitStatus(42).String(); got != "unknown" {
		t.Fatalf("out of range status: got %q", got)
	}
}

func TestEventKindStrings(t *testing.T) {
	seen := make(map[string]EventKind)
	for k := EventUnspecified; k <= EventEnvironment; k++ {
		s := k.String()
		if s == "unknown" {
			t.Fatalf("kind %d has no name", k)
		}
		if prev, dup := seen[s]; dup {
			t.Fatalf("kinds %d and %d share name %q", prev, k, s)
		}
		seen[s] = k
	}
}
