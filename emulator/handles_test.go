package emulator

import (
	"context"
	"sync"
	"testing"

	"github.com/evm-loader/emulator/ledger"
)

// TestHandleRegistry verifies that Register returns unique handles, lookup
// works, and Release actually removes the entry.
func TestHandleRegistry(t *testing.T) {
	s, _, _ := newTestStorage(t, FetchDegrade)

	h := Register(s)
	if h == 0 {
		t.Fatalf("handle must be non-zero")
	}
	if got, err := FromHandle(h); err != nil || got != s {
		t.Fatalf("lookup failed for valid handle: %v", err)
	}
	if Register(nil) != 0 {
		t.Fatalf("nil session must map to the null handle")
	}

	Release(h)
	if _, err := FromHandle(h); err != ErrUnknownHandle {
		t.Fatalf("handle should have been removed after release, got %v", err)
	}
}

// TestHandleRace ensures that concurrent handle operations are race-free.
func TestHandleRace(t *testing.T) {
	const n = 100
	ml := ledger.NewMemoryLedger(testSlot, testBlockTime)

	wg := sync.WaitGroup{}
	wg.Add(n)

	handles := make(chan uintptr, n)

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			s, err := New(context.Background(), ml, testConfig(FetchDegrade), new(Recorder))
			if err != nil {
				t.Errorf("new session: %v", err)
				return
			}
			handles <- Register(s)
		}()
	}

	wg.Wait()
	close(handles)

	seen := make(map[uintptr]bool)
	for h := range handles {
		if seen[h] {
			t.Fatalf("duplicate handle %d", h)
		}
		seen[h] = true
		if _, ok := lookup(h); !ok {
			t.Fatalf("lookup failed for handle %d", h)
		}
		Release(h)
	}
}
