package emulator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// Prefetch ensures every address in addrs, running up to
// PrefetchConcurrency ledger queries at once, so that later interpreter
// lookups resolve from the cache. Duplicate addresses cost one query. Under
// FetchDegrade it never fails; under FetchStrict it returns the first fetch
// error.
func (s *AccountStorage) Prefetch(ctx context.Context, addrs []common.Address) error {
	if len(addrs) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PrefetchConcurrency)
	for _, addr := range addrs {
		g.Go(func() error {
			_, err := s.Ensure(gctx, addr)
			return err
		})
	}
	return g.Wait()
}
