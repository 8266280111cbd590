package main

import (
	"context"

	"github.com/sells-group/coverage-cli/internal/store"
)

// initStore opens the configured run ledger with migrations applied.
func initStore(ctx context.Context) (store.Store, error) {
	return store.New(ctx, cfg.Store)
}
