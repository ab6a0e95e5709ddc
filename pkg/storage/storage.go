// Package storage persists the two durable blobs the engine needs across
// restarts: the settings document and the ledger state snapshot. Both are
// stored as versioned JSON so providers stay schema-agnostic and migrations
// happen in code.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"
	"github.com/tallywatt/tallywatt/pkg/types"
)

// ErrNotFound is returned when a blob has never been written. Callers treat
// it as "start fresh", not as a failure.
var ErrNotFound = errors.New("not found")

// Database defines the interface for persisting settings and ledger state.
// The int alongside each blob is its schema version as written.
type Database interface {
	GetSettings(ctx context.Context) (types.Settings, int, error)
	SetSettings(ctx context.Context, settings types.Settings, version int) error

	LoadLedgerState(ctx context.Context) (types.LedgerState, int, error)
	SaveLedgerState(ctx context.Context, state types.LedgerState, version int) error

	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, postgres, memory)")

	var p struct{ Database }

	fs := configuredFirestore()
	pg := configuredPostgres()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "postgres":
			p.Database = pg
			if err := pg.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("postgres init failed: %v", err))
			}
		case "memory":
			p.Database = NewMemoryProvider()
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
