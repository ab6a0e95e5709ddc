package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tallywatt/tallywatt/pkg/bridge"
	"github.com/tallywatt/tallywatt/pkg/ledger"
	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/reads"
	"github.com/tallywatt/tallywatt/pkg/schedule"
	"github.com/tallywatt/tallywatt/pkg/server"
	"github.com/tallywatt/tallywatt/pkg/sink"
	"github.com/tallywatt/tallywatt/pkg/storage"
	"github.com/tallywatt/tallywatt/pkg/types"

	"github.com/levenlabs/go-lflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	// init packages
	memory := reads.NewMemory()
	db := storage.Configured()
	br := bridge.Configured(memory)
	snks := sink.Configured(br)

	l := ledger.New(memory, snks)
	driver := schedule.New(l)

	// init server
	srv := server.Configured(l, driver, db)

	internalSchedule := lflag.Bool("schedule-internal", true, "drive ticks and rollovers in-process (disable when an external scheduler hits the trigger endpoints)")

	// parse flags
	lflag.Configure()
	log.ConfigureDefault()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
		if err := snks.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close sinks", "error", err)
		}
	}()

	// load the settings document, migrating it forward if it predates the
	// current schema; with nothing stored we start from defaults
	settings, version, err := db.GetSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		settings, version = types.Settings{}, 0
	} else if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load settings", "error", err)
		os.Exit(1)
	}
	settings, migrated, err := types.MigrateSettings(settings, version)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to migrate settings", "error", err)
		os.Exit(1)
	}
	if migrated {
		if err := db.SetSettings(ctx, settings, types.CurrentSettingsVersion); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to persist migrated settings", "error", err)
			os.Exit(1)
		}
		log.Ctx(ctx).InfoContext(ctx, "migrated settings", slog.Int("fromVersion", version))
	}
	if err := l.ApplySettings(ctx, settings); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to apply settings", "error", err)
		os.Exit(1)
	}

	// restore the accumulators from the last persisted snapshot
	state, _, err := db.LoadLedgerState(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load ledger state", "error", err)
		os.Exit(1)
	}
	if err == nil {
		if err := l.ImportState(ctx, state); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to import ledger state", "error", err)
			os.Exit(1)
		}
		log.Ctx(ctx).InfoContext(ctx, "restored ledger state", slog.Int("devices", len(state.Devices)))
	}

	// connect the event stream last so nothing flows before state is loaded
	br.SetHandler(l)
	if err := br.Init(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to connect to mqtt", "error", err)
		os.Exit(1)
	}
	defer br.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if *internalSchedule {
		g.Go(func() error {
			err := driver.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
