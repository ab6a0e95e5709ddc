// Package schedule drives the ledger's periodic work from an in-process
// clock: accrual ticks at the configured cadence plus daily and monthly
// rollovers at their configured wall-clock boundaries. Rollovers that were
// missed while the process was down run late on the next wake, and always
// run before the tick so the boundary-crossing accrual lands in the new
// window.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/types"
)

// wakeInterval bounds how late a boundary can fire.
const wakeInterval = 30 * time.Second

// Engine is the subset of the ledger the driver needs.
type Engine interface {
	Settings() types.Settings
	OnTick(ctx context.Context)
	OnDailyRollover(ctx context.Context)
	OnMonthlyRollover(ctx context.Context)
	LastDailyRollover() time.Time
	LastMonthlyRollover() time.Time
}

// Driver periodically wakes and compares the current time against the
// engine's configured boundaries and its recorded rollover marks. Because it
// re-reads settings on every wake, cadence and boundary changes take effect
// without a restart.
type Driver struct {
	engine Engine

	// now is replaceable for tests.
	now func() time.Time

	// Step can be called from Run and from an HTTP trigger concurrently.
	mu       sync.Mutex
	lastTick time.Time
}

// New creates a driver for the given engine.
func New(engine Engine) *Driver {
	return &Driver{engine: engine, now: time.Now}
}

// Run wakes every wakeInterval until the context is canceled.
func (d *Driver) Run(ctx context.Context) error {
	t := time.NewTicker(wakeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			d.Step(ctx)
		}
	}
}

// Step performs one wake: overdue rollovers first, then the accrual tick if
// its cadence has elapsed. It is also what the HTTP trigger endpoints call
// when an external scheduler owns the cadence instead of Run.
func (d *Driver) Step(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	settings := d.engine.Settings()
	loc := locationOf(ctx, settings)
	now := d.now()

	if due, boundary := dailyDue(now, settings, loc, d.engine.LastDailyRollover()); due {
		log.Ctx(ctx).DebugContext(ctx, "daily boundary reached", slog.Time("boundary", boundary))
		d.engine.OnDailyRollover(ctx)
	}
	if due, boundary := monthlyDue(now, settings, loc, d.engine.LastMonthlyRollover()); due {
		log.Ctx(ctx).DebugContext(ctx, "monthly boundary reached", slog.Time("boundary", boundary))
		d.engine.OnMonthlyRollover(ctx)
	}

	if settings.TickMinutes <= 0 {
		return
	}
	interval := time.Duration(settings.TickMinutes) * time.Minute
	if d.lastTick.IsZero() || now.Sub(d.lastTick) >= interval {
		d.lastTick = now
		d.engine.OnTick(ctx)
	}
}

// locationOf resolves the configured time zone. "Local" or an empty value is
// the process zone; an unloadable name falls back to UTC so rollovers still
// fire somewhere sensible.
func locationOf(ctx context.Context, settings types.Settings) *time.Location {
	switch settings.Location {
	case "", "Local":
		return time.Local
	}
	loc, err := time.LoadLocation(settings.Location)
	if err != nil {
		log.Ctx(ctx).WarnContext(
			ctx,
			"unknown time zone, using UTC",
			slog.String("location", settings.Location),
		)
		return time.UTC
	}
	return loc
}

// dailyDue reports whether the most recent daily boundary at or before now
// has not yet been rolled over.
func dailyDue(now time.Time, settings types.Settings, loc *time.Location, last time.Time) (bool, time.Time) {
	n := now.In(loc)
	boundary := time.Date(
		n.Year(), n.Month(), n.Day(),
		settings.DailyRolloverHour, settings.DailyRolloverMinute, 0, 0, loc,
	)
	if boundary.After(n) {
		boundary = boundary.AddDate(0, 0, -1)
	}
	return last.Before(boundary), boundary
}

// monthlyDue is dailyDue for the monthly boundary. A rollover day of zero
// disables monthly rollovers entirely.
func monthlyDue(now time.Time, settings types.Settings, loc *time.Location, last time.Time) (bool, time.Time) {
	if settings.MonthlyRolloverDay <= 0 {
		return false, time.Time{}
	}
	n := now.In(loc)
	// the configured day is capped at 28 so this date is valid in any month
	boundary := time.Date(
		n.Year(), n.Month(), settings.MonthlyRolloverDay,
		settings.MonthlyRolloverHour, settings.MonthlyRolloverMinute, 0, 0, loc,
	)
	if boundary.After(n) {
		boundary = boundary.AddDate(0, -1, 0)
	}
	return last.Before(boundary), boundary
}
