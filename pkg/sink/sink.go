package sink

import (
	"context"
	"log/slog"

	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/types"
)

// Sink receives totals snapshots. Publish is called after every event, tick
// and rollover, so implementations must be cheap and must absorb their own
// failures; a broken sink never stalls accrual.
type Sink interface {
	Publish(ctx context.Context, totals types.Totals)
}

// Multi fans a snapshot out to every sink in order.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(ctx context.Context, totals types.Totals) {
	for _, s := range m {
		s.Publish(ctx, totals)
	}
}

// Log is a Sink that logs each snapshot at debug level.
type Log struct{}

// Publish implements Sink.
func (Log) Publish(ctx context.Context, totals types.Totals) {
	attrs := []any{
		slog.Float64("todayKWH", totals.TodayKWH),
		slog.Float64("monthKWH", totals.MonthKWH),
		slog.Float64("todayCost", totals.TodayCost),
		slog.Float64("monthCost", totals.MonthCost),
		slog.Float64("watts", totals.Watts),
	}
	if totals.DollarsPerKWH != nil {
		attrs = append(attrs, slog.Float64("dollarsPerKWH", *totals.DollarsPerKWH))
	}
	log.Ctx(ctx).DebugContext(ctx, "totals snapshot", attrs...)
}
