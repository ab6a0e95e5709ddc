package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/tallywatt/tallywatt/pkg/log"
)

// OnDailyRollover zeroes the today buckets. Baselines, power estimates and
// observation timestamps are untouched, so accrual picks up seamlessly in the
// new day. Energy straddling the boundary is attributed to whichever side its
// accrual settles on; nothing is reopened retroactively.
func (l *Ledger) OnDailyRollover(ctx context.Context) {
	now := l.now()

	l.mu.Lock()
	var droppedKWH, droppedCost float64
	for _, rec := range l.devices {
		droppedKWH += rec.todayKWH
		rec.todayKWH = 0
	}
	droppedCost = l.todayCost
	l.todayCost = 0
	l.lastDaily = now
	l.mu.Unlock()

	log.Ctx(ctx).InfoContext(
		ctx,
		"daily rollover",
		slog.Float64("closedKWH", droppedKWH),
		slog.Float64("closedCost", droppedCost),
	)
	l.publish(ctx)
}

// OnMonthlyRollover zeroes the month buckets, leaving today buckets alone.
func (l *Ledger) OnMonthlyRollover(ctx context.Context) {
	now := l.now()

	l.mu.Lock()
	var droppedKWH, droppedCost float64
	for _, rec := range l.devices {
		droppedKWH += rec.monthKWH
		rec.monthKWH = 0
	}
	droppedCost = l.monthCost
	l.monthCost = 0
	l.lastMonthly = now
	l.mu.Unlock()

	log.Ctx(ctx).InfoContext(
		ctx,
		"monthly rollover",
		slog.Float64("closedKWH", droppedKWH),
		slog.Float64("closedCost", droppedCost),
	)
	l.publish(ctx)
}

// LastDailyRollover returns when the today buckets were last zeroed.
func (l *Ledger) LastDailyRollover() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastDaily
}

// LastMonthlyRollover returns when the month buckets were last zeroed.
func (l *Ledger) LastMonthlyRollover() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastMonthly
}
