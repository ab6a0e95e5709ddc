package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/types"
)

// estimateWatts converts configured wattage plus observed switch/level state
// into an instantaneous power estimate. A missing level is treated as full
// level so an on-but-unreported dimmer is never under-estimated.
func estimateWatts(cfg types.DeviceConfig, on bool, level *float64) float64 {
	if !on {
		return cfg.StandbyWatts
	}
	if !cfg.ScaleWithLevel || cfg.LevelAttribute == "" || level == nil {
		return cfg.MaxWatts
	}
	pct := *level
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	return cfg.StandbyWatts + (cfg.MaxWatts-cfg.StandbyWatts)*pct/100
}

// accrueMeteredLocked folds a new cumulative reading into the buckets. The
// first reading for a device only establishes the baseline. A regressive
// reading is treated as a counter reset: the delta clamps to zero but the
// baseline still resyncs to the new reading so the next delta is computed
// from the latest true counter value.
func (l *Ledger) accrueMeteredLocked(ctx context.Context, rec *deviceRecord, kwh float64, ts time.Time, priceVal float64, havePrice bool) {
	if !rec.hasReading {
		rec.lastReadingKWH = kwh
		rec.hasReading = true
		rec.lastObs = maxTime(ts, rec.lastObs)
		return
	}

	delta := kwh - rec.lastReadingKWH
	if delta < 0 {
		log.Ctx(ctx).WarnContext(
			ctx,
			"meter counter reset, clamping delta",
			slog.String("deviceID", rec.cfg.ID),
			slog.Float64("previousKWH", rec.lastReadingKWH),
			slog.Float64("newKWH", kwh),
		)
		delta = 0
	}
	rec.lastReadingKWH = kwh
	rec.lastObs = maxTime(ts, rec.lastObs)

	rec.todayKWH += delta
	rec.monthKWH += delta
	if havePrice {
		l.todayCost += delta * priceVal
		l.monthCost += delta * priceVal
	}
}

// closeEstimatedLocked settles the open interval of an estimated device: the
// energy is the prior power estimate integrated over the elapsed time, priced
// at the cached price that was in effect when the interval started. With no
// cached price the energy still accrues but the cost does not.
func (l *Ledger) closeEstimatedLocked(ctx context.Context, deviceID string, rec *deviceRecord, ts time.Time) {
	if rec.lastObs.IsZero() {
		rec.lastObs = ts
		return
	}
	dt := ts.Sub(rec.lastObs)
	if dt <= 0 {
		// clock skew or a duplicate call within the same instant
		rec.lastObs = maxTime(ts, rec.lastObs)
		return
	}

	kwh := rec.estWatts * dt.Hours() / 1000
	rec.todayKWH += kwh
	rec.monthKWH += kwh
	if l.lastPrice != nil {
		l.todayCost += kwh * *l.lastPrice
		l.monthCost += kwh * *l.lastPrice
	} else if kwh > 0 {
		log.Ctx(ctx).DebugContext(
			ctx,
			"no price cached, energy accrued without cost",
			slog.String("deviceID", deviceID),
			slog.Float64("kwh", kwh),
		)
	}
	rec.lastObs = ts
}

// OnTick re-polls every tracked device so energy keeps accruing even when no
// event fires for a long interval. Estimated intervals are closed at the old
// cached price first, then the cache is refreshed with a fresh resolve for
// the intervals that start now.
func (l *Ledger) OnTick(ctx context.Context) {
	l.mu.Lock()
	settings := l.settings
	l.mu.Unlock()

	// live reads and the price resolve happen before the state lock
	readings := make(map[string]float64, len(settings.Devices))
	for _, cfg := range settings.Devices {
		if cfg.Kind != types.DeviceKindMetered {
			continue
		}
		v, ok := l.reader.ReadCurrent(ctx, cfg.ID, cfg.EnergyAttribute)
		if !ok {
			log.Ctx(ctx).DebugContext(
				ctx,
				"no live reading, skipping device this cycle",
				slog.String("deviceID", cfg.ID),
			)
			continue
		}
		readings[cfg.ID] = v
	}
	priceVal, havePrice := l.resolvePrice(ctx)
	now := l.now()

	l.mu.Lock()
	for _, cfg := range settings.Devices {
		rec := l.recordLocked(cfg, now)
		switch cfg.Kind {
		case types.DeviceKindEstimated:
			l.closeEstimatedLocked(ctx, cfg.ID, rec, now)
			rec.estWatts = estimateWatts(cfg, rec.on, rec.level)
		case types.DeviceKindMetered:
			if v, ok := readings[cfg.ID]; ok {
				l.accrueMeteredLocked(ctx, rec, v, now, priceVal, havePrice)
			}
		}
	}
	if havePrice {
		p := priceVal
		l.lastPrice = &p
	} else {
		l.lastPrice = nil
	}
	l.lastPriceAt = now
	l.mu.Unlock()

	l.publish(ctx)
}
