package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/types"
)

// ExportState serializes the full ledger state for persistence. The blob
// covers exactly what must survive a restart: per-device baselines, power
// estimates, observation timestamps and window buckets, plus the cost
// scalars, cached price and rollover marks.
func (l *Ledger) ExportState() types.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := types.LedgerState{
		Devices:             make(map[string]types.DeviceState, len(l.devices)),
		TodayCost:           l.todayCost,
		MonthCost:           l.monthCost,
		LastPriceObservedAt: l.lastPriceAt,
		LastDailyRollover:   l.lastDaily,
		LastMonthlyRollover: l.lastMonthly,
	}
	if l.lastPrice != nil {
		p := *l.lastPrice
		state.LastDollarsPerKWH = &p
	}
	for id, rec := range l.devices {
		ds := types.DeviceState{
			Kind:               rec.cfg.Kind,
			LastReadingKWH:     rec.lastReadingKWH,
			HasReading:         rec.hasReading,
			LastEstimatedWatts: rec.estWatts,
			SwitchOn:           rec.on,
			LastObservation:    rec.lastObs,
			TodayKWH:           rec.todayKWH,
			MonthKWH:           rec.monthKWH,
		}
		if rec.level != nil {
			lv := *rec.level
			ds.Level = &lv
		}
		state.Devices[id] = ds
	}
	return state
}

// ImportState restores previously exported state. Settings must already be
// applied: state for devices that are no longer configured is dropped, and a
// device whose kind changed since the export starts over.
func (l *Ledger) ImportState(ctx context.Context, state types.LedgerState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.settings.Devices == nil && len(state.Devices) > 0 {
		return fmt.Errorf("cannot import state before settings are applied")
	}

	l.todayCost = state.TodayCost
	l.monthCost = state.MonthCost
	l.lastPriceAt = state.LastPriceObservedAt
	l.lastDaily = state.LastDailyRollover
	l.lastMonthly = state.LastMonthlyRollover
	l.lastPrice = nil
	if state.LastDollarsPerKWH != nil {
		p := *state.LastDollarsPerKWH
		l.lastPrice = &p
	}

	l.devices = make(map[string]*deviceRecord, len(state.Devices))
	for id, ds := range state.Devices {
		cfg, ok := l.settings.Device(id)
		if !ok {
			log.Ctx(ctx).InfoContext(ctx, "dropping state for untracked device", slog.String("deviceID", id))
			continue
		}
		if cfg.Kind != ds.Kind {
			log.Ctx(ctx).InfoContext(
				ctx,
				"device kind changed since export, starting over",
				slog.String("deviceID", id),
			)
			continue
		}
		rec := &deviceRecord{
			cfg:            cfg,
			lastReadingKWH: ds.LastReadingKWH,
			hasReading:     ds.HasReading,
			on:             ds.SwitchOn,
			lastObs:        ds.LastObservation,
			todayKWH:       ds.TodayKWH,
			monthKWH:       ds.MonthKWH,
		}
		if ds.Level != nil {
			lv := *ds.Level
			rec.level = &lv
		}
		if cfg.Kind == types.DeviceKindEstimated {
			// re-derive the estimate from the restored switch/level state and
			// the current wattage curve rather than trusting the stored value
			rec.estWatts = estimateWatts(cfg, rec.on, rec.level)
		}
		l.devices[id] = rec
	}
	return nil
}
