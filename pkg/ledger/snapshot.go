package ledger

import (
	"context"
	"math"

	"github.com/tallywatt/tallywatt/pkg/types"
)

// Snapshot derives the presentable totals from the accumulated state. Costs
// come straight from the running scalars, never recomputed as energy times
// the current price; rounding is applied here and only here so accumulation
// never compounds rounding error. Snapshot has no side effects and is
// idempotent between state changes.
func (l *Ledger) Snapshot(ctx context.Context) types.Totals {
	// fresh resolve, for display only
	priceVal, havePrice := l.resolvePrice(ctx)

	l.mu.Lock()
	totals := types.Totals{
		Timestamp: l.now(),
		TodayCost: l.todayCost,
		MonthCost: l.monthCost,
		Currency:  l.settings.Currency,
	}
	for _, rec := range l.devices {
		totals.TodayKWH += rec.todayKWH
		totals.MonthKWH += rec.monthKWH
		if rec.cfg.Kind == types.DeviceKindEstimated {
			totals.Watts += rec.estWatts
		}
	}
	energyDecimals := l.settings.EnergyDecimals
	costDecimals := l.settings.CostDecimals
	l.mu.Unlock()

	totals.TodayKWH = roundHalfUp(totals.TodayKWH, energyDecimals)
	totals.MonthKWH = roundHalfUp(totals.MonthKWH, energyDecimals)
	totals.TodayCost = roundHalfUp(totals.TodayCost, costDecimals)
	totals.MonthCost = roundHalfUp(totals.MonthCost, costDecimals)
	totals.Watts = roundHalfUp(totals.Watts, 1)
	if havePrice {
		p := priceVal
		totals.DollarsPerKWH = &p
	}
	return totals
}

// roundHalfUp rounds to the given number of decimal places, halves away from
// zero. Accumulators are non-negative so this is plain round-half-up.
func roundHalfUp(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Floor(v*p+0.5) / p
}
