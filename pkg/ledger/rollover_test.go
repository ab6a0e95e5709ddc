package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tallywatt/tallywatt/pkg/types"
)

func TestDailyRolloverIsolatesWindows(t *testing.T) {
	ctx := context.Background()
	l, _, _, clock := newTestLedger(t, testSettings(types.PriceModeFixed))

	l.HandleEvent(ctx, "meterA", "energy", "10.0", clock.Now())
	l.HandleEvent(ctx, "meterA", "energy", "11.0", clock.At(time.Minute))

	clock.Advance(12 * time.Hour)
	l.OnDailyRollover(ctx)

	state := l.ExportState()
	assert.Zero(t, state.Devices["meterA"].TodayKWH)
	assert.Zero(t, state.TodayCost)
	// the month window keeps the pre-rollover accrual
	assert.InDelta(t, 1.0, state.Devices["meterA"].MonthKWH, 1e-9)
	assert.InDelta(t, 2.0, state.MonthCost, 1e-9)
	assert.Equal(t, clock.Now(), l.LastDailyRollover())

	// accrual after the rollover lands only in the new day
	l.HandleEvent(ctx, "meterA", "energy", "11.5", clock.At(time.Minute))
	state = l.ExportState()
	assert.InDelta(t, 0.5, state.Devices["meterA"].TodayKWH, 1e-9)
	assert.InDelta(t, 1.5, state.Devices["meterA"].MonthKWH, 1e-9)
}

func TestMonthlyRolloverLeavesTodayAlone(t *testing.T) {
	ctx := context.Background()
	l, _, _, clock := newTestLedger(t, testSettings(types.PriceModeFixed))

	l.HandleEvent(ctx, "meterA", "energy", "10.0", clock.Now())
	l.HandleEvent(ctx, "meterA", "energy", "11.0", clock.At(time.Minute))

	l.OnMonthlyRollover(ctx)

	state := l.ExportState()
	assert.Zero(t, state.Devices["meterA"].MonthKWH)
	assert.Zero(t, state.MonthCost)
	assert.InDelta(t, 1.0, state.Devices["meterA"].TodayKWH, 1e-9)
	assert.InDelta(t, 2.0, state.TodayCost, 1e-9)
	assert.Equal(t, clock.Now(), l.LastMonthlyRollover())
}

func TestRolloverDoesNotDisturbBaselines(t *testing.T) {
	ctx := context.Background()
	l, _, _, clock := newTestLedger(t, testSettings(types.PriceModeFixed))

	l.OnTick(ctx)
	l.HandleEvent(ctx, "meterA", "energy", "10.0", clock.Now())
	l.HandleEvent(ctx, "bulbB", "switch", "on", clock.Now())

	clock.Advance(time.Hour)
	l.OnDailyRollover(ctx)
	l.OnMonthlyRollover(ctx)

	// the meter baseline and the bulb's open interval survive the rollover
	l.HandleEvent(ctx, "meterA", "energy", "10.2", clock.Now())
	clock.Advance(30 * time.Minute)
	l.OnTick(ctx)

	state := l.ExportState()
	assert.InDelta(t, 0.2, state.Devices["meterA"].TodayKWH, 1e-9)
	// bulbB: the hour before the rollover was still unsettled; it settles
	// into the new windows along with the half hour after
	assert.InDelta(t, 0.15, state.Devices["bulbB"].TodayKWH, 1e-9)
}

func TestRolloverPublishes(t *testing.T) {
	ctx := context.Background()
	l, _, snk, _ := newTestLedger(t, testSettings(types.PriceModeFixed))

	l.OnDailyRollover(ctx)
	l.OnMonthlyRollover(ctx)
	assert.Len(t, snk.published, 2)
}
