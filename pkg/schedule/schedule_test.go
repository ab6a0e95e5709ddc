package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tallywatt/tallywatt/pkg/types"
)

type fakeEngine struct {
	settings    types.Settings
	now         func() time.Time
	lastDaily   time.Time
	lastMonthly time.Time
	calls       []string
}

func (e *fakeEngine) Settings() types.Settings { return e.settings }
func (e *fakeEngine) OnTick(context.Context)   { e.calls = append(e.calls, "tick") }
func (e *fakeEngine) OnDailyRollover(context.Context) {
	e.calls = append(e.calls, "daily")
	e.lastDaily = e.now()
}
func (e *fakeEngine) OnMonthlyRollover(context.Context) {
	e.calls = append(e.calls, "monthly")
	e.lastMonthly = e.now()
}
func (e *fakeEngine) LastDailyRollover() time.Time   { return e.lastDaily }
func (e *fakeEngine) LastMonthlyRollover() time.Time { return e.lastMonthly }

func newTestDriver(settings types.Settings, start time.Time) (*Driver, *fakeEngine, *time.Time) {
	now := start
	engine := &fakeEngine{
		settings: settings,
		now:      func() time.Time { return now },
		// marks start just after the previous boundaries so nothing is
		// overdue at construction
		lastDaily:   start,
		lastMonthly: start,
	}
	d := New(engine)
	d.now = engine.now
	return d, engine, &now
}

func scheduleSettings() types.Settings {
	return types.Settings{
		TickMinutes:           5,
		DailyRolloverHour:     0,
		DailyRolloverMinute:   0,
		MonthlyRolloverDay:    1,
		MonthlyRolloverHour:   0,
		MonthlyRolloverMinute: 5,
		Location:              "UTC",
	}
}

func TestTickCadence(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d, engine, now := newTestDriver(scheduleSettings(), start)
	ctx := context.Background()

	// the first step always ticks, then only after the cadence elapses
	d.Step(ctx)
	assert.Equal(t, []string{"tick"}, engine.calls)

	for i := 0; i < 9; i++ {
		*now = now.Add(30 * time.Second)
		d.Step(ctx)
	}
	assert.Equal(t, []string{"tick"}, engine.calls, "no tick before the cadence elapses")

	*now = now.Add(30 * time.Second)
	d.Step(ctx)
	assert.Equal(t, []string{"tick", "tick"}, engine.calls)
}

func TestTickDisabled(t *testing.T) {
	settings := scheduleSettings()
	settings.TickMinutes = 0
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d, engine, now := newTestDriver(settings, start)
	ctx := context.Background()

	d.Step(ctx)
	*now = now.Add(time.Hour)
	d.Step(ctx)
	assert.Empty(t, engine.calls)
}

func TestDailyRolloverBeforeTick(t *testing.T) {
	start := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	d, engine, now := newTestDriver(scheduleSettings(), start)
	ctx := context.Background()

	d.Step(ctx)
	engine.calls = nil

	// crossing midnight: the rollover must run before the tick so the
	// boundary-straddling accrual lands in the new day
	*now = time.Date(2026, 3, 11, 0, 0, 10, 0, time.UTC)
	d.Step(ctx)
	assert.Equal(t, []string{"daily", "tick"}, engine.calls)

	// the mark advanced, so the next wake does not fire again
	engine.calls = nil
	*now = now.Add(30 * time.Second)
	d.Step(ctx)
	assert.Empty(t, engine.calls)
}

func TestMissedRolloverRunsLate(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d, engine, now := newTestDriver(scheduleSettings(), start)
	ctx := context.Background()

	// the process was down from noon until 09:00 two days later: both the
	// daily boundary and nothing else fire exactly once at the next wake
	*now = time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	d.Step(ctx)
	assert.Equal(t, []string{"daily", "tick"}, engine.calls)
}

func TestMonthlyRollover(t *testing.T) {
	start := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)
	d, engine, now := newTestDriver(scheduleSettings(), start)
	ctx := context.Background()

	// crossing into April 1st 00:05 fires daily then monthly then tick
	*now = time.Date(2026, 4, 1, 0, 6, 0, 0, time.UTC)
	d.Step(ctx)
	assert.Equal(t, []string{"daily", "monthly", "tick"}, engine.calls)

	// between midnight and 00:05 only the daily boundary has passed
	engine.calls = nil
	engine.lastDaily = time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)
	engine.lastMonthly = time.Date(2026, 4, 1, 0, 6, 0, 0, time.UTC)
	*now = time.Date(2026, 5, 1, 0, 2, 0, 0, time.UTC)
	d.Step(ctx)
	assert.Equal(t, []string{"daily", "tick"}, engine.calls)
}

func TestMonthlyDisabled(t *testing.T) {
	settings := scheduleSettings()
	settings.MonthlyRolloverDay = 0
	start := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)
	d, engine, now := newTestDriver(settings, start)
	ctx := context.Background()

	*now = time.Date(2026, 4, 1, 1, 0, 0, 0, time.UTC)
	d.Step(ctx)
	assert.Equal(t, []string{"daily", "tick"}, engine.calls)
}

func TestBoundaryMath(t *testing.T) {
	settings := scheduleSettings()
	loc := time.UTC

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)
	due, boundary := dailyDue(now, settings, loc, time.Date(2026, 3, 10, 0, 0, 1, 0, loc))
	assert.False(t, due)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, loc), boundary)

	due, _ = dailyDue(now, settings, loc, time.Date(2026, 3, 9, 12, 0, 0, 0, loc))
	assert.True(t, due)

	// before today's boundary time, yesterday's boundary is the reference
	settings.DailyRolloverHour = 14
	due, boundary = dailyDue(now, settings, loc, time.Date(2026, 3, 9, 14, 0, 1, 0, loc))
	assert.False(t, due)
	assert.Equal(t, time.Date(2026, 3, 9, 14, 0, 0, 0, loc), boundary)
}
