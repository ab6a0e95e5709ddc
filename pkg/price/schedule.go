package price

import (
	"context"
	"log/slog"
	"time"

	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/types"
)

// Schedule is a Source resolving the base price from configured time-of-use
// periods, evaluated in the schedule's location. The first matching period
// wins; outside every period the fallback price applies.
type Schedule struct {
	periods   []types.PricePeriod
	fallback  float64
	surcharge float64
	location  *time.Location

	// now is replaceable for tests.
	now func() time.Time
}

// NewSchedule creates a scheduled-tariff source. An unloadable location name
// falls back to the process zone. A negative surcharge is clamped to zero.
func NewSchedule(periods []types.PricePeriod, fallback, surcharge float64, location string) *Schedule {
	loc := time.Local
	switch location {
	case "", "Local":
	default:
		l, err := time.LoadLocation(location)
		if err != nil {
			log.Ctx(context.Background()).WarnContext(
				context.Background(),
				"unknown schedule location, using process zone",
				slog.String("location", location),
			)
		} else {
			loc = l
		}
	}
	return &Schedule{
		periods:   periods,
		fallback:  fallback,
		surcharge: clampSurcharge(surcharge),
		location:  loc,
		now:       time.Now,
	}
}

// Resolve implements Source. A scheduled price is always present.
func (s *Schedule) Resolve(context.Context) (float64, bool) {
	now := s.now().In(s.location)
	for _, p := range s.periods {
		if p.Contains(now) {
			return p.DollarsPerKWH + s.surcharge, true
		}
	}
	return s.fallback + s.surcharge, true
}
