package price

import (
	"context"
	"log/slog"

	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/reads"
	"github.com/tallywatt/tallywatt/pkg/types"
)

// Source resolves the currently-effective price of electricity.
type Source interface {
	// Resolve returns the effective $/kWh (base plus surcharge). The boolean
	// is false when no price is available; absence is the only error signal.
	Resolve(ctx context.Context) (float64, bool)
}

// Fixed is a Source returning a configured constant price.
type Fixed struct {
	dollarsPerKWH float64
	surcharge     float64
}

// NewFixed creates a fixed-price source. A negative surcharge is clamped to
// zero.
func NewFixed(dollarsPerKWH, surcharge float64) *Fixed {
	return &Fixed{dollarsPerKWH: dollarsPerKWH, surcharge: clampSurcharge(surcharge)}
}

// Resolve implements Source. A fixed price is always present.
func (f *Fixed) Resolve(context.Context) (float64, bool) {
	return f.dollarsPerKWH + f.surcharge, true
}

// Attribute is a Source reading the base price from a numeric attribute of an
// external device.
type Attribute struct {
	reader    reads.Reader
	deviceID  string
	attribute string
	surcharge float64
}

// NewAttribute creates an attribute-backed price source. A negative surcharge
// is clamped to zero.
func NewAttribute(reader reads.Reader, deviceID, attribute string, surcharge float64) *Attribute {
	return &Attribute{
		reader:    reader,
		deviceID:  deviceID,
		attribute: attribute,
		surcharge: clampSurcharge(surcharge),
	}
}

// Resolve implements Source. It returns false when the attribute has not been
// observed or carries a negative rate; the surcharge is only added when a
// base price is available.
func (a *Attribute) Resolve(ctx context.Context) (float64, bool) {
	base, ok := a.reader.ReadCurrent(ctx, a.deviceID, a.attribute)
	if !ok {
		log.Ctx(ctx).DebugContext(
			ctx,
			"price attribute unavailable",
			slog.String("deviceID", a.deviceID),
			slog.String("attribute", a.attribute),
		)
		return 0, false
	}
	if base < 0 {
		// cost accumulators only move forward, so a negative rate is treated
		// the same as no rate at all
		log.Ctx(ctx).WarnContext(
			ctx,
			"negative price attribute, treating as unavailable",
			slog.String("deviceID", a.deviceID),
			slog.Float64("dollarsPerKWH", base),
		)
		return 0, false
	}
	return base + a.surcharge, true
}

// FromSettings builds the Source described by the settings. The reader is
// only consulted for PriceModeAttribute.
func FromSettings(settings types.Settings, reader reads.Reader) Source {
	switch settings.PriceMode {
	case types.PriceModeAttribute:
		return NewAttribute(reader, settings.PriceDeviceID, settings.PriceAttribute, settings.SurchargeDollarsPerKWH)
	case types.PriceModeSchedule:
		return NewSchedule(settings.PricePeriods, settings.FixedDollarsPerKWH, settings.SurchargeDollarsPerKWH, settings.Location)
	}
	return NewFixed(settings.FixedDollarsPerKWH, settings.SurchargeDollarsPerKWH)
}

func clampSurcharge(s float64) float64 {
	if s < 0 {
		return 0
	}
	return s
}
