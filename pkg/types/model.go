package types

import "time"

// CurrentLedgerStateVersion is the current version of the serialized ledger
// state. Increment this value when the shape of LedgerState changes.
const CurrentLedgerStateVersion = 1

// DeviceKind classifies how a device's energy use is determined.
type DeviceKind string

const (
	// DeviceKindMetered devices report a cumulative energy counter directly.
	DeviceKindMetered DeviceKind = "metered"
	// DeviceKindEstimated devices report only switch state (and optionally a
	// dimming level); their power draw is inferred from configured wattage.
	DeviceKindEstimated DeviceKind = "estimated"
)

// DeviceConfig describes a single tracked device.
type DeviceConfig struct {
	ID   string     `json:"id"`
	Name string     `json:"name,omitempty"`
	Kind DeviceKind `json:"kind"`

	// Attribute names used on the wire for this device. Defaults are applied
	// by Settings migration: "energy", "switch", "level".
	EnergyAttribute string `json:"energyAttribute,omitempty"`
	SwitchAttribute string `json:"switchAttribute,omitempty"`
	// LevelAttribute is empty for devices without a dimming level.
	LevelAttribute string `json:"levelAttribute,omitempty"`

	// Estimated-device wattage curve.
	StandbyWatts   float64 `json:"standbyWatts,omitempty"`
	MaxWatts       float64 `json:"maxWatts,omitempty"`
	ScaleWithLevel bool    `json:"scaleWithLevel,omitempty"`
}

// DeviceState is the durable per-device record of the ledger.
type DeviceState struct {
	Kind DeviceKind `json:"kind"`

	// Metered: the last cumulative reading the delta baseline is computed from.
	LastReadingKWH float64 `json:"lastReadingKWH,omitempty"`
	HasReading     bool    `json:"hasReading,omitempty"`

	// Estimated: the power estimate in effect for the open interval plus the
	// observed switch/level state it was derived from.
	LastEstimatedWatts float64  `json:"lastEstimatedWatts,omitempty"`
	SwitchOn           bool     `json:"switchOn,omitempty"`
	Level              *float64 `json:"level,omitempty"`

	// LastObservation is the instant of the last accrual for this device.
	// It never moves backward.
	LastObservation time.Time `json:"lastObservation"`

	// Accumulated energy in the current day/month window.
	TodayKWH float64 `json:"todayKWH"`
	MonthKWH float64 `json:"monthKWH"`
}

// LedgerState is the full serializable state of a ledger, exported for
// persistence and restored on startup.
type LedgerState struct {
	Devices map[string]DeviceState `json:"devices"`

	// Running cost scalars, accumulated per-delta at the price in effect at
	// the time of each delta.
	TodayCost float64 `json:"todayCost"`
	MonthCost float64 `json:"monthCost"`

	// LastDollarsPerKWH is the cached effective price applied to estimated
	// intervals. Nil means no price was resolvable.
	LastDollarsPerKWH   *float64  `json:"lastDollarsPerKWH,omitempty"`
	LastPriceObservedAt time.Time `json:"lastPriceObservedAt,omitempty"`

	LastDailyRollover   time.Time `json:"lastDailyRollover,omitempty"`
	LastMonthlyRollover time.Time `json:"lastMonthlyRollover,omitempty"`
}

// Totals is a read-only, rounded view of the current accumulators suitable
// for publishing.
type Totals struct {
	Timestamp time.Time `json:"timestamp"`

	TodayKWH float64 `json:"todayKWH"`
	MonthKWH float64 `json:"monthKWH"`

	TodayCost float64 `json:"todayCost"`
	MonthCost float64 `json:"monthCost"`

	// DollarsPerKWH is the currently-effective price, nil when the price
	// source is unavailable.
	DollarsPerKWH *float64 `json:"dollarsPerKWH,omitempty"`

	// Watts is the summed instantaneous power estimate of all estimated
	// devices. Metered devices contribute nothing here since they report
	// energy, not power.
	Watts float64 `json:"watts"`

	Currency string `json:"currency"`
}
