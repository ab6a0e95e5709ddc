package types

import (
	"fmt"
	"time"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 3

// PriceMode selects how the effective electricity price is resolved.
type PriceMode string

const (
	// PriceModeFixed uses the configured constant price.
	PriceModeFixed PriceMode = "fixed"
	// PriceModeAttribute reads the price from an attribute of an external
	// device (e.g. a utility meter publishing the current tariff).
	PriceModeAttribute PriceMode = "attribute"
	// PriceModeSchedule resolves the price from configured time-of-use
	// periods, falling back to the fixed price outside every period.
	PriceModeSchedule PriceMode = "schedule"
)

// PricePeriod defines one time-of-use window of a scheduled tariff. Hours
// are half-open ([hourStart, hourEnd)) in the settings Location; an empty
// daysOfTheWeek matches every day.
type PricePeriod struct {
	HourStart     int            `json:"hourStart"`
	HourEnd       int            `json:"hourEnd"`
	DaysOfTheWeek []time.Weekday `json:"daysOfTheWeek,omitempty"`
	DollarsPerKWH float64        `json:"dollarsPerKWH"`
	Description   string         `json:"description,omitempty"`
}

// Contains checks if a time is within the period. The caller is responsible
// for converting t into the schedule's location first.
func (p PricePeriod) Contains(t time.Time) bool {
	if h := t.Hour(); h < p.HourStart || h >= p.HourEnd {
		return false
	}
	if len(p.DaysOfTheWeek) > 0 {
		var found bool
		dow := t.Weekday()
		for _, d := range p.DaysOfTheWeek {
			if d == dow {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Settings represents the configuration stored in the database.
// These are dynamic settings that can be changed without redeploying.
type Settings struct {
	// Devices tracked by the ledger. Removing a device here drops its record.
	Devices []DeviceConfig `json:"devices"`

	// Price resolution
	PriceMode          PriceMode `json:"priceMode"`
	FixedDollarsPerKWH float64   `json:"fixedDollarsPerKWH"`
	PriceDeviceID      string    `json:"priceDeviceID,omitempty"`
	PriceAttribute     string    `json:"priceAttribute,omitempty"`
	// PricePeriods is the time-of-use schedule for PriceModeSchedule. The
	// first matching period wins; FixedDollarsPerKWH covers the gaps.
	PricePeriods []PricePeriod `json:"pricePeriods,omitempty"`
	// SurchargeDollarsPerKWH is a flat per-kWh fee added on top of the base
	// price. Negative values are treated as zero.
	SurchargeDollarsPerKWH float64 `json:"surchargeDollarsPerKWH"`
	Currency               string  `json:"currency"`

	// Presentation precision, applied only at snapshot time.
	EnergyDecimals int `json:"energyDecimals"`
	CostDecimals   int `json:"costDecimals"`

	// Schedule
	// TickMinutes is the polling interval (1, 5 or 15).
	TickMinutes int `json:"tickMinutes"`
	// Daily rollover boundary (local time in Location).
	DailyRolloverHour   int `json:"dailyRolloverHour"`
	DailyRolloverMinute int `json:"dailyRolloverMinute"`
	// Monthly rollover boundary.
	MonthlyRolloverDay    int `json:"monthlyRolloverDay"`
	MonthlyRolloverHour   int `json:"monthlyRolloverHour"`
	MonthlyRolloverMinute int `json:"monthlyRolloverMinute"`
	// Location is the IANA timezone the rollover boundaries are evaluated in.
	Location string `json:"location"`
}

// Device returns the configuration for the given device ID.
func (s Settings) Device(id string) (DeviceConfig, bool) {
	for _, d := range s.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

// Validate checks the settings for values the ledger cannot operate with.
func (s Settings) Validate() error {
	switch s.PriceMode {
	case PriceModeFixed, PriceModeAttribute, PriceModeSchedule, "":
	default:
		return fmt.Errorf("unknown price mode: %s", s.PriceMode)
	}
	if s.PriceMode == PriceModeAttribute && (s.PriceDeviceID == "" || s.PriceAttribute == "") {
		return fmt.Errorf("price mode %s requires priceDeviceID and priceAttribute", PriceModeAttribute)
	}
	if s.FixedDollarsPerKWH < 0 {
		return fmt.Errorf("fixedDollarsPerKWH must not be negative, got %v", s.FixedDollarsPerKWH)
	}
	if s.PriceMode == PriceModeSchedule {
		if len(s.PricePeriods) == 0 {
			return fmt.Errorf("price mode %s requires at least one price period", PriceModeSchedule)
		}
		for i, p := range s.PricePeriods {
			if p.HourStart < 0 || p.HourEnd > 24 || p.HourStart >= p.HourEnd {
				return fmt.Errorf("price period %d has invalid hours %d-%d", i, p.HourStart, p.HourEnd)
			}
			if p.DollarsPerKWH < 0 {
				return fmt.Errorf("price period %d has negative price", i)
			}
		}
	}
	if s.EnergyDecimals < 0 || s.EnergyDecimals > 6 {
		return fmt.Errorf("energyDecimals must be 0-6, got %d", s.EnergyDecimals)
	}
	if s.CostDecimals < 0 || s.CostDecimals > 6 {
		return fmt.Errorf("costDecimals must be 0-6, got %d", s.CostDecimals)
	}
	switch s.TickMinutes {
	case 0, 1, 5, 15:
	default:
		return fmt.Errorf("tickMinutes must be 1, 5 or 15, got %d", s.TickMinutes)
	}
	if s.MonthlyRolloverDay < 0 || s.MonthlyRolloverDay > 28 {
		return fmt.Errorf("monthlyRolloverDay must be 0-28, got %d", s.MonthlyRolloverDay)
	}
	seen := make(map[string]struct{}, len(s.Devices))
	for _, d := range s.Devices {
		if d.ID == "" {
			return fmt.Errorf("device with empty id")
		}
		if _, ok := seen[d.ID]; ok {
			return fmt.Errorf("duplicate device id: %s", d.ID)
		}
		seen[d.ID] = struct{}{}
		switch d.Kind {
		case DeviceKindMetered, DeviceKindEstimated:
		default:
			return fmt.Errorf("device %s has unknown kind: %s", d.ID, d.Kind)
		}
		if d.StandbyWatts < 0 || d.MaxWatts < 0 {
			return fmt.Errorf("device %s has negative wattage", d.ID)
		}
	}
	return nil
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made,
// and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	// Loop through versions to apply migrations sequentially
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial defaults
			if s.PriceMode == "" {
				s.PriceMode = PriceModeFixed
				migrated = true
			}
			if s.Currency == "" {
				s.Currency = "USD"
				migrated = true
			}
			if s.TickMinutes == 0 {
				s.TickMinutes = 5
				migrated = true
			}
			if s.Location == "" {
				s.Location = "Local"
				migrated = true
			}
		case 2:
			// version 2: presentation precision
			if s.EnergyDecimals == 0 {
				s.EnergyDecimals = 3
				migrated = true
			}
			if s.CostDecimals == 0 {
				s.CostDecimals = 2
				migrated = true
			}
			// the monthly rollover runs a few minutes after midnight so any
			// late daily rollover settles first
			if s.MonthlyRolloverDay == 0 {
				s.MonthlyRolloverDay = 1
				s.MonthlyRolloverMinute = 5
				migrated = true
			}
		case 3:
			// version 3: per-device attribute names
			for i, d := range s.Devices {
				if d.Kind == DeviceKindMetered && d.EnergyAttribute == "" {
					s.Devices[i].EnergyAttribute = "energy"
					migrated = true
				}
				if d.Kind == DeviceKindEstimated && d.SwitchAttribute == "" {
					s.Devices[i].SwitchAttribute = "switch"
					migrated = true
				}
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}
