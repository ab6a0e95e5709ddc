package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallywatt/tallywatt/pkg/types"
)

func sampleSettings() types.Settings {
	return types.Settings{
		PriceMode:          types.PriceModeFixed,
		FixedDollarsPerKWH: 0.14,
		Currency:           "USD",
		EnergyDecimals:     3,
		CostDecimals:       2,
		TickMinutes:        5,
		MonthlyRolloverDay: 1,
		Location:           "America/Chicago",
		Devices: []types.DeviceConfig{
			{ID: "meterA", Kind: types.DeviceKindMetered, EnergyAttribute: "energy"},
		},
	}
}

func sampleState() types.LedgerState {
	price := 0.14
	return types.LedgerState{
		Devices: map[string]types.DeviceState{
			"meterA": {
				Kind:            types.DeviceKindMetered,
				LastReadingKWH:  123.456,
				HasReading:      true,
				LastObservation: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
				TodayKWH:        1.5,
				MonthKWH:        40.2,
			},
		},
		TodayCost:           0.21,
		MonthCost:           5.63,
		LastDollarsPerKWH:   &price,
		LastPriceObservedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		LastDailyRollover:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		LastMonthlyRollover: time.Date(2026, 3, 1, 0, 5, 0, 0, time.UTC),
	}
}

func testProvider(t *testing.T, db Database) {
	ctx := context.Background()

	t.Run("SettingsNotFound", func(t *testing.T) {
		_, _, err := db.GetSettings(ctx)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Settings", func(t *testing.T) {
		settings := sampleSettings()
		require.NoError(t, db.SetSettings(ctx, settings, types.CurrentSettingsVersion))

		got, version, err := db.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.CurrentSettingsVersion, version)
		assert.Equal(t, settings, got)
	})

	t.Run("LedgerStateNotFound", func(t *testing.T) {
		_, _, err := db.LoadLedgerState(ctx)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("LedgerState", func(t *testing.T) {
		state := sampleState()
		require.NoError(t, db.SaveLedgerState(ctx, state, types.CurrentLedgerStateVersion))

		got, version, err := db.LoadLedgerState(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.CurrentLedgerStateVersion, version)
		assert.Equal(t, state, got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		settings := sampleSettings()
		settings.FixedDollarsPerKWH = 0.18
		require.NoError(t, db.SetSettings(ctx, settings, types.CurrentSettingsVersion))

		got, _, err := db.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0.18, got.FixedDollarsPerKWH)
	})
}

func TestMemoryProvider(t *testing.T) {
	testProvider(t, NewMemoryProvider())
}

func TestFirestoreProvider(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &FirestoreProvider{
		projectID:  "test-project-id",
		database:   randDB,
		collection: "tallywatt",
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	testProvider(t, f)
}
