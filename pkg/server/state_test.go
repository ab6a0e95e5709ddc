package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tallywatt/tallywatt/pkg/types"
)

func TestGetState(t *testing.T) {
	srv, l, _, _ := newTestServer(t)
	l.HandleEvent(context.Background(), "meterA", "energy", "10.0", timeAt(0))

	req := httptest.NewRequest("GET", "/api/state", nil)
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), `"lastReadingKWH":10`)
}

func TestImportState(t *testing.T) {
	srv, l, _, db := newTestServer(t)
	db.On("SaveLedgerState", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	state := types.LedgerState{
		Devices: map[string]types.DeviceState{
			"meterA": {
				Kind:            types.DeviceKindMetered,
				LastReadingKWH:  42.0,
				HasReading:      true,
				LastObservation: timeAt(0),
				TodayKWH:        1.25,
				MonthKWH:        30.5,
			},
		},
		TodayCost: 2.5,
		MonthCost: 61.0,
	}
	body, err := json.Marshal(state)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/state", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	got := l.ExportState()
	assert.Equal(t, 42.0, got.Devices["meterA"].LastReadingKWH)
	assert.Equal(t, 2.5, got.TodayCost)
	db.AssertCalled(t, "SaveLedgerState", mock.Anything, mock.Anything, mock.Anything)
}

func TestImportStateInvalidJSON(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/state", bytes.NewReader([]byte("[]")))
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}
