package reads

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Reader returns the most recently observed numeric value of a device
// attribute. The boolean is false when the device or attribute has never been
// observed (or the last observation was not numeric); absence is never an
// error.
type Reader interface {
	ReadCurrent(ctx context.Context, deviceID, attribute string) (float64, bool)
}

// Number parses a raw attribute value into a float64. It is the single decode
// boundary for inbound telemetry: everything past it operates on well-defined
// numbers. Returns false for anything that is not a finite number.
func Number(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Switch parses a raw switch attribute value. Returns false in the second
// value for anything other than "on"/"off" (or common numeric equivalents).
func Switch(raw string) (on bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1":
		return true, true
	case "off", "false", "0":
		return false, true
	}
	return false, false
}

// Memory is an in-memory last-value store implementing Reader. The MQTT
// bridge retains the latest numeric value per (device, attribute) here so
// tick-driven accrual can re-read devices without touching the transport.
type Memory struct {
	mu     sync.RWMutex
	values map[string]float64
}

// NewMemory creates an empty last-value store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]float64)}
}

func key(deviceID, attribute string) string {
	return deviceID + "\x00" + attribute
}

// Set records the latest value for a device attribute.
func (m *Memory) Set(deviceID, attribute string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key(deviceID, attribute)] = value
}

// Delete drops the retained value for a device attribute.
func (m *Memory) Delete(deviceID, attribute string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key(deviceID, attribute))
}

// ReadCurrent implements Reader.
func (m *Memory) ReadCurrent(_ context.Context, deviceID, attribute string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key(deviceID, attribute)]
	return v, ok
}

var _ Reader = (*Memory)(nil)
