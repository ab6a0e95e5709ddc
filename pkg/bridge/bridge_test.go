package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallywatt/tallywatt/pkg/reads"
)

type recordedEvent struct {
	deviceID  string
	attribute string
	value     string
	ts        time.Time
}

type recordingHandler struct {
	events []recordedEvent
}

func (h *recordingHandler) HandleEvent(_ context.Context, deviceID, attribute, value string, ts time.Time) {
	h.events = append(h.events, recordedEvent{deviceID, attribute, value, ts})
}

func newTestBridge() (*Bridge, *recordingHandler, *reads.Memory) {
	mem := reads.NewMemory()
	handler := &recordingHandler{}
	b := &Bridge{
		memory: mem,
		prefix: "tele",
		now:    func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) },
	}
	b.SetHandler(handler)
	return b, handler, mem
}

func TestParseTopic(t *testing.T) {
	deviceID, attribute, ok := parseTopic("tele", "tele/meterA/energy")
	require.True(t, ok)
	assert.Equal(t, "meterA", deviceID)
	assert.Equal(t, "energy", attribute)

	_, _, ok = parseTopic("tele", "other/meterA/energy")
	assert.False(t, ok)

	_, _, ok = parseTopic("tele", "tele/meterA")
	assert.False(t, ok)

	_, _, ok = parseTopic("tele", "tele/meterA/energy/extra")
	assert.False(t, ok)

	_, _, ok = parseTopic("tele", "tele//energy")
	assert.False(t, ok)

	// a device named like the prefix is still just a device
	deviceID, attribute, ok = parseTopic("tele", "tele/tele/energy")
	require.True(t, ok)
	assert.Equal(t, "tele", deviceID)
	assert.Equal(t, "energy", attribute)
}

func TestDispatchRetainsAndForwards(t *testing.T) {
	b, handler, mem := newTestBridge()
	ctx := context.Background()

	b.dispatch(ctx, "tele/meterA/energy", []byte("10.5"))

	v, ok := mem.ReadCurrent(ctx, "meterA", "energy")
	require.True(t, ok)
	assert.Equal(t, 10.5, v)

	require.Len(t, handler.events, 1)
	assert.Equal(t, "meterA", handler.events[0].deviceID)
	assert.Equal(t, "energy", handler.events[0].attribute)
	assert.Equal(t, "10.5", handler.events[0].value)
	assert.Equal(t, b.now(), handler.events[0].ts)
}

func TestDispatchNonNumericForwardsWithoutRetaining(t *testing.T) {
	b, handler, mem := newTestBridge()
	ctx := context.Background()

	// switch states are not numbers but are still events
	b.dispatch(ctx, "tele/bulbB/switch", []byte("on"))

	_, ok := mem.ReadCurrent(ctx, "bulbB", "switch")
	assert.False(t, ok)
	require.Len(t, handler.events, 1)
	assert.Equal(t, "on", handler.events[0].value)
}

func TestDispatchIgnoresForeignTopics(t *testing.T) {
	b, handler, _ := newTestBridge()
	ctx := context.Background()

	b.dispatch(ctx, "stat/meterA/energy", []byte("1"))
	b.dispatch(ctx, "tele/meterA/energy/total", []byte("1"))
	assert.Empty(t, handler.events)
}

func TestDispatchWithoutHandler(t *testing.T) {
	b, _, mem := newTestBridge()
	b.handler = nil
	ctx := context.Background()

	// the retained value still lands even with nobody consuming events
	b.dispatch(ctx, "tele/meterA/energy", []byte("3.3"))
	v, ok := mem.ReadCurrent(ctx, "meterA", "energy")
	require.True(t, ok)
	assert.Equal(t, 3.3, v)
}

func TestPublishBeforeConnect(t *testing.T) {
	b, _, _ := newTestBridge()
	assert.Error(t, b.Publish("tele/totals", []byte("{}")))
}
