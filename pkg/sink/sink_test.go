package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallywatt/tallywatt/pkg/types"
)

type recorder struct {
	published []types.Totals
}

func (r *recorder) Publish(_ context.Context, totals types.Totals) {
	r.published = append(r.published, totals)
}

type fakePublisher struct {
	topic   string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.topic = topic
	f.payload = payload
	return f.err
}

func TestMultiFanOut(t *testing.T) {
	a := &recorder{}
	b := &recorder{}
	m := Multi{a, b, Log{}}

	totals := types.Totals{Timestamp: time.Now(), TodayKWH: 1.5}
	m.Publish(context.Background(), totals)

	require.Len(t, a.published, 1)
	require.Len(t, b.published, 1)
	assert.Equal(t, totals, a.published[0])
}

func TestMQTTSink(t *testing.T) {
	pub := &fakePublisher{}
	s := NewMQTT(pub, "tallywatt/totals")

	price := 0.15
	s.Publish(context.Background(), types.Totals{
		TodayKWH:      1.234,
		TodayCost:     0.19,
		DollarsPerKWH: &price,
		Currency:      "USD",
	})

	assert.Equal(t, "tallywatt/totals", pub.topic)
	var got types.Totals
	require.NoError(t, json.Unmarshal(pub.payload, &got))
	assert.Equal(t, 1.234, got.TodayKWH)
	require.NotNil(t, got.DollarsPerKWH)
	assert.Equal(t, 0.15, *got.DollarsPerKWH)

	// publish failures must be absorbed
	pub.err = errors.New("broker gone")
	assert.NotPanics(t, func() {
		s.Publish(context.Background(), types.Totals{})
	})
}
