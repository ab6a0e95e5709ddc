package sink

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/types"
)

// Publisher publishes a payload to a topic. The MQTT bridge implements this.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// MQTT is a Sink publishing each snapshot as JSON to a fixed topic.
type MQTT struct {
	publisher Publisher
	topic     string
}

// NewMQTT creates an MQTT snapshot sink.
func NewMQTT(publisher Publisher, topic string) *MQTT {
	return &MQTT{publisher: publisher, topic: topic}
}

// Publish implements Sink. Failures are logged and dropped.
func (m *MQTT) Publish(ctx context.Context, totals types.Totals) {
	payload, err := json.Marshal(totals)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to marshal totals", slog.Any("error", err))
		return
	}
	if err := m.publisher.Publish(m.topic, payload); err != nil {
		log.Ctx(ctx).WarnContext(
			ctx,
			"failed to publish totals to mqtt",
			slog.String("topic", m.topic),
			slog.Any("error", err),
		)
	}
}
