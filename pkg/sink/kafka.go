package sink

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/types"
)

// Kafka is a Sink publishing each snapshot as JSON to a Kafka topic, keyed by
// the snapshot timestamp so a compacted topic keeps the latest totals.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka creates a Kafka snapshot sink.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// Publish implements Sink. Failures are logged and dropped.
func (k *Kafka) Publish(ctx context.Context, totals types.Totals) {
	payload, err := json.Marshal(totals)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to marshal totals", slog.Any("error", err))
		return
	}
	// keep publishing short so a slow broker can't stall the caller
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := k.writer.WriteMessages(wctx, kafka.Message{
		Key:   []byte(totals.Timestamp.UTC().Format(time.RFC3339)),
		Value: payload,
	}); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to publish totals to kafka", slog.Any("error", err))
	}
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
