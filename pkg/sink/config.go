package sink

import (
	"strings"

	"github.com/levenlabs/go-lflag"
)

// Sinks is the flag-assembled fan-out plus the closers behind it.
type Sinks struct {
	Multi
	kafka *Kafka
}

// Close flushes any buffered sink output.
func (s *Sinks) Close() error {
	if s.kafka != nil {
		return s.kafka.Close()
	}
	return nil
}

// Configured assembles the snapshot fan-out based on flags. The log sink is
// always present; MQTT and Kafka join when configured.
func Configured(publisher Publisher) *Sinks {
	mqttTopic := lflag.String("totals-mqtt-topic", "tallywatt/totals", "MQTT topic for totals snapshots (empty disables)")
	kafkaBrokers := lflag.String("totals-kafka-brokers", "", "comma-delimited Kafka brokers for totals snapshots (empty disables)")
	kafkaTopic := lflag.String("totals-kafka-topic", "tallywatt.totals", "Kafka topic for totals snapshots")

	s := &Sinks{}
	lflag.Do(func() {
		s.Multi = append(s.Multi, Log{})
		if *mqttTopic != "" {
			s.Multi = append(s.Multi, NewMQTT(publisher, *mqttTopic))
		}
		if *kafkaBrokers != "" {
			brokers := strings.Split(*kafkaBrokers, ",")
			for i, b := range brokers {
				brokers[i] = strings.TrimSpace(b)
			}
			s.kafka = NewKafka(brokers, *kafkaTopic)
			s.Multi = append(s.Multi, s.kafka)
		}
	})
	return s
}
