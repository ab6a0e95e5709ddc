// Package bridge connects the ledger to an MQTT broker. Inbound device
// telemetry arrives on `<prefix>/<deviceID>/<attribute>` topics; every
// message is retained in the last-value store for tick-time re-reads and
// forwarded to the ledger as an event. The bridge also publishes, so the
// totals sink can reuse the same connection.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/reads"
)

// Handler consumes inbound attribute events.
type Handler interface {
	HandleEvent(ctx context.Context, deviceID, attribute, value string, ts time.Time)
}

// Bridge is the MQTT ingress/egress for one broker connection.
type Bridge struct {
	memory *reads.Memory

	broker   string
	clientID string
	prefix   string
	username string
	password string

	// now is replaceable for tests.
	now func() time.Time

	mu      sync.RWMutex
	handler Handler
	client  mqtt.Client
}

// Configured sets up the bridge based on flags. SetHandler and Init must be
// called before messages flow.
func Configured(memory *reads.Memory) *Bridge {
	broker := lflag.String("mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	clientID := lflag.String("mqtt-client-id", "tallywatt", "MQTT client ID")
	prefix := lflag.String("mqtt-topic-prefix", "tele", "Topic prefix device telemetry arrives under")
	username := lflag.String("mqtt-username", "", "MQTT username (optional)")
	password := lflag.String("mqtt-password", "", "MQTT password (optional)")

	b := &Bridge{memory: memory, now: time.Now}
	lflag.Do(func() {
		b.broker = *broker
		b.clientID = *clientID
		b.prefix = strings.Trim(*prefix, "/")
		b.username = *username
		b.password = *password
	})
	return b
}

// SetHandler installs the event consumer. Must be called before Init.
func (b *Bridge) SetHandler(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Init connects to the broker and subscribes to the telemetry topics. The
// client reconnects and resubscribes on its own after broker restarts.
func (b *Bridge) Init(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.broker)
	opts.SetClientID(b.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	if b.username != "" {
		opts.SetUsername(b.username)
		opts.SetPassword(b.password)
	}
	filter := b.prefix + "/+/+"
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Ctx(ctx).InfoContext(ctx, "mqtt connected, subscribing", slog.String("filter", filter))
		if token := c.Subscribe(filter, 1, b.onMessage); token.Wait() && token.Error() != nil {
			log.Ctx(ctx).ErrorContext(
				ctx,
				"mqtt subscribe failed",
				slog.String("filter", filter),
				slog.Any("err", token.Error()),
			)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Ctx(ctx).WarnContext(ctx, "mqtt connection lost", slog.Any("err", err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to mqtt broker %s: %w", b.broker, token.Error())
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()
	return nil
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	b.dispatch(context.Background(), msg.Topic(), msg.Payload())
}

// dispatch routes one raw message: retain the numeric value for re-reads,
// then hand the event to the ledger.
func (b *Bridge) dispatch(ctx context.Context, topic string, payload []byte) {
	deviceID, attribute, ok := parseTopic(b.prefix, topic)
	if !ok {
		log.Ctx(ctx).DebugContext(ctx, "ignoring message off the topic convention", slog.String("topic", topic))
		return
	}
	value := string(payload)
	if v, numeric := reads.Number(value); numeric {
		b.memory.Set(deviceID, attribute, v)
	}

	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()
	if handler == nil {
		return
	}
	handler.HandleEvent(ctx, deviceID, attribute, value, b.now())
}

// parseTopic splits `<prefix>/<deviceID>/<attribute>`. Topics with a
// different prefix or extra levels are not telemetry.
func parseTopic(prefix, topic string) (deviceID, attribute string, ok bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Publish sends one payload to a topic, blocking until the broker acks. It
// satisfies the totals sink's publisher so outbound snapshots share the
// ingress connection.
func (b *Bridge) Publish(topic string, payload []byte) error {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := client.Publish(topic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker, letting in-flight work finish briefly.
func (b *Bridge) Close() {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}
