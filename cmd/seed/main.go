// Command seed publishes a stream of fake device telemetry to an MQTT broker
// so a local engine has something to meter: a cumulative meter following a
// household load curve, an estimated lamp flipping state, and a time-of-use
// price attribute.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
	"github.com/tallywatt/tallywatt/pkg/log"
)

func main() {
	broker := lflag.String("mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	prefix := lflag.String("mqtt-topic-prefix", "tele", "Topic prefix to publish telemetry under")
	interval := lflag.Duration("seed-interval", 5*time.Second, "Delay between telemetry rounds")
	lflag.Configure()
	log.ConfigureDefault()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID("tallywatt-seed")
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to connect to mqtt", "error", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	publish := func(deviceID, attribute, value string) {
		topic := fmt.Sprintf("%s/%s/%s", *prefix, deviceID, attribute)
		if token := client.Publish(topic, 1, true, value); token.Wait() && token.Error() != nil {
			log.Ctx(ctx).WarnContext(ctx, "publish failed", "topic", topic, "error", token.Error())
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	meterKWH := 1000.0 + rng.Float64()*500
	lampOn := false

	log.Ctx(ctx).InfoContext(ctx, "seeding telemetry", "broker", *broker, "prefix", *prefix)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		hour := time.Now().Hour()

		// household load curve, kW
		loadKW := 0.8 + rng.Float64()*0.5
		if hour >= 7 && hour < 9 {
			loadKW += 2.0 // Breakfast
		} else if hour >= 18 && hour < 22 {
			loadKW += 3.0 // Evening activities
		}
		meterKWH += loadKW * interval.Hours()
		publish("meterA", "energy", fmt.Sprintf("%.3f", meterKWH))

		// TOU price shape with jitter
		basePrice := 0.08
		if hour >= 6 && hour < 9 {
			basePrice = 0.22 // Morning Peak
		} else if hour >= 10 && hour < 15 {
			basePrice = 0.05 // Mid-day Lull
		} else if hour >= 17 && hour < 21 {
			basePrice = 0.35 // Evening Peak
		} else if hour >= 21 {
			basePrice = 0.10 // Night
		}
		basePrice += (rng.Float64() * 0.02) - 0.01
		publish("utility", "rate", fmt.Sprintf("%.4f", basePrice))

		// the lamp mostly follows the evening
		wantOn := hour >= 18 || hour < 1 || rng.Float64() < 0.1
		if wantOn != lampOn {
			lampOn = wantOn
			if lampOn {
				publish("livingroom-lamp", "switch", "on")
				publish("livingroom-lamp", "level", fmt.Sprintf("%d", 40+rng.Intn(60)))
			} else {
				publish("livingroom-lamp", "switch", "off")
			}
		}
	}
}
