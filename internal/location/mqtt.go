package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/lookout/internal/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesce        = 250 // ms granted to in-flight work on disconnect
)

// ErrMalformedFix is returned for MQTT payloads that are not a usable fix.
var ErrMalformedFix = errors.New("malformed location fix")

// fixPayload is the JSON document published on the fix topic.
type fixPayload struct {
	Latitude  *float64  `json:"lat"`
	Longitude *float64  `json:"lon"`
	Altitude  float64   `json:"alt"`
	Speed     float64   `json:"speed"`   // m/s
	Bearing   float64   `json:"bearing"` // degrees
	Timestamp time.Time `json:"timestamp"`
}

// MQTTSource subscribes to a topic carrying JSON fixes, for example from a
// GPS producer on another device.
type MQTTSource struct {
	broker   string
	topic    string
	clientID string
	log      *slog.Logger
}

// NewMQTTSource creates a source for topic on broker (e.g. "tcp://localhost:1883").
func NewMQTTSource(broker, topic, clientID string, log *slog.Logger) *MQTTSource {
	return &MQTTSource{broker: broker, topic: topic, clientID: clientID, log: log}
}

// Start connects to the broker and subscribes to the fix topic.
func (ms *MQTTSource) Start(ctx context.Context, callback Callback) (Subscription, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(ms.broker).
		SetClientID(ms.clientID).
		SetConnectTimeout(mqttConnectTimeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("%w: connect to %s: %w", ErrSensorUnavailable, ms.broker, token.Error())
	}
	ms.log.InfoContext(ctx, "Connected to MQTT broker", "broker", ms.broker)

	sub := newSubscription(ctx, func() error {
		token := client.Unsubscribe(ms.topic)
		token.Wait()
		client.Disconnect(mqttQuiesce)

		return token.Error()
	})

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		sample, err := decodeFix(msg.Payload())
		if err != nil {
			ms.log.WarnContext(ctx, "Dropping MQTT fix", "topic", msg.Topic(), "error", err)
			return
		}
		sub.deliver(callback, sample)
	}

	if token := client.Subscribe(ms.topic, 0, handler); token.Wait() && token.Error() != nil {
		client.Disconnect(mqttQuiesce)
		return nil, fmt.Errorf("%w: subscribe to %s: %w", ErrSensorUnavailable, ms.topic, token.Error())
	}
	ms.log.InfoContext(ctx, "Subscribed to MQTT topic", "topic", ms.topic)

	// paho delivers on its own goroutines; the subscription goroutine only waits for Stop.
	sub.run(func(ctx context.Context) { <-ctx.Done() })

	return sub, nil
}

func decodeFix(payload []byte) (models.LocationSample, error) {
	var fix fixPayload
	if err := json.Unmarshal(payload, &fix); err != nil {
		return models.LocationSample{}, fmt.Errorf("%w: %w", ErrMalformedFix, err)
	}

	if fix.Latitude == nil || fix.Longitude == nil {
		return models.LocationSample{}, fmt.Errorf("%w: missing coordinates", ErrMalformedFix)
	}
	if *fix.Latitude < -90 || *fix.Latitude > 90 || *fix.Longitude < -180 || *fix.Longitude > 180 {
		return models.LocationSample{}, fmt.Errorf("%w: coordinates out of range", ErrMalformedFix)
	}

	return models.LocationSample{
		Latitude:  *fix.Latitude,
		Longitude: *fix.Longitude,
		Altitude:  fix.Altitude,
		Speed:     fix.Speed,
		Bearing:   fix.Bearing,
		Timestamp: fix.Timestamp,
	}, nil
}
