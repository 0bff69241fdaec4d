package mqtt

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"

	"switch-relay/internal/metrics"
)

// Config holds the broker connection settings.
type Config struct {
	URL      string
	Username string
	Password string
	ClientID string
}

// Connect dials the broker, retrying with exponential backoff. The client
// disconnects itself when ctx is cancelled.
func Connect(ctx context.Context, cfg Config) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	var client paho.Client
	err := backoff.Retry(func() error {
		client = paho.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("[WARN] Failed to connect to MQTT broker: %v", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.Printf("[INFO] Connected to MQTT broker at %s", cfg.URL)

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		log.Println("[INFO] MQTT client disconnected")
	}()

	return client, nil
}

// Consumer subscribes to the switch event topic and feeds decoded events
// into the relay core.
type Consumer struct {
	client          paho.Client
	topic           string
	defaultDeviceID string
	handler         Handler
}

// NewConsumer creates a Consumer over an already connected client.
func NewConsumer(client paho.Client, topic, defaultDeviceID string, handler Handler) *Consumer {
	return &Consumer{
		client:          client,
		topic:           topic,
		defaultDeviceID: defaultDeviceID,
		handler:         handler,
	}
}

// Run subscribes and blocks until ctx is cancelled, then unsubscribes.
func (c *Consumer) Run(ctx context.Context) error {
	token := c.client.Subscribe(c.topic, 1, c.onMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to topic %s: %w", c.topic, token.Error())
	}
	log.Printf("[INFO] Subscribed to MQTT topic %s", c.topic)

	<-ctx.Done()

	unsub := c.client.Unsubscribe(c.topic)
	unsub.Wait()
	return nil
}

// onMessage decodes and records one event. Malformed payloads are logged
// and dropped; they never stop the subscription.
func (c *Consumer) onMessage(_ paho.Client, m paho.Message) {
	ev, err := DecodeEvent(m.Payload(), c.defaultDeviceID)
	if err != nil {
		log.Printf("[WARN] Dropping invalid payload on %s: %v", m.Topic(), err)
		return
	}

	metrics.EventReceived("mqtt")
	res, err := c.handler.RecordEvent(ev)
	if err != nil {
		log.Printf("[WARN] Event rejected for device %s: %v", ev.DeviceID, err)
		return
	}
	log.Printf("[INFO] Event device=%s switch=%d pressed=%v allPressed=%v action=%q",
		ev.DeviceID, ev.SwitchID, ev.Pressed, res.AllPressed, res.Action)
}
