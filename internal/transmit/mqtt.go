package transmit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/gyaneshwarpardhi/sherox/internal/config"
	"github.com/gyaneshwarpardhi/sherox/internal/event"
)

// Publisher is the part of mqtt.Client the transmitter needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each event as JSON on <topic>/<source>.
type MQTT struct {
	pub     Publisher
	topic   string
	qos     byte
	timeout time.Duration
}

func NewMQTT(pub Publisher, cfg config.MQTTConf) *MQTT {
	to := cfg.Timeout
	if to == 0 {
		to = 5 * time.Second
	}
	return &MQTT{pub: pub, topic: cfg.Topic, qos: cfg.QoS, timeout: to}
}

// DialMQTT connects a client to the configured broker.
func DialMQTT(cfg config.MQTTConf) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	to := cfg.Timeout
	if to == 0 {
		to = 5 * time.Second
	}
	// With ConnectRetry the client keeps trying in the background, so a
	// slow broker is not fatal at startup.
	if token.WaitTimeout(to) && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Topic(src event.Source) string {
	return m.topic + "/" + string(src)
}

func (m *MQTT) Send(ctx context.Context, ev event.EmergencyEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return &DeliveryError{Transmitter: m.Name(), Permanent: true, Err: err}
	}
	token := m.pub.Publish(m.Topic(ev.Source), m.qos, false, payload)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return &DeliveryError{Transmitter: m.Name(), Err: errors.New("publish not acknowledged in time")}
	case <-ctx.Done():
		return &DeliveryError{Transmitter: m.Name(), Err: ctx.Err()}
	}
	if err := token.Error(); err != nil {
		return &DeliveryError{Transmitter: m.Name(), Err: err}
	}
	return nil
}
