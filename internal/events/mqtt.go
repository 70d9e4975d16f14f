package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// DefaultTopic receives scan.recorded events when none is configured.
const DefaultTopic = "recycle/scans/recorded"

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// MQTTPublisher publishes events as JSON at QoS 1.
type MQTTPublisher struct {
	client         mqtt.Client
	topic          string
	publishTimeout time.Duration
	logger         *zap.Logger
}

// NewMQTTPublisher connects to the broker and returns a publisher.
func NewMQTTPublisher(cfg MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("events: mqtt broker not configured")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "recycle-points"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	log := logger.Named("mqtt")
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connected to mqtt broker", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("events: connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("events: connect to %s: %w", cfg.Broker, err)
	}

	return newMQTTPublisher(client, cfg.Topic, cfg.PublishTimeout, logger), nil
}

func newMQTTPublisher(client mqtt.Client, topic string, publishTimeout time.Duration, logger *zap.Logger) *MQTTPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &MQTTPublisher{client: client, topic: topic, publishTimeout: publishTimeout, logger: logger.Named("mqtt")}
}

// PublishScanRecorded implements Publisher.
func (p *MQTTPublisher) PublishScanRecorded(ctx context.Context, evt ScanRecorded) error {
	if !p.client.IsConnected() {
		return errors.New("events: not connected to mqtt broker")
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: encode scan.recorded: %w", err)
	}

	wait := p.publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
	}

	token := p.client.Publish(p.topic, 1, false, payload)
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("events: publish to %s: timeout", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("events: publish to %s: %w", p.topic, err)
	}
	p.logger.Debug("published scan.recorded", zap.String("scan_id", evt.ScanID), zap.String("topic", p.topic))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
