// Package mqtt publishes decoded sightings to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/scanner"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	quiesceMillis  = 250

	statusOnline  = "online"
	statusOffline = "offline"
)

// ErrNotConnected is returned when publishing before Start succeeded
var ErrNotConnected = errors.New("mqtt client not connected")

// Config holds MQTT publisher configuration
type Config struct {
	Enabled     bool
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	Retained    bool
}

// client is the part of paho.Client the publisher uses
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Publisher sends one retained state message per device
type Publisher struct {
	config    Config
	log       *logger.Logger
	newClient func(*paho.ClientOptions) client

	mu     sync.RWMutex
	client client
}

// New creates a new MQTT publisher
func New(config Config, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{
		config: config,
		log:    log.WithComponent("mqtt"),
		newClient: func(opts *paho.ClientOptions) client {
			return paho.NewClient(opts)
		},
	}
}

// Start connects to the broker. Reconnects after a lost connection are
// handled by the client.
func (p *Publisher) Start(ctx context.Context) error {
	if !p.config.Enabled {
		p.log.Info("MQTT publisher disabled")
		return nil
	}

	p.log.Info("Starting MQTT publisher",
		logger.String("broker", p.config.Broker),
		logger.String("client_id", p.config.ClientID))

	c := p.newClient(p.options())
	if err := wait(ctx, c.Connect(), connectTimeout); err != nil {
		return fmt.Errorf("connect to %s: %w", p.config.Broker, err)
	}

	p.mu.Lock()
	p.client = c
	p.mu.Unlock()

	if err := p.publish(p.statusTopic(), []byte(statusOnline), true); err != nil {
		p.log.Warn("Failed to publish online status", logger.Error(err))
	}
	return nil
}

func (p *Publisher) options() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(p.config.Broker).
		SetClientID(p.config.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetWill(p.statusTopic(), statusOffline, p.config.QoS, true).
		SetOnConnectHandler(func(paho.Client) {
			p.log.Info("Connected to MQTT broker", logger.String("broker", p.config.Broker))
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("MQTT connection lost", logger.Error(err))
		})
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}
	return opts
}

// Stop publishes the offline status and disconnects
func (p *Publisher) Stop() {
	if !p.config.Enabled {
		return
	}

	p.mu.Lock()
	c := p.client
	p.mu.Unlock()
	if c == nil {
		return
	}

	p.log.Info("Stopping MQTT publisher")
	if err := p.publish(p.statusTopic(), []byte(statusOffline), true); err != nil {
		p.log.Debug("Failed to publish offline status", logger.Error(err))
	}
	c.Disconnect(quiesceMillis)

	p.mu.Lock()
	p.client = nil
	p.mu.Unlock()
}

// PublishSighting publishes the device state to <prefix>/<address>/state
func (p *Publisher) PublishSighting(s scanner.Sighting) error {
	if !p.config.Enabled {
		return nil
	}

	payload, err := json.Marshal(StatePayload(s))
	if err != nil {
		return fmt.Errorf("serialize state: %w", err)
	}
	return p.publish(p.StateTopic(s.Address), payload, p.config.Retained)
}

// HandleSighting implements scanner.Sink
func (p *Publisher) HandleSighting(s scanner.Sighting) error {
	return p.PublishSighting(s)
}

// StatePayload is the JSON document published for a sighting
func StatePayload(s scanner.Sighting) map[string]any {
	state := s.Reading.Map()
	state["address"] = s.Address
	state["rssi"] = s.RSSI
	state["last_seen"] = s.SeenAt.UTC().Format(time.RFC3339)
	if s.Name != "" {
		state["name"] = s.Name
	}
	return state
}

// StateTopic returns the state topic for a device address
func (p *Publisher) StateTopic(address string) string {
	return p.formatTopic(topicSafe.Replace(scanner.NormalizeAddress(address)) + "/state")
}

func (p *Publisher) statusTopic() string {
	return p.formatTopic("scanner/status")
}

func (p *Publisher) publish(topic string, payload []byte, retained bool) error {
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()
	if c == nil || !c.IsConnected() {
		return ErrNotConnected
	}

	if err := wait(context.Background(), c.Publish(topic, p.config.QoS, retained, payload), publishTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.log.Debug("Published MQTT message",
		logger.String("topic", topic),
		logger.Int("payload_size", len(payload)))
	return nil
}

// wait blocks until the token completes, the timeout passes or ctx is done
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wildcards and level separators are not allowed inside a topic level
var topicSafe = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// formatTopic formats a topic with the configured prefix
func (p *Publisher) formatTopic(suffix string) string {
	prefix := strings.TrimSuffix(p.config.TopicPrefix, "/")
	if prefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s/%s", prefix, suffix)
}
