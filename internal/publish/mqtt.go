// Package publish forwards accepted fixes to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gnssfix/internal/gps"
)

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Retain   bool

	// ConnectTimeout bounds each connection attempt. Defaults to 5s.
	ConnectTimeout time.Duration
}

type MQTTStats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	LastError string `json:"last_error,omitempty"`
}

// MQTTPublisher publishes each fix as JSON. Publishing never blocks the
// caller on broker acknowledgements.
type MQTTPublisher struct {
	cfg    MQTTConfig
	client mqtt.Client
	log    *slog.Logger

	mu    sync.Mutex
	stats MQTTStats
}

func NewMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("mqtt topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gnssfix"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", cfg.Broker, "err", err)
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			logger.Info("mqtt connected", "broker", cfg.Broker, "topic", cfg.Topic)
		})

	return newMQTTPublisher(cfg, mqtt.NewClient(opts), logger), nil
}

func newMQTTPublisher(cfg MQTTConfig, client mqtt.Client, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTPublisher{cfg: cfg, client: client, log: logger}
}

// Connect performs the initial broker connection. Later drops are handled by
// the client's auto-reconnect.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", p.cfg.Broker, err)
	}
	return nil
}

// HandleFix is a gps.FixHandler.
func (p *MQTTPublisher) HandleFix(fix gps.Fix) {
	payload, err := json.Marshal(fix)
	if err != nil {
		p.record(err)
		return
	}
	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, p.cfg.Retain, payload)
	select {
	case <-token.Done():
		p.record(token.Error())
	default:
		go func() {
			<-token.Done()
			p.record(token.Error())
		}()
	}
}

func (p *MQTTPublisher) record(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		p.stats.Published++
		return
	}
	p.stats.Failed++
	if msg := err.Error(); msg != p.stats.LastError {
		p.stats.LastError = msg
		p.log.Warn("mqtt publish failed", "topic", p.cfg.Topic, "err", err)
	}
}

func (p *MQTTPublisher) Stats() MQTTStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
