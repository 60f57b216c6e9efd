package mqttbridge

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// Config addresses the MQTT broker and names the topic prefix the
// bridge publishes under.
type Config struct {
	// Broker is a URL such as "mqtt://localhost:1883" or
	// "mqtts://broker.example.com:8883".
	Broker   string
	Username string
	Password string

	// TopicPrefix defaults to "muf" when empty; forwarded keys are
	// published at TopicPrefix/unit/id.
	TopicPrefix string

	// PublishLimitPerSecond caps outbound publishes; 0 or a negative
	// value selects the default of 200 per second.
	PublishLimitPerSecond int64
}

func (c Config) topicPrefix() string {
	if c.TopicPrefix == "" {
		return "muf"
	}
	return c.TopicPrefix
}

// Bridge forwards fabric state writes to MQTT as retained messages. It
// is safe for concurrent use once Start has returned.
type Bridge struct {
	cfg         Config
	instanceID  string
	logger      *slog.Logger
	cm          *autopaho.ConnectionManager
	rateLimiter *publishRateLimiter
}

// New creates a Bridge but does not connect. Call Start to begin the
// connection. A nil logger is replaced with slog.Default().
func New(cfg Config, instanceID string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.PublishLimitPerSecond
	if limit <= 0 {
		limit = 200
	}
	return &Bridge{
		cfg:         cfg,
		instanceID:  instanceID,
		logger:      logger,
		rateLimiter: newPublishRateLimiter(limit, time.Second, logger),
	}
}

func (b *Bridge) availabilityTopic() string {
	return b.cfg.topicPrefix() + "/bridge/availability"
}

// Topic renders the retained MQTT topic a forwarded unit/id pair is
// published under.
func (b *Bridge) Topic(unit, id string) string {
	return b.cfg.topicPrefix() + "/" + unit + "/" + id
}

// Start connects to the broker. It blocks until the first connection
// is up, ctx is cancelled, or 30 seconds elapse — autopaho keeps
// retrying in the background either way, matching the connwatch
// philosophy of never letting a slow dependency block startup.
func (b *Bridge) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(b.cfg.Broker)
	if err != nil {
		return fmt.Errorf("mqttbridge: parse broker URL: %w", err)
	}

	availTopic := b.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("mqttbridge connected", "broker", b.cfg.Broker)
			publishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := cm.Publish(publishCtx, &paho.Publish{
				Topic:   availTopic,
				Payload: []byte("online"),
				QoS:     1,
				Retain:  true,
			}); err != nil {
				b.logger.Warn("mqttbridge availability publish failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			b.logger.Warn("mqttbridge connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "muf-bridge-" + shortID(b.instanceID),
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqttbridge: connect: %w", err)
	}
	b.cm = cm

	go b.rateLimiter.start(ctx)

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		b.logger.Warn("mqttbridge initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop publishes an "offline" availability message and disconnects.
func (b *Bridge) Stop(ctx context.Context) error {
	if b.cm == nil {
		return nil
	}
	if _, err := b.cm.Publish(ctx, &paho.Publish{
		Topic:   b.availabilityTopic(),
		Payload: []byte("offline"),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		b.logger.Warn("mqttbridge availability publish failed", "error", err)
	}
	return b.cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is established or
// ctx expires. Useful for a connwatch health probe.
func (b *Bridge) AwaitConnection(ctx context.Context) error {
	if b.cm == nil {
		return fmt.Errorf("mqttbridge: not started")
	}
	return b.cm.AwaitConnection(ctx)
}

// Forward publishes payload as a retained message at Topic(unit, id).
// ForwardHandler wraps it as the state.Handler passed to
// Client.WatchState with status "keep".
func (b *Bridge) Forward(ctx context.Context, unit, id string, payload []byte) error {
	if b.cm == nil {
		return fmt.Errorf("mqttbridge: not started")
	}
	if !b.rateLimiter.allow() {
		b.logger.Debug("mqttbridge forward dropped by rate limiter", "unit", unit, "id", id)
		return nil
	}
	if _, err := b.cm.Publish(ctx, &paho.Publish{
		Topic:   b.Topic(unit, id),
		Payload: payload,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		return fmt.Errorf("mqttbridge: publish %s/%s: %w", unit, id, err)
	}
	return nil
}

// ForwardHandler adapts Bridge.Forward into a state.Handler for
// Client.WatchState(ctx, "*", "*", mqttbridge.ForwardHandler(b, ctx), "keep").
func ForwardHandler(b *Bridge, ctx context.Context) func(senderUnit, messageID string, payload []byte) {
	return func(senderUnit, messageID string, payload []byte) {
		if err := b.Forward(ctx, senderUnit, messageID, payload); err != nil {
			b.logger.Warn("mqttbridge forward failed", "unit", senderUnit, "id", messageID, "error", err)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
