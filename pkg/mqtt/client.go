package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/autopeer-io/plantd/pkg/log"
	"github.com/autopeer-io/plantd/pkg/mqtt/topic"
)

var _ Client = (*pahoClient)(nil)

type pahoClient struct {
	cfg    *ClientConfig
	cm     *autopaho.ConnectionManager
	logger log.Logger

	// ctx is handed to message handlers; it is cancelled when the client stops.
	ctx context.Context

	connected atomic.Bool

	// subscriptions holds the registered handlers keyed by topic filter.
	subscriptions sync.Map
}

type subscriptionEntry struct {
	filter  string
	qos     int
	handler MessageHandler
}

// NewClient creates a new MQTT v5 client backed by autopaho.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt config is required")
	}

	setDefaultConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &pahoClient{
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    context.Background(),
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL) // Already validated
	c.ctx = ctx

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              c.cfg.Reconnect.Delay,
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg: &tls.Config{
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		},
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.route,
			},
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: c.onConnectError,
	}

	if c.cfg.Debug {
		pahoCfg.Debug = log.NewPahoLogger(c.logger.WithName("autopaho"), false)
		pahoCfg.PahoDebug = log.NewPahoLogger(c.logger.WithName("paho"), false)
	}

	c.logger.Info("Starting MQTT client", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID)

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return err
	}
	c.cm = cm
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		c.logger.Warn("MQTT disconnect did not complete cleanly", "error", err)
	}
	c.setConnected(false)
	c.logger.Info("MQTT client disconnected")
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if c.cm == nil || !c.connected.Load() {
		return ErrNotConnected
	}

	// For QoS 1 this returns once the broker has sent PUBACK.
	if _, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (c *pahoClient) Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return fmt.Errorf("client not started")
	}

	c.subscriptions.Store(filter, subscriptionEntry{
		filter:  filter,
		qos:     qos,
		handler: handler,
	})

	// While disconnected, onConnectionUp sends the SUBSCRIBE packet.
	if !c.connected.Load() {
		c.logger.Info("Subscription registered, pending connection", "filter", filter)
		return nil
	}

	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: filter, QoS: byte(qos)},
		},
	}); err != nil {
		return fmt.Errorf("failed to send subscription packet: %w", err)
	}

	c.logger.Info("Subscribed to topic", "filter", filter)
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, filter string) error {
	if c.cm == nil {
		return fmt.Errorf("client not started")
	}

	c.subscriptions.Delete(filter)

	if !c.connected.Load() {
		return nil
	}

	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{
		Topics: []string{filter},
	})
	return err
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return fmt.Errorf("client not started")
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

func (c *pahoClient) setConnected(up bool) {
	if c.connected.Swap(up) == up {
		return
	}
	if c.cfg.OnConnectionChange != nil {
		c.cfg.OnConnectionChange(up)
	}
}

// onConnectionUp is called when the connection is established or re-established.
func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.logger.Info("MQTT connection established")

	// Raise the flag first so a concurrent Subscribe sends its own packet
	// instead of relying on the range below.
	c.setConnected(true)

	var opts []paho.SubscribeOptions
	c.subscriptions.Range(func(_, value any) bool {
		entry := value.(subscriptionEntry)
		opts = append(opts, paho.SubscribeOptions{Topic: entry.filter, QoS: byte(entry.qos)})
		return true
	})

	if len(opts) > 0 {
		if _, err := cm.Subscribe(c.ctx, &paho.Subscribe{Subscriptions: opts}); err != nil {
			c.logger.Error(err, "Failed to re-subscribe", "filters", len(opts))
		} else {
			c.logger.Info("Re-subscribed", "filters", len(opts))
		}
	}
}

func (c *pahoClient) onConnectError(err error) {
	c.setConnected(false)
	c.logger.Warn("MQTT connection attempt failed, retrying", "error", err)
}

func (c *pahoClient) onClientError(err error) {
	c.setConnected(false)
	c.logger.Error(err, "MQTT client error, connection lost")
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	c.setConnected(false)
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	c.logger.Warn("MQTT server requested disconnect", "code", d.ReasonCode, "reason", reason)
}

// route dispatches an inbound publish to every matching registration.
// Handlers run inline so per-topic arrival order is kept.
func (c *pahoClient) route(p paho.PublishReceived) (bool, error) {
	matched := false
	c.subscriptions.Range(func(_, value any) bool {
		entry := value.(subscriptionEntry)
		if topic.Match(entry.filter, p.Packet.Topic) {
			entry.handler(c.ctx, p.Packet.Topic, p.Packet.Payload)
			matched = true
		}
		return true
	})

	if !matched {
		c.logger.Debug("Received message on unhandled topic", "topic", p.Packet.Topic)
	}

	return true, nil
}
