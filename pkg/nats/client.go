// Package nats carries the plantd publish/subscribe contract over a NATS
// server. Topics keep their MQTT shape at the API and are translated to
// subjects on the wire, so device keys must not contain '.'.
package nats

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/autopeer-io/plantd/pkg/backoff"
	"github.com/autopeer-io/plantd/pkg/log"
	"github.com/autopeer-io/plantd/pkg/mqtt"
)

var _ mqtt.Client = (*Client)(nil)

// Config holds the connection settings for a NATS-backed client.
type Config struct {
	URL                string
	Name               string
	Username           string
	Password           string
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
	TLS                bool

	// Reconnect controls the delay between reconnect attempts.
	Reconnect backoff.Exponential

	Logger             log.Logger
	OnConnectionChange func(connected bool)
}

// Client implements mqtt.Client on top of a nats.Conn.
type Client struct {
	cfg    Config
	nc     *natsgo.Conn
	logger log.Logger
	ctx    context.Context

	connected atomic.Bool

	mu   sync.Mutex
	subs map[string]*natsgo.Subscription
}

// NewClient validates cfg and returns an unstarted client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.Name == "" {
		cfg.Name = "plantd"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 4 * time.Second
	}
	if cfg.Reconnect.Initial == 0 {
		cfg.Reconnect = backoff.Exponential{Initial: time.Second, Max: 30 * time.Second, Jitter: 0.2}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.WithName("nats")
	}

	return &Client{
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    context.Background(),
		subs:   make(map[string]*natsgo.Subscription),
	}, nil
}

func (c *Client) Start(ctx context.Context) error {
	c.ctx = ctx

	opts := []natsgo.Option{
		natsgo.Name(c.cfg.Name),
		natsgo.Timeout(c.cfg.ConnectTimeout),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.CustomReconnectDelay(c.cfg.Reconnect.Delay),
		natsgo.ConnectHandler(func(*natsgo.Conn) {
			c.logger.Info("NATS connection established")
			c.setConnected(true)
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			c.logger.Info("NATS connection re-established", "url", nc.ConnectedUrl())
			c.setConnected(true)
		}),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			c.setConnected(false)
			c.logger.Warn("NATS connection lost, retrying", "error", err)
		}),
		natsgo.ClosedHandler(func(*natsgo.Conn) {
			c.setConnected(false)
			c.logger.Info("NATS connection closed")
		}),
	}
	if c.cfg.Username != "" {
		opts = append(opts, natsgo.UserInfo(c.cfg.Username, c.cfg.Password))
	}
	if c.cfg.TLS {
		opts = append(opts, natsgo.Secure(&tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify}))
	}

	c.logger.Info("Starting NATS client", "url", c.cfg.URL, "name", c.cfg.Name)

	nc, err := natsgo.Connect(c.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.nc = nc
	if nc.IsConnected() {
		c.setConnected(true)
	}
	return nil
}

func (c *Client) Disconnect(ctx context.Context) {
	if c.nc == nil {
		return
	}
	if err := c.nc.Drain(); err != nil {
		c.logger.Warn("NATS drain failed, closing", "error", err)
		c.nc.Close()
	}
	c.setConnected(false)
}

func (c *Client) Publish(ctx context.Context, t string, _ int, _ bool, payload []byte) error {
	if c.nc == nil || !c.connected.Load() {
		return mqtt.ErrNotConnected
	}

	subject := toSubject(t)
	if err := c.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	// A flush round-trip confirms the server has the message.
	if err := c.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	return nil
}

func (c *Client) Subscribe(_ context.Context, filter string, _ int, handler mqtt.MessageHandler) error {
	if c.nc == nil {
		return fmt.Errorf("client not started")
	}

	group, plain := splitShare(filter)
	subject := toSubject(plain)
	cb := func(m *natsgo.Msg) {
		handler(c.ctx, fromSubject(m.Subject), m.Data)
	}

	var (
		sub *natsgo.Subscription
		err error
	)
	if group != "" {
		sub, err = c.nc.QueueSubscribe(subject, group, cb)
	} else {
		sub, err = c.nc.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[filter] = sub
	c.mu.Unlock()

	c.logger.Info("Subscribed to subject", "subject", subject, "group", group)
	return nil
}

func (c *Client) Unsubscribe(_ context.Context, filter string) error {
	c.mu.Lock()
	sub, ok := c.subs[filter]
	delete(c.subs, filter)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return sub.Unsubscribe()
}

func (c *Client) AwaitConnection(ctx context.Context) error {
	if c.nc == nil {
		return fmt.Errorf("client not started")
	}
	return wait.PollUntilContextCancel(ctx, 100*time.Millisecond, true, func(context.Context) (bool, error) {
		return c.connected.Load(), nil
	})
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) setConnected(up bool) {
	if c.connected.Swap(up) == up {
		return
	}
	if c.cfg.OnConnectionChange != nil {
		c.cfg.OnConnectionChange(up)
	}
}
