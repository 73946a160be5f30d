package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/autopeer-io/plantd/pkg/backoff"
	"github.com/autopeer-io/plantd/pkg/log"
)

// ClientConfig holds the configuration for creating a new MQTT Client.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// ConnectTimeout bounds each connection attempt. Default is 4s.
	ConnectTimeout time.Duration

	// SessionExpiry is the MQTT v5 session expiry interval in seconds.
	SessionExpiry uint32

	// CleanStart requests a clean session on the initial connection.
	CleanStart bool

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Reconnect controls the delay between connection attempts.
	// Default is 1s doubling up to 30s with 20% jitter.
	Reconnect backoff.Exponential

	// Debug routes autopaho and paho debug output into Logger.
	Debug bool

	// Logger receives client lifecycle logs. Defaults to log.Std().
	Logger log.Logger

	// OnConnectionChange, when set, is called on every connected/disconnected edge.
	OnConnectionChange func(connected bool)
}

func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 4 * time.Second
	}

	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}

	if cfg.Reconnect.Initial == 0 {
		cfg.Reconnect = backoff.Exponential{Initial: time.Second, Max: 30 * time.Second, Jitter: 0.2}
	}

	if cfg.Logger == nil {
		cfg.Logger = log.WithName("mqtt")
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "mqtt", "tcp", "mqtts", "ssl", "tls", "ws", "wss":
	default:
		return fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	if c.ClientID == "" {
		return errors.New("client id is required")
	}
	if c.Reconnect.Max > 0 && c.Reconnect.Max < c.Reconnect.Initial {
		return fmt.Errorf("reconnect max delay %s is below initial delay %s", c.Reconnect.Max, c.Reconnect.Initial)
	}
	return nil
}
