package options

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/plantd/pkg/backoff"
	"github.com/autopeer-io/plantd/pkg/nats"
)

var _ IOptions = (*NatsOptions)(nil)

// NatsOptions contains configuration for the NATS transport.
type NatsOptions struct {
	URL                string        `json:"url" mapstructure:"url"`
	Name               string        `json:"name" mapstructure:"name"`
	Username           string        `json:"username" mapstructure:"username"`
	Password           string        `json:"password" mapstructure:"password"`
	ConnectTimeout     time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	ReconnectMin       time.Duration `json:"reconnect-min" mapstructure:"reconnect-min"`
	ReconnectMax       time.Duration `json:"reconnect-max" mapstructure:"reconnect-max"`
	InsecureSkipVerify bool          `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

func NewNatsOptions() *NatsOptions {
	return &NatsOptions{
		URL:            "nats://localhost:4222",
		Name:           "plantd",
		ConnectTimeout: 4 * time.Second,
		ReconnectMin:   time.Second,
		ReconnectMax:   30 * time.Second,
	}
}

func (o *NatsOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if !strings.HasPrefix(o.URL, "nats://") && !strings.HasPrefix(o.URL, "tls://") {
		errs = append(errs, fmt.Errorf("--nats.url must use the nats:// or tls:// scheme, got %q", o.URL))
	}
	if o.ReconnectMin <= 0 || o.ReconnectMax < o.ReconnectMin {
		errs = append(errs, fmt.Errorf("--nats.reconnect-min (%s) must be positive and not exceed --nats.reconnect-max (%s)",
			o.ReconnectMin, o.ReconnectMax))
	}
	return errs
}

func (o *NatsOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.URL, "nats.url", o.URL, "The URL of the NATS server.")
	fs.StringVar(&o.Name, "nats.name", o.Name, "Connection name reported to the NATS server.")
	fs.StringVar(&o.Username, "nats.username", o.Username, "The username for NATS authentication.")
	fs.StringVar(&o.Password, "nats.password", o.Password, "The password for NATS authentication.")
	fs.DurationVar(&o.ConnectTimeout, "nats.connect-timeout", o.ConnectTimeout, "Timeout for each NATS connection attempt.")
	fs.DurationVar(&o.ReconnectMin, "nats.reconnect-min", o.ReconnectMin, "Initial delay between reconnect attempts.")
	fs.DurationVar(&o.ReconnectMax, "nats.reconnect-max", o.ReconnectMax, "Upper bound for the reconnect delay.")
	fs.BoolVar(&o.InsecureSkipVerify, "nats.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")
}

// ToConfig converts the options into a pkg/nats client configuration.
func (o *NatsOptions) ToConfig() nats.Config {
	return nats.Config{
		URL:                o.URL,
		Name:               o.Name,
		Username:           o.Username,
		Password:           o.Password,
		ConnectTimeout:     o.ConnectTimeout,
		TLS:                strings.HasPrefix(o.URL, "tls://"),
		InsecureSkipVerify: o.InsecureSkipVerify,
		Reconnect:          backoff.Exponential{Initial: o.ReconnectMin, Max: o.ReconnectMax, Jitter: 0.2},
	}
}
