package options

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/plantd/pkg/backoff"
	"github.com/autopeer-io/plantd/pkg/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for the MQTT broker connection.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`
	Debug          bool          `json:"debug" mapstructure:"debug"`

	// Reconnect backoff bounds.
	ReconnectMin time.Duration `json:"reconnect-min" mapstructure:"reconnect-min"`
	ReconnectMax time.Duration `json:"reconnect-max" mapstructure:"reconnect-max"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:         "tcp://localhost:1883",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 4 * time.Second,
		SessionExpiry:  0,
		CleanStart:     true,
		ReconnectMin:   time.Second,
		ReconnectMax:   30 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error

	if o.Broker == "" {
		errs = append(errs, fmt.Errorf("--mqtt.broker must be set"))
	}
	if o.ReconnectMin <= 0 || o.ReconnectMax < o.ReconnectMin {
		errs = append(errs, fmt.Errorf("--mqtt.reconnect-min (%s) must be positive and not exceed --mqtt.reconnect-max (%s)",
			o.ReconnectMin, o.ReconnectMax))
	}
	if o.KeepAlive < time.Second || o.KeepAlive.Seconds() > 65535 {
		errs = append(errs, fmt.Errorf("--mqtt.keep-alive must be between 1s and 65535s"))
	}

	return errs
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Explicit client ID (defaults to plantd-<hostname>).")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT keep alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for each MQTT connection attempt.")
	fs.Uint32Var(&o.SessionExpiry, "mqtt.session-expiry", o.SessionExpiry, "MQTT session expiry interval in seconds.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Request a clean session on the initial connection.")
	fs.BoolVar(&o.Debug, "mqtt.debug", o.Debug, "Log autopaho and paho debug output.")
	fs.DurationVar(&o.ReconnectMin, "mqtt.reconnect-min", o.ReconnectMin, "Initial delay between reconnect attempts.")
	fs.DurationVar(&o.ReconnectMax, "mqtt.reconnect-max", o.ReconnectMax, "Upper bound for the reconnect delay.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")
}

// ToClientConfig converts the options into a pkg/mqtt client configuration.
func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	clientID := o.ClientID
	if clientID == "" {
		hostname, _ := os.Hostname()
		clientID = fmt.Sprintf("plantd-%s", hostname)
	}

	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           clientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
		Debug:              o.Debug,
		Reconnect:          backoff.Exponential{Initial: o.ReconnectMin, Max: o.ReconnectMax, Jitter: 0.2},
	}
}
