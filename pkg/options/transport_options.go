package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*TransportOptions)(nil)

const (
	TransportMQTT = "mqtt"
	TransportNATS = "nats"
)

// TransportOptions selects the message bus and the shared topic layout.
type TransportOptions struct {
	// Driver is either "mqtt" or "nats".
	Driver string `json:"driver" mapstructure:"driver"`

	// TopicRoot is the namespace for device topics: {root}/{deviceKey}/{segment}.
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`

	// SharedGroup, when set, subscribes through a shared subscription (MQTT v5)
	// or queue group (NATS) so several replicas split the inbound load.
	SharedGroup string `json:"shared-group" mapstructure:"shared-group"`

	// QoS used for subscriptions and command publishes.
	QoS int `json:"qos" mapstructure:"qos"`
}

func NewTransportOptions() *TransportOptions {
	return &TransportOptions{
		Driver:    TransportMQTT,
		TopicRoot: "device",
		QoS:       1,
	}
}

func (o *TransportOptions) Validate() []error {
	var errs []error
	if o.Driver != TransportMQTT && o.Driver != TransportNATS {
		errs = append(errs, fmt.Errorf("--transport.driver must be %q or %q, got %q", TransportMQTT, TransportNATS, o.Driver))
	}
	if o.TopicRoot == "" {
		errs = append(errs, fmt.Errorf("--transport.topic-root must be set"))
	}
	if o.QoS < 0 || o.QoS > 2 {
		errs = append(errs, fmt.Errorf("--transport.qos must be 0, 1 or 2"))
	}
	return errs
}

func (o *TransportOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "transport.driver", o.Driver, "Message bus driver: mqtt or nats.")
	fs.StringVar(&o.TopicRoot, "transport.topic-root", o.TopicRoot, "Root namespace of device topics.")
	fs.StringVar(&o.SharedGroup, "transport.shared-group", o.SharedGroup, "Shared subscription group for horizontally scaled replicas.")
	fs.IntVar(&o.QoS, "transport.qos", o.QoS, "QoS level for subscriptions and command publishes.")
}
