package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*MonitorOptions)(nil)

// MonitorOptions configures the device health sweep.
type MonitorOptions struct {
	Interval     time.Duration `json:"interval" mapstructure:"interval"`
	OfflineAfter time.Duration `json:"offline-after" mapstructure:"offline-after"`
}

func NewMonitorOptions() *MonitorOptions {
	return &MonitorOptions{
		Interval:     time.Minute,
		OfflineAfter: time.Hour,
	}
}

func (o *MonitorOptions) Validate() []error {
	var errs []error
	if o.Interval <= 0 {
		errs = append(errs, fmt.Errorf("--monitor.interval must be positive"))
	}
	if o.OfflineAfter <= 0 {
		errs = append(errs, fmt.Errorf("--monitor.offline-after must be positive"))
	}
	return errs
}

func (o *MonitorOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Interval, "monitor.interval", o.Interval, "How often devices are checked for silence.")
	fs.DurationVar(&o.OfflineAfter, "monitor.offline-after", o.OfflineAfter, "Silence after which a device is marked offline.")
}
