package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*IngressOptions)(nil)

// IngressOptions sizes the worker pool that processes inbound messages.
// Messages of one device always go to the same worker.
type IngressOptions struct {
	Workers   int `json:"workers" mapstructure:"workers"`
	QueueSize int `json:"queue-size" mapstructure:"queue-size"`
}

func NewIngressOptions() *IngressOptions {
	return &IngressOptions{
		Workers:   8,
		QueueSize: 256,
	}
}

func (o *IngressOptions) Validate() []error {
	var errs []error
	if o.Workers < 1 {
		errs = append(errs, fmt.Errorf("--ingress.workers must be at least 1"))
	}
	if o.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("--ingress.queue-size must be at least 1"))
	}
	return errs
}

func (o *IngressOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.Workers, "ingress.workers", o.Workers, "Number of workers processing inbound device messages.")
	fs.IntVar(&o.QueueSize, "ingress.queue-size", o.QueueSize, "Per-worker queue length; messages beyond it are dropped.")
}
