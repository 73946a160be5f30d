package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/plantd/pkg/backoff"
)

var _ IOptions = (*DispatchOptions)(nil)

// DispatchOptions bounds command publishing and acknowledgement tracking.
type DispatchOptions struct {
	Attempts       int           `json:"attempts" mapstructure:"attempts"`
	AttemptTimeout time.Duration `json:"attempt-timeout" mapstructure:"attempt-timeout"`
	BackoffInitial time.Duration `json:"backoff-initial" mapstructure:"backoff-initial"`
	BackoffMax     time.Duration `json:"backoff-max" mapstructure:"backoff-max"`

	// AckGrace is added to the pump duration to form the acknowledgement deadline.
	AckGrace time.Duration `json:"ack-grace" mapstructure:"ack-grace"`

	// AckSweepInterval is how often expired pending commands are dropped.
	AckSweepInterval time.Duration `json:"ack-sweep-interval" mapstructure:"ack-sweep-interval"`
}

func NewDispatchOptions() *DispatchOptions {
	return &DispatchOptions{
		Attempts:         3,
		AttemptTimeout:   10 * time.Second,
		BackoffInitial:   time.Second,
		BackoffMax:       8 * time.Second,
		AckGrace:         20 * time.Second,
		AckSweepInterval: 5 * time.Second,
	}
}

func (o *DispatchOptions) Validate() []error {
	var errs []error
	if o.Attempts < 1 {
		errs = append(errs, fmt.Errorf("--dispatch.attempts must be at least 1"))
	}
	if o.AttemptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--dispatch.attempt-timeout must be positive"))
	}
	if o.BackoffInitial < 0 || o.BackoffMax < o.BackoffInitial {
		errs = append(errs, fmt.Errorf("--dispatch.backoff-initial (%s) must not be negative or exceed --dispatch.backoff-max (%s)",
			o.BackoffInitial, o.BackoffMax))
	}
	if o.AckGrace < 0 {
		errs = append(errs, fmt.Errorf("--dispatch.ack-grace must not be negative"))
	}
	if o.AckSweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("--dispatch.ack-sweep-interval must be positive"))
	}
	return errs
}

// Budget is the longest a single dispatch can take: every attempt timing out
// plus the largest backoff between attempts.
func (o *DispatchOptions) Budget() time.Duration {
	if o.Attempts < 1 {
		return 0
	}
	return time.Duration(o.Attempts)*o.AttemptTimeout + time.Duration(o.Attempts-1)*o.BackoffMax
}

func (o *DispatchOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.Attempts, "dispatch.attempts", o.Attempts, "Publish attempts per command before it fails permanently.")
	fs.DurationVar(&o.AttemptTimeout, "dispatch.attempt-timeout", o.AttemptTimeout, "Deadline for a single publish attempt.")
	fs.DurationVar(&o.BackoffInitial, "dispatch.backoff-initial", o.BackoffInitial, "Delay before the second publish attempt.")
	fs.DurationVar(&o.BackoffMax, "dispatch.backoff-max", o.BackoffMax, "Upper bound for the delay between publish attempts.")
	fs.DurationVar(&o.AckGrace, "dispatch.ack-grace", o.AckGrace, "Time beyond the pump duration to wait for a device acknowledgement.")
	fs.DurationVar(&o.AckSweepInterval, "dispatch.ack-sweep-interval", o.AckSweepInterval, "How often unacknowledged commands are expired.")
}

// Backoff returns the delay policy between publish attempts.
func (o *DispatchOptions) Backoff() backoff.Exponential {
	return backoff.Exponential{Initial: o.BackoffInitial, Max: o.BackoffMax, Jitter: 0.2}
}
