package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*PolicyOptions)(nil)

// PolicyOptions holds the automatic watering constants. They are reloaded
// when the config file changes.
type PolicyOptions struct {
	Cooldown        time.Duration `json:"cooldown" mapstructure:"cooldown"`
	DefaultDuration time.Duration `json:"default-duration" mapstructure:"default-duration"`
	MinDuration     time.Duration `json:"min-duration" mapstructure:"min-duration"`
	MaxDuration     time.Duration `json:"max-duration" mapstructure:"max-duration"`
}

func NewPolicyOptions() *PolicyOptions {
	return &PolicyOptions{
		Cooldown:        time.Hour,
		DefaultDuration: 15 * time.Second,
		MinDuration:     time.Second,
		MaxDuration:     120 * time.Second,
	}
}

func (o *PolicyOptions) Validate() []error {
	var errs []error
	if o.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("--policy.cooldown must not be negative"))
	}
	if o.MinDuration < time.Second {
		errs = append(errs, fmt.Errorf("--policy.min-duration must be at least 1s"))
	}
	if o.MaxDuration < o.MinDuration {
		errs = append(errs, fmt.Errorf("--policy.max-duration (%s) must not be below --policy.min-duration (%s)", o.MaxDuration, o.MinDuration))
	}
	if o.DefaultDuration < o.MinDuration {
		errs = append(errs, fmt.Errorf("--policy.default-duration (%s) must not be below --policy.min-duration (%s)", o.DefaultDuration, o.MinDuration))
	}
	for name, d := range map[string]time.Duration{
		"default-duration": o.DefaultDuration, "min-duration": o.MinDuration, "max-duration": o.MaxDuration,
	} {
		if d%time.Second != 0 {
			errs = append(errs, fmt.Errorf("--policy.%s must be a whole number of seconds, got %s", name, d))
		}
	}
	return errs
}

func (o *PolicyOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Cooldown, "policy.cooldown", o.Cooldown, "Minimum time between two automatic waterings of a plant.")
	fs.DurationVar(&o.DefaultDuration, "policy.default-duration", o.DefaultDuration, "Pump run time of an automatic watering.")
	fs.DurationVar(&o.MinDuration, "policy.min-duration", o.MinDuration, "Shortest pump run time accepted for an ON command.")
	fs.DurationVar(&o.MaxDuration, "policy.max-duration", o.MaxDuration, "Longest pump run time accepted for an ON command.")
}
