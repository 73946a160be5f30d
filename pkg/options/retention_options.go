package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*RetentionOptions)(nil)

// RetentionOptions configures pruning of old readings and system logs.
type RetentionOptions struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	Interval       time.Duration `json:"interval" mapstructure:"interval"`
	ReadingsMaxAge time.Duration `json:"readings-max-age" mapstructure:"readings-max-age"`
	LogsMaxAge     time.Duration `json:"logs-max-age" mapstructure:"logs-max-age"`
	BatchSize      int           `json:"batch-size" mapstructure:"batch-size"`
}

func NewRetentionOptions() *RetentionOptions {
	return &RetentionOptions{
		Enabled:        true,
		Interval:       24 * time.Hour,
		ReadingsMaxAge: 30 * 24 * time.Hour,
		LogsMaxAge:     30 * 24 * time.Hour,
		BatchSize:      5000,
	}
}

func (o *RetentionOptions) Validate() []error {
	if !o.Enabled {
		return nil
	}

	var errs []error
	if o.Interval <= 0 {
		errs = append(errs, fmt.Errorf("--retention.interval must be positive"))
	}
	if o.ReadingsMaxAge <= 0 || o.LogsMaxAge <= 0 {
		errs = append(errs, fmt.Errorf("--retention.readings-max-age and --retention.logs-max-age must be positive"))
	}
	if o.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("--retention.batch-size must be at least 1"))
	}
	return errs
}

func (o *RetentionOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "retention.enabled", o.Enabled, "Run the periodic retention job.")
	fs.DurationVar(&o.Interval, "retention.interval", o.Interval, "How often old data is pruned.")
	fs.DurationVar(&o.ReadingsMaxAge, "retention.readings-max-age", o.ReadingsMaxAge, "Age after which sensor readings are archived and deleted.")
	fs.DurationVar(&o.LogsMaxAge, "retention.logs-max-age", o.LogsMaxAge, "Age after which system log entries are deleted.")
	fs.IntVar(&o.BatchSize, "retention.batch-size", o.BatchSize, "Readings per archive object.")
}
