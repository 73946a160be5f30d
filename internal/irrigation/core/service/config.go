package service

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/plantd/pkg/backoff"
)

// PolicyConfig holds the irrigation policy constants.
type PolicyConfig struct {
	// Cooldown is the minimum time between two automatic waterings of a plant.
	Cooldown time.Duration

	// DefaultDuration is the watering time of an automatic trigger. It is
	// clamped to MaxDuration.
	DefaultDuration time.Duration

	// MinDuration and MaxDuration bound every ON command the dispatcher sends.
	MinDuration time.Duration
	MaxDuration time.Duration
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Cooldown:        time.Hour,
		DefaultDuration: 15 * time.Second,
		MinDuration:     time.Second,
		MaxDuration:     120 * time.Second,
	}
}

func (c PolicyConfig) Validate() error {
	switch {
	case c.Cooldown < 0:
		return fmt.Errorf("cooldown must not be negative, got %s", c.Cooldown)
	case c.MinDuration < time.Second:
		return fmt.Errorf("minimum duration must be at least 1s, got %s", c.MinDuration)
	case c.MaxDuration < c.MinDuration:
		return fmt.Errorf("maximum duration %s is below minimum %s", c.MaxDuration, c.MinDuration)
	case c.DefaultDuration < c.MinDuration:
		return fmt.Errorf("default duration %s is below minimum %s", c.DefaultDuration, c.MinDuration)
	}
	return nil
}

// PolicySource is the live policy shared by the engine and the dispatcher.
// It can be swapped at runtime when the configuration file changes.
type PolicySource struct {
	v atomic.Pointer[PolicyConfig]
}

func NewPolicySource(cfg PolicyConfig) (*PolicySource, error) {
	p := &PolicySource{}
	if err := p.Store(cfg); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PolicySource) Load() PolicyConfig {
	return *p.v.Load()
}

// Store validates cfg and makes it the live policy. An invalid cfg leaves the
// previous policy in place.
func (p *PolicySource) Store(cfg PolicyConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	p.v.Store(&cfg)
	return nil
}

// DispatchConfig bounds the command publish loop.
type DispatchConfig struct {
	Attempts       int
	AttemptTimeout time.Duration
	Backoff        backoff.Exponential
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Attempts:       3,
		AttemptTimeout: 10 * time.Second,
		Backoff:        backoff.Exponential{Initial: time.Second, Max: 8 * time.Second, Jitter: 0.2},
	}
}

type Config struct {
	Policy   PolicyConfig
	Dispatch DispatchConfig

	// AckGrace is added to the commanded duration to get the acknowledgement deadline.
	AckGrace time.Duration

	// OfflineAfter is how long a device may stay silent before it is marked offline.
	OfflineAfter time.Duration

	ReadingsMaxAge time.Duration
	LogsMaxAge     time.Duration

	// ArchiveBatchSize is the number of readings per archive object.
	ArchiveBatchSize int
}

func DefaultConfig() Config {
	return Config{
		Policy:           DefaultPolicyConfig(),
		Dispatch:         DefaultDispatchConfig(),
		AckGrace:         20 * time.Second,
		OfflineAfter:     time.Hour,
		ReadingsMaxAge:   30 * 24 * time.Hour,
		LogsMaxAge:       30 * 24 * time.Hour,
		ArchiveBatchSize: 5000,
	}
}
