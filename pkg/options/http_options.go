package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions configures the operational HTTP server.
type HttpOptions struct {
	// Network is tcp, tcp4, tcp6 or unix.
	Network string `json:"network" mapstructure:"network"`

	// Addr is host:port, or a socket path for unix.
	Addr string `json:"addr" mapstructure:"addr"`

	// ReadTimeout bounds reading a request including its body.
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`

	// WriteTimeout bounds a whole request. Zero derives it from the dispatch
	// budget, since the command endpoints publish synchronously.
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// writeSlack is added to the dispatch budget when deriving the write timeout.
const writeSlack = 5 * time.Second

func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Network:         "tcp",
		Addr:            "0.0.0.0:8080",
		ReadTimeout:     10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

func (o *HttpOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Network {
	case "tcp", "tcp4", "tcp6":
		if err := ValidateAddress(o.Addr); err != nil {
			errs = append(errs, err)
		}
	case "unix":
		if o.Addr == "" {
			errs = append(errs, fmt.Errorf("--http.addr must name a socket path"))
		}
	default:
		errs = append(errs, fmt.Errorf("--http.network must be tcp, tcp4, tcp6 or unix, got %q", o.Network))
	}
	if o.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--http.read-timeout must be positive"))
	}
	if o.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("--http.write-timeout must not be negative"))
	}
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--http.shutdown-timeout must be positive"))
	}
	return errs
}

// ValidateWriteTimeout rejects an explicit write timeout that a synchronous
// command dispatch taking up to budget could outlast.
func (o *HttpOptions) ValidateWriteTimeout(budget time.Duration) error {
	if o.WriteTimeout != 0 && o.WriteTimeout <= budget {
		return fmt.Errorf("--http.write-timeout (%s) must exceed the command dispatch budget (%s)", o.WriteTimeout, budget)
	}
	return nil
}

// EffectiveWriteTimeout returns the configured write timeout, or budget plus
// some slack when none is set.
func (o *HttpOptions) EffectiveWriteTimeout(budget time.Duration) time.Duration {
	if o.WriteTimeout != 0 {
		return o.WriteTimeout
	}
	return budget + writeSlack
}

func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Network, "http.network", o.Network, "Network of the HTTP listener (tcp, tcp4, tcp6 or unix).")
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "HTTP listen address or unix socket path.")
	fs.DurationVar(&o.ReadTimeout, "http.read-timeout", o.ReadTimeout, "Maximum time to read a request.")
	fs.DurationVar(&o.WriteTimeout, "http.write-timeout", o.WriteTimeout,
		"Maximum time to serve a request. 0 derives it from the dispatch attempts, attempt timeout and backoff.")
	fs.DurationVar(&o.ShutdownTimeout, "http.shutdown-timeout", o.ShutdownTimeout, "Grace period for in-flight requests on shutdown.")
}
