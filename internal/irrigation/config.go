package irrigation

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/plantd/internal/irrigation/codec"
	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/service"
	"github.com/autopeer-io/plantd/internal/irrigation/notifier"
	"github.com/autopeer-io/plantd/internal/irrigation/server"
	httpserver "github.com/autopeer-io/plantd/internal/irrigation/server/http"
	"github.com/autopeer-io/plantd/internal/irrigation/server/ingress"
	"github.com/autopeer-io/plantd/internal/irrigation/server/worker"
	"github.com/autopeer-io/plantd/internal/irrigation/store"
	"github.com/autopeer-io/plantd/internal/irrigation/store/archive"
	"github.com/autopeer-io/plantd/internal/pkg/metrics"
	"github.com/autopeer-io/plantd/pkg/log"
	"github.com/autopeer-io/plantd/pkg/mqtt"
	"github.com/autopeer-io/plantd/pkg/mqtt/topic"
	"github.com/autopeer-io/plantd/pkg/nats"
	"github.com/autopeer-io/plantd/pkg/options"
)

type Config struct {
	TransportOptions *options.TransportOptions
	MqttOptions      *options.MqttOptions
	NatsOptions      *options.NatsOptions
	HttpOptions      *options.HttpOptions
	DatabaseOptions  *options.DatabaseOptions
	S3Options        *options.S3Options
	PolicyOptions    *options.PolicyOptions
	DispatchOptions  *options.DispatchOptions
	MonitorOptions   *options.MonitorOptions
	RetentionOptions *options.RetentionOptions
	IngressOptions   *options.IngressOptions
}

// ServiceConfig converts the option groups into the core service settings.
func (cfg *Config) ServiceConfig() service.Config {
	c := service.DefaultConfig()
	c.Policy = PolicyConfig(cfg.PolicyOptions)
	c.Dispatch = service.DispatchConfig{
		Attempts:       cfg.DispatchOptions.Attempts,
		AttemptTimeout: cfg.DispatchOptions.AttemptTimeout,
		Backoff:        cfg.DispatchOptions.Backoff(),
	}
	c.AckGrace = cfg.DispatchOptions.AckGrace
	c.OfflineAfter = cfg.MonitorOptions.OfflineAfter
	c.ReadingsMaxAge = cfg.RetentionOptions.ReadingsMaxAge
	c.LogsMaxAge = cfg.RetentionOptions.LogsMaxAge
	c.ArchiveBatchSize = cfg.RetentionOptions.BatchSize
	return c
}

// PolicyConfig converts policy options into the live policy constants.
func PolicyConfig(o *options.PolicyOptions) service.PolicyConfig {
	return service.PolicyConfig{
		Cooldown:        o.Cooldown,
		DefaultDuration: o.DefaultDuration,
		MinDuration:     o.MinDuration,
		MaxDuration:     o.MaxDuration,
	}
}

// NewTransportClient creates the unstarted bus client selected by the transport options.
func (cfg *Config) NewTransportClient(onChange func(bool)) (mqtt.Client, error) {
	switch cfg.TransportOptions.Driver {
	case options.TransportMQTT:
		c := cfg.MqttOptions.ToClientConfig()
		c.Logger = log.WithName("mqtt")
		c.OnConnectionChange = onChange
		return mqtt.NewClient(c)
	case options.TransportNATS:
		c := cfg.NatsOptions.ToConfig()
		c.Logger = log.WithName("nats")
		c.OnConnectionChange = onChange
		client, err := nats.NewClient(c)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unsupported transport driver %q", cfg.TransportOptions.Driver)
}

// NewServer wires the adapters into the core service and the sub-servers
// that drive it.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	m := metrics.New()
	clk := clock.RealClock{}
	topics := topic.NewBuilder(cfg.TransportOptions.TopicRoot)

	// 1. Infrastructure: message bus (shared by ingress and notifier)
	client, err := cfg.NewTransportClient(m.SetTransportConnected)
	if err != nil {
		return nil, fmt.Errorf("failed to init transport: %w", err)
	}

	// 2. Infrastructure: relational store
	st, err := store.New(ctx, cfg.DatabaseOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// 3. Infrastructure: optional archive
	var archiver core.ReadingArchiver
	if cfg.S3Options.Enabled() {
		a, err := archive.New(cfg.S3Options, log.WithName("archive"))
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		if err := a.CheckBucket(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		archiver = a
	}

	// 4. Core domain service
	svc, err := service.New(service.Dependencies{
		Registry:   st,
		Telemetry:  st,
		Watering:   st,
		SystemLogs: st,
		Notifier:   notifier.NewBusNotifier(client, topics, cfg.TransportOptions.QoS),
		Archiver:   archiver,
		Clock:      clk,
		Logger:     log.WithName("irrigation"),
		Metrics:    m,
	}, cfg.ServiceConfig())
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to init service: %w", err)
	}

	// 5. Primary adapters
	servers := []server.Server{
		ingress.NewServer(client, topics, codec.NewDecoder(topics, clk), svc, ingress.Config{
			SharedGroup: cfg.TransportOptions.SharedGroup,
			QoS:         cfg.TransportOptions.QoS,
			Workers:     cfg.IngressOptions.Workers,
			QueueSize:   cfg.IngressOptions.QueueSize,
		}, log.WithName("ingress"), m),
		httpserver.NewServer(httpserver.Config{
			Network:         cfg.HttpOptions.Network,
			Addr:            cfg.HttpOptions.Addr,
			ReadTimeout:         cfg.HttpOptions.ReadTimeout,
			WriteTimeout:    cfg.HttpOptions.EffectiveWriteTimeout(cfg.DispatchOptions.Budget()),
			ShutdownTimeout: cfg.HttpOptions.ShutdownTimeout,
		}, svc, []httpserver.Check{
			{Name: "transport", Run: func(context.Context) error {
				if !client.IsConnected() {
					return errors.New("not connected")
				}
				return nil
			}},
			{Name: "store", Run: st.Ping},
		}, m, clk, log.WithName("http")),
		&worker.Periodic{
			Name:     "health-monitor",
			Interval: cfg.MonitorOptions.Interval,
			Task: func(ctx context.Context) error {
				_, err := svc.SweepDevices(ctx)
				return err
			},
			Logger: log.WithName("health-monitor"),
		},
		&worker.Periodic{
			Name:     "ack-expiry",
			Interval: cfg.DispatchOptions.AckSweepInterval,
			Task: func(ctx context.Context) error {
				svc.ExpireCommands(ctx)
				return nil
			},
			Logger: log.WithName("ack-expiry"),
		},
	}
	if cfg.RetentionOptions.Enabled {
		servers = append(servers, &worker.Periodic{
			Name:      "retention",
			Interval:  cfg.RetentionOptions.Interval,
			Immediate: true,
			Task: func(ctx context.Context) error {
				_, err := svc.RunRetention(ctx)
				return err
			},
			Logger: log.WithName("retention"),
		})
	}

	return &Server{
		manager: server.NewManager(log.WithName("server"), servers...),
		store:   st,
		svc:     svc,
	}, nil
}
