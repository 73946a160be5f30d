package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/internal/pkg/metrics"
	"github.com/autopeer-io/plantd/pkg/log"
)

// Dependencies are the ports the service is built from.
type Dependencies struct {
	Registry   core.Registry
	Telemetry  core.TelemetryStore
	Watering   core.WateringStore
	SystemLogs core.SystemLogStore
	Notifier   core.CommandNotifier

	// Archiver is optional. Without it retention deletes readings without exporting them.
	Archiver core.ReadingArchiver

	Clock   clock.Clock
	Logger  log.Logger
	Metrics *metrics.Metrics

	// NewCorrelationID defaults to random UUIDs.
	NewCorrelationID func() string
}

// Service implements the irrigation use cases. It orchestrates the
// validator, store writer, policy engine, dispatcher, acknowledgement
// processor, health monitor and retention job over the injected ports.
type Service struct {
	registry  core.Registry
	telemetry core.TelemetryStore
	watering  core.WateringStore
	clock     clock.Clock
	logger    log.Logger
	metrics   *metrics.Metrics

	policy     *PolicySource
	journal    *Journal
	gates      *PlantGates
	engine     *PolicyEngine
	dispatcher *Dispatcher
	acks       *AckProcessor
	monitor    *HealthMonitor
	retention  *Retention
}

// New creates the irrigation service.
func New(deps Dependencies, cfg Config) (*Service, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("registry is required")
	case deps.Telemetry == nil:
		return nil, errors.New("telemetry store is required")
	case deps.Watering == nil:
		return nil, errors.New("watering store is required")
	case deps.Notifier == nil:
		return nil, errors.New("command notifier is required")
	}
	if cfg.Dispatch.Attempts < 1 {
		return nil, fmt.Errorf("dispatch attempts must be at least 1, got %d", cfg.Dispatch.Attempts)
	}
	if cfg.ArchiveBatchSize < 1 {
		cfg.ArchiveBatchSize = DefaultConfig().ArchiveBatchSize
	}

	policy, err := NewPolicySource(cfg.Policy)
	if err != nil {
		return nil, err
	}

	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = log.WithName("irrigation")
	}
	if deps.NewCorrelationID == nil {
		deps.NewCorrelationID = uuid.NewString
	}

	logger := deps.Logger
	journal := NewJournal(deps.SystemLogs, deps.Clock, logger.WithName("journal"))
	gates := NewPlantGates(logger.WithName("gate"))

	acks := &AckProcessor{
		pending:  make(map[string]*pendingCommand),
		registry: deps.Registry,
		watering: deps.Watering,
		gates:    gates,
		grace:    cfg.AckGrace,
		clock:    deps.Clock,
		journal:  journal,
		logger:   logger.WithName("ack"),
		metrics:  deps.Metrics,
	}

	dispatcher := &Dispatcher{
		notifier: deps.Notifier,
		policy:   policy,
		tracker:  acks,
		cfg:      cfg.Dispatch,
		clock:    deps.Clock,
		newID:    deps.NewCorrelationID,
		journal:  journal,
		logger:   logger.WithName("dispatcher"),
		metrics:  deps.Metrics,
	}

	s := &Service{
		registry:   deps.Registry,
		telemetry:  deps.Telemetry,
		watering:   deps.Watering,
		clock:      deps.Clock,
		logger:     logger,
		metrics:    deps.Metrics,
		policy:     policy,
		journal:    journal,
		gates:      gates,
		dispatcher: dispatcher,
		acks:       acks,
		engine: &PolicyEngine{
			registry:   deps.Registry,
			policy:     policy,
			gates:      gates,
			dispatcher: dispatcher,
			clock:      deps.Clock,
			logger:     logger.WithName("policy"),
			metrics:    deps.Metrics,
		},
		monitor: &HealthMonitor{
			registry:     deps.Registry,
			offlineAfter: cfg.OfflineAfter,
			clock:        deps.Clock,
			journal:      journal,
			logger:       logger.WithName("monitor"),
			metrics:      deps.Metrics,
		},
	}

	if deps.SystemLogs != nil {
		s.retention = &Retention{
			readings:       deps.Telemetry,
			logs:           deps.SystemLogs,
			archiver:       deps.Archiver,
			readingsMaxAge: cfg.ReadingsMaxAge,
			logsMaxAge:     cfg.LogsMaxAge,
			batchSize:      cfg.ArchiveBatchSize,
			clock:          deps.Clock,
			logger:         logger.WithName("retention"),
		}
	}

	return s, nil
}

// Handle processes one decoded device message. Errors are logged here with
// the device key and message kind, then returned for the caller's benefit.
func (s *Service) Handle(ctx context.Context, msg model.Inbound) error {
	var (
		kind string
		err  error
	)

	switch m := msg.(type) {
	case model.Telemetry:
		kind, err = "telemetry", s.HandleTelemetry(ctx, m)
	case model.Status:
		kind, err = "status", s.HandleStatus(ctx, m)
	case model.CommandResult:
		kind, err = "command-result", s.HandleCommandResult(ctx, m)
	case model.Unknown:
		s.metrics.ObserveMessage("unknown", "ignored")
		s.logger.Debug("Ignoring message on unhandled topic", "device", m.DeviceKey, "topic", m.Topic)
		return nil
	default:
		return fmt.Errorf("%w: unsupported message type %T", core.ErrMalformedMessage, msg)
	}

	s.report(kind, msg.Device(), err)
	return err
}

func (s *Service) report(kind, deviceKey string, err error) {
	s.metrics.ObserveMessage(kind, resultLabel(err))

	switch {
	case err == nil:
	case errors.Is(err, core.ErrMalformedMessage),
		errors.Is(err, core.ErrSensorOutOfRange),
		errors.Is(err, core.ErrUnknownDevice):
		s.logger.Warn("Rejected device message", "device", deviceKey, "kind", kind, "error", err)
	default:
		s.logger.Error(err, "Failed to process device message", "device", deviceKey, "kind", kind)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, core.ErrMalformedMessage):
		return "malformed"
	case errors.Is(err, core.ErrSensorOutOfRange):
		return "out_of_range"
	case errors.Is(err, core.ErrUnknownDevice):
		return "unknown_device"
	case errors.Is(err, core.ErrPersistence):
		return "persistence_error"
	}
	return "error"
}

// UpdatePolicy swaps the live policy constants. An invalid policy is rejected
// and the current one stays in effect.
func (s *Service) UpdatePolicy(cfg PolicyConfig) error {
	if err := s.policy.Store(cfg); err != nil {
		return err
	}
	s.logger.Info("Policy updated",
		"cooldown", cfg.Cooldown, "defaultDuration", cfg.DefaultDuration,
		"minDuration", cfg.MinDuration, "maxDuration", cfg.MaxDuration)
	return nil
}

// Policy returns the live policy constants.
func (s *Service) Policy() PolicyConfig {
	return s.policy.Load()
}

// PlantState returns the gate state of a plant.
func (s *Service) PlantState(plantID int64) string {
	return s.gates.State(plantID)
}

// SweepDevices runs one health monitor pass.
func (s *Service) SweepDevices(ctx context.Context) (int, error) {
	return s.monitor.Sweep(ctx)
}

// ExpireCommands drops commands past their acknowledgement deadline.
func (s *Service) ExpireCommands(ctx context.Context) int {
	return s.acks.Expire(ctx)
}

// PendingCommands returns the number of commands awaiting acknowledgement.
func (s *Service) PendingCommands() int {
	return s.acks.Pending()
}

// RunRetention runs one retention pass.
func (s *Service) RunRetention(ctx context.Context) (RetentionResult, error) {
	if s.retention == nil {
		return RetentionResult{}, errors.New("retention requires a system log store")
	}
	return s.retention.Run(ctx)
}
