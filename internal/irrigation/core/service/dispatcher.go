package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/internal/pkg/metrics"
	"github.com/autopeer-io/plantd/pkg/log"
)

// commandTracker is told about a command before its first publish, so an
// acknowledgement racing the publish return still finds it. The
// acknowledgement deadline only starts once the command is Published.
type commandTracker interface {
	Track(req model.CommandRequest)
	Published(correlationID string)
	Forget(correlationID string)
}

// Dispatcher validates and publishes actuator commands with a bounded,
// jittered retry loop.
type Dispatcher struct {
	notifier core.CommandNotifier
	policy   *PolicySource
	tracker  commandTracker
	cfg      DispatchConfig
	clock    clock.Clock
	newID    func() string
	journal  *Journal
	logger   log.Logger
	metrics  *metrics.Metrics
}

// Dispatch validates req, assigns a correlation id and publishes it. The
// returned request carries the correlation id and the attempt count.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.CommandRequest) (model.CommandRequest, error) {
	if err := d.validate(&req); err != nil {
		d.metrics.ObserveCommand(string(req.Command), "invalid", 0)
		d.logger.Warn("Rejected command", "device", req.DeviceKey, "command", req.Command, "duration", req.Duration, "error", err)
		return req, err
	}

	req.CorrelationID = d.newID()
	payload := model.CommandPayload{
		Command:       req.Command,
		Duration:      int(req.Duration / time.Second),
		CorrelationID: req.CorrelationID,
	}

	d.tracker.Track(req)

	var lastErr error
	for attempt := 1; attempt <= d.cfg.Attempts; attempt++ {
		if attempt > 1 {
			if err := d.wait(ctx, d.cfg.Backoff.Delay(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		req.Attempts = attempt
		lastErr = d.publish(ctx, req.DeviceKey, payload)
		if lastErr == nil {
			d.tracker.Published(req.CorrelationID)
			d.metrics.ObserveCommand(string(req.Command), "published", attempt)
			d.logger.Info("Command published",
				"device", req.DeviceKey, "plant", req.PlantID, "command", req.Command,
				"duration", req.Duration, "correlationID", req.CorrelationID, "attempt", attempt)
			return req, nil
		}

		d.logger.Warn("Command publish attempt failed",
			"device", req.DeviceKey, "command", req.Command, "correlationID", req.CorrelationID,
			"attempt", attempt, "maxAttempts", d.cfg.Attempts, "error", lastErr)
	}

	d.tracker.Forget(req.CorrelationID)
	d.metrics.ObserveCommand(string(req.Command), "failed", req.Attempts)

	err := fmt.Errorf("%w: %s to %s after %d attempts: %w",
		core.ErrCommandFailedPermanently, req.Command, req.DeviceKey, req.Attempts, lastErr)
	d.logger.Error(err, "CommandFailedPermanently",
		"device", req.DeviceKey, "plant", req.PlantID, "command", req.Command, "correlationID", req.CorrelationID)
	d.journal.Record(ctx, model.LogError, "dispatcher",
		"Command %s to device %s failed after %d attempts: %v", req.Command, req.DeviceKey, req.Attempts, lastErr)

	return req, err
}

func (d *Dispatcher) validate(req *model.CommandRequest) error {
	if !req.Command.Supported() {
		return fmt.Errorf("%w: %q", core.ErrInvalidCommand, req.Command)
	}
	if req.DeviceKey == "" {
		return fmt.Errorf("%w: empty device key", core.ErrInvalidCommand)
	}

	if req.Command != model.CommandOn {
		req.Duration = 0
		return nil
	}

	policy := d.policy.Load()
	if req.Duration < policy.MinDuration || req.Duration > policy.MaxDuration {
		return fmt.Errorf("%w: %s outside [%s, %s]", core.ErrInvalidDuration, req.Duration, policy.MinDuration, policy.MaxDuration)
	}
	if req.Duration%time.Second != 0 {
		return fmt.Errorf("%w: %s is not a whole number of seconds", core.ErrInvalidDuration, req.Duration)
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, deviceKey string, payload model.CommandPayload) error {
	if !d.notifier.Connected() {
		return core.ErrTransportUnavailable
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	if err := d.notifier.Notify(attemptCtx, deviceKey, payload); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("attempt timed out after %s: %w", d.cfg.AttemptTimeout, err)
		}
		return err
	}
	return nil
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	t := d.clock.NewTimer(delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
