package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
)

// HandleTelemetry validates and stores a reading, then evaluates the policy
// for the plant bound to the device.
func (s *Service) HandleTelemetry(ctx context.Context, msg model.Telemetry) error {
	reading := msg.Reading
	reading.DeviceKey = msg.DeviceKey
	if reading.Timestamp.IsZero() {
		reading.Timestamp = s.clock.Now()
	}

	if err := ValidateReading(reading); err != nil {
		return err
	}

	stored, err := s.WriteReading(ctx, reading)
	if err != nil {
		return err
	}

	if _, err := s.engine.EvaluateReading(ctx, *stored); err != nil && !dispatchFailure(err) {
		return err
	}
	return nil
}

// WriteReading persists a validated reading and marks its device online.
// Persistence failures are journaled and not retried.
func (s *Service) WriteReading(ctx context.Context, reading model.SensorReading) (*model.StoredReading, error) {
	prev, err := s.telemetry.RecordReading(ctx, &reading, s.clock.Now())
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownDevice, reading.DeviceKey)
	}
	if err != nil {
		err = fmt.Errorf("%w: record reading from %s: %w", core.ErrPersistence, reading.DeviceKey, err)
		s.journal.Record(ctx, model.LogError, "telemetry", "Failed to store reading from device %s: %v", reading.DeviceKey, err)
		return nil, err
	}

	if prev != model.DeviceOnline {
		s.metrics.ObserveDeviceTransition(string(model.DeviceOnline))
		s.logger.Info("Device came online", "device", reading.DeviceKey, "previousStatus", prev)
		s.journal.Record(ctx, model.LogInfo, "telemetry", "Device %s is online (was %s)", reading.DeviceKey, prev)
	}

	return &model.StoredReading{
		Reading:        reading,
		PreviousStatus: prev,
		DeviceStatus:   model.DeviceOnline,
	}, nil
}

// dispatchFailure reports errors the dispatcher has already logged.
func dispatchFailure(err error) bool {
	return errors.Is(err, core.ErrCommandFailedPermanently) ||
		errors.Is(err, core.ErrInvalidDuration) ||
		errors.Is(err, core.ErrInvalidCommand)
}
