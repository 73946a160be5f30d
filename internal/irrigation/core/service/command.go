package service

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
)

// HandleCommandResult forwards a device acknowledgement to the ack processor.
func (s *Service) HandleCommandResult(ctx context.Context, msg model.CommandResult) error {
	if msg.Status != model.AckExecuted && msg.Status != model.AckFailed {
		return fmt.Errorf("%w: unknown command status %q", core.ErrMalformedMessage, msg.Status)
	}
	return s.acks.Process(ctx, msg)
}

// WaterPlant waters a plant on operator request. It skips the automatic
// rules but requires the device to be online and the plant to be idle. A zero
// duration uses the policy default; any other value must be within the
// dispatcher bounds.
func (s *Service) WaterPlant(ctx context.Context, plantID int64, duration time.Duration) (model.CommandRequest, error) {
	plant, err := s.registry.FindPlant(ctx, plantID)
	if err != nil {
		return model.CommandRequest{}, fmt.Errorf("find plant %d: %w", plantID, err)
	}

	device, err := s.registry.FindDevice(ctx, plant.DeviceKey)
	if err != nil {
		return model.CommandRequest{}, fmt.Errorf("find device %s: %w", plant.DeviceKey, err)
	}
	if device.Status != model.DeviceOnline {
		return model.CommandRequest{}, fmt.Errorf("%w: %s is %s", core.ErrDeviceOffline, device.Key, device.Status)
	}

	if duration == 0 {
		policy := s.policy.Load()
		duration = min(policy.DefaultDuration, policy.MaxDuration)
	}

	if err := s.gates.Begin(ctx, plantID); err != nil {
		return model.CommandRequest{}, err
	}
	if err := s.gates.Trigger(ctx, plantID); err != nil {
		s.gates.Release(ctx, plantID)
		return model.CommandRequest{}, err
	}

	req, err := s.dispatcher.Dispatch(ctx, model.CommandRequest{
		DeviceKey: device.Key,
		PlantID:   plantID,
		Command:   model.CommandOn,
		Duration:  duration,
		Trigger:   model.TriggerManual,
	})
	if err != nil {
		s.gates.Release(ctx, plantID)
		return req, err
	}

	s.logger.Info("Manual watering requested", "plant", plantID, "device", device.Key, "duration", duration)
	return req, nil
}

// SendCommand dispatches an operator command that is not tied to a plant,
// such as OFF or status.
func (s *Service) SendCommand(ctx context.Context, deviceKey string, command model.Command) (model.CommandRequest, error) {
	if command == model.CommandOn {
		return model.CommandRequest{}, fmt.Errorf("%w: use manual watering to send %s", core.ErrInvalidCommand, command)
	}
	if _, err := s.registry.FindDevice(ctx, deviceKey); err != nil {
		return model.CommandRequest{}, fmt.Errorf("find device %s: %w", deviceKey, err)
	}

	return s.dispatcher.Dispatch(ctx, model.CommandRequest{
		DeviceKey: deviceKey,
		Command:   command,
	})
}

// ReadingsForDevice returns stored readings of a device within [since, until).
func (s *Service) ReadingsForDevice(ctx context.Context, deviceKey string, since, until time.Time) ([]model.SensorReading, error) {
	if _, err := s.registry.FindDevice(ctx, deviceKey); err != nil {
		return nil, fmt.Errorf("find device %s: %w", deviceKey, err)
	}
	readings, err := s.telemetry.ListReadings(ctx, deviceKey, since, until)
	if err != nil {
		return nil, fmt.Errorf("%w: list readings of %s: %w", core.ErrPersistence, deviceKey, err)
	}
	return readings, nil
}

// WateringEventsForPlant returns watering events of a plant within [since, until).
func (s *Service) WateringEventsForPlant(ctx context.Context, plantID int64, since, until time.Time) ([]model.WateringEvent, error) {
	if _, err := s.registry.FindPlant(ctx, plantID); err != nil {
		return nil, fmt.Errorf("find plant %d: %w", plantID, err)
	}
	events, err := s.watering.ListWateringEvents(ctx, plantID, since, until)
	if err != nil {
		return nil, fmt.Errorf("%w: list watering events of plant %d: %w", core.ErrPersistence, plantID, err)
	}
	return events, nil
}
