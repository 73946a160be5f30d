package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
)

// HandleStatus applies a device status report and records transitions.
func (s *Service) HandleStatus(ctx context.Context, msg model.Status) error {
	if !msg.Status.Valid() {
		return fmt.Errorf("%w: unknown device status %q", core.ErrMalformedMessage, msg.Status)
	}

	seenAt := msg.ReceivedAt
	if seenAt.IsZero() {
		seenAt = s.clock.Now()
	}

	prev, err := s.registry.UpdateDeviceStatus(ctx, msg.DeviceKey, model.DeviceStatusUpdate{
		Status:          msg.Status,
		SeenAt:          seenAt,
		FirmwareVersion: msg.FirmwareVersion,
		BatteryLevel:    msg.BatteryLevel,
		SignalStrength:  msg.SignalStrength,
	})
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %s", core.ErrUnknownDevice, msg.DeviceKey)
	}
	if err != nil {
		err = fmt.Errorf("%w: update status of %s: %w", core.ErrPersistence, msg.DeviceKey, err)
		s.journal.Record(ctx, model.LogError, "status", "Failed to update status of device %s: %v", msg.DeviceKey, err)
		return err
	}

	if msg.Status == model.DeviceError {
		s.logger.Error(fmt.Errorf("device error %q", msg.ErrorCode), "Device reported error",
			"device", msg.DeviceKey, "error_code", msg.ErrorCode, "previousStatus", prev)
		if prev != model.DeviceError {
			s.metrics.ObserveDeviceTransition(string(model.DeviceError))
		}
		s.journal.Record(ctx, model.LogError, "status", "Device %s reported error %q", msg.DeviceKey, msg.ErrorCode)
		return nil
	}

	if prev == msg.Status {
		s.logger.Debug("Device status unchanged", "device", msg.DeviceKey, "status", msg.Status)
		return nil
	}

	s.metrics.ObserveDeviceTransition(string(msg.Status))
	if msg.Status == model.DeviceOffline {
		s.logger.Warn("Device reported offline", "device", msg.DeviceKey, "previousStatus", prev)
		s.journal.Record(ctx, model.LogWarning, "status", "Device %s reported offline", msg.DeviceKey)
		return nil
	}

	s.logger.Info("Device came online", "device", msg.DeviceKey, "previousStatus", prev)
	s.journal.Record(ctx, model.LogInfo, "status", "Device %s is online (was %s)", msg.DeviceKey, prev)
	return nil
}
