package core

import (
	"context"
	"time"

	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
)

// CommandNotifier delivers actuator commands to devices.
// It is implemented by the message bus outbound adapter.
type CommandNotifier interface {
	// Notify publishes the payload to the device's command topic. It returns
	// ErrTransportUnavailable (wrapped) while the bus is disconnected.
	Notify(ctx context.Context, deviceKey string, payload model.CommandPayload) error

	// Connected reports the current bus connection state.
	Connected() bool
}

// ReadingArchiver exports readings before they are deleted by retention.
type ReadingArchiver interface {
	// Archive stores one batch. part numbers batches within a single run.
	Archive(ctx context.Context, cutoff time.Time, part int, readings []model.SensorReading) error
}
