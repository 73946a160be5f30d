package core

import (
	"context"
	"time"

	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
)

// Registry is the device and plant registry.
// Lookups return an error wrapping ErrNotFound when the row does not exist.
type Registry interface {
	FindDevice(ctx context.Context, key string) (*model.Device, error)

	FindPlant(ctx context.Context, id int64) (*model.Plant, error)

	// FindPlantByDeviceKey returns the plant controlled by the device.
	FindPlantByDeviceKey(ctx context.Context, key string) (*model.Plant, error)

	// UpdateDeviceStatus applies a status report and returns the status held before it.
	UpdateDeviceStatus(ctx context.Context, key string, update model.DeviceStatusUpdate) (model.DeviceStatus, error)

	// ListStaleDevices returns devices not yet offline whose last_seen is before seenBefore.
	ListStaleDevices(ctx context.Context, seenBefore time.Time) ([]model.Device, error)

	// MarkDeviceOffline sets the device offline only if it is still stale, so a
	// concurrent fresh reading wins. It reports whether a row changed.
	MarkDeviceOffline(ctx context.Context, key string, seenBefore time.Time) (bool, error)

	UpdatePlantLastWatered(ctx context.Context, plantID int64, at time.Time) error
}

// TelemetryStore holds the append-only sensor reading history.
type TelemetryStore interface {
	// RecordReading inserts the reading, assigns its ID and marks the device
	// online with last_seen set to receivedAt, in one transaction. The device
	// timestamp is stored on the reading only. It returns the device status
	// held before the write.
	RecordReading(ctx context.Context, reading *model.SensorReading, receivedAt time.Time) (model.DeviceStatus, error)

	ListReadings(ctx context.Context, deviceKey string, since, until time.Time) ([]model.SensorReading, error)

	// ListReadingsBefore pages through readings older than cutoff in ID order.
	ListReadingsBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]model.SensorReading, error)

	// DeleteReadingsBefore removes readings older than cutoff. A positive
	// maxID also limits the delete to readings with id <= maxID.
	DeleteReadingsBefore(ctx context.Context, cutoff time.Time, maxID int64) (int64, error)
}

// WateringStore holds confirmed watering events.
type WateringStore interface {
	InsertWateringEvent(ctx context.Context, event *model.WateringEvent) error

	ListWateringEvents(ctx context.Context, plantID int64, since, until time.Time) ([]model.WateringEvent, error)
}

// SystemLogStore holds the operator journal.
type SystemLogStore interface {
	AppendSystemLog(ctx context.Context, entry *model.SystemLogEntry) error

	DeleteSystemLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is implemented by the relational adapters.
type Store interface {
	Registry
	TelemetryStore
	WateringStore
	SystemLogStore

	Ping(ctx context.Context) error
	Close() error
}
