package model

import "time"

// DeviceStatus is the connectivity state of a device.
type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceError   DeviceStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceOnline, DeviceOffline, DeviceError:
		return true
	}
	return false
}

// Device is a registered sensor/actuator unit, identified by an opaque key.
type Device struct {
	Key             string
	UserID          int64
	Name            string
	Status          DeviceStatus
	LastSeen        *time.Time
	FirmwareVersion *string
	BatteryLevel    *int
	SignalStrength  *int
}

// DeviceStatusUpdate carries a status change and the metadata reported with it.
// Nil metadata fields leave the stored values untouched.
type DeviceStatusUpdate struct {
	Status          DeviceStatus
	SeenAt          time.Time
	FirmwareVersion *string
	BatteryLevel    *int
	SignalStrength  *int
}
