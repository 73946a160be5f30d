package model

import "time"

// Inbound is the tagged union of messages received from devices. The concrete
// type is resolved once at the transport boundary.
type Inbound interface {
	Device() string
	inbound()
}

// Telemetry is a parsed sensor sample.
type Telemetry struct {
	DeviceKey string
	Reading   SensorReading
}

// Status is a device self-report of connectivity and health.
type Status struct {
	DeviceKey       string
	Status          DeviceStatus
	BatteryLevel    *int
	SignalStrength  *int
	FirmwareVersion *string
	ErrorCode       string
	ReceivedAt      time.Time
}

// AckStatus is the outcome reported by a device for a command.
type AckStatus string

const (
	AckExecuted AckStatus = "executed"
	AckFailed   AckStatus = "failed"
)

// CommandResult is a device acknowledgement of a command.
type CommandResult struct {
	DeviceKey     string
	Command       Command
	Status        AckStatus
	CorrelationID string
	Duration      *int
	ErrorCode     string
	ErrorMessage  string
	ReceivedAt    time.Time
}

// Unknown is a message on a topic no handler claims.
type Unknown struct {
	DeviceKey string
	Topic     string
}

func (m Telemetry) Device() string     { return m.DeviceKey }
func (m Status) Device() string        { return m.DeviceKey }
func (m CommandResult) Device() string { return m.DeviceKey }
func (m Unknown) Device() string       { return m.DeviceKey }

func (Telemetry) inbound()     {}
func (Status) inbound()        {}
func (CommandResult) inbound() {}
func (Unknown) inbound()       {}
