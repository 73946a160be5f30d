package model

import "time"

// Command is an actuator instruction understood by the device firmware.
type Command string

const (
	CommandOn     Command = "ON"
	CommandOff    Command = "OFF"
	CommandStatus Command = "status"
)

// Supported reports whether c is on the device allow-list.
func (c Command) Supported() bool {
	switch c {
	case CommandOn, CommandOff, CommandStatus:
		return true
	}
	return false
}

// CommandRequest lives for the duration of one dispatch and its retries.
type CommandRequest struct {
	DeviceKey     string
	PlantID       int64
	Command       Command
	Duration      time.Duration
	CorrelationID string
	Trigger       TriggerType
	Attempts      int
}

// CommandPayload is the JSON body published on the command topic.
type CommandPayload struct {
	Command       Command `json:"command"`
	Duration      int     `json:"duration,omitempty"`
	CorrelationID string  `json:"correlation_id"`
}
