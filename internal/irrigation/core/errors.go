package core

import "errors"

// Error taxonomy of the irrigation pipeline. Adapters and services wrap these
// with fmt.Errorf("...: %w", err); callers test them with errors.Is.
var (
	// ErrMalformedMessage marks an inbound payload that could not be decoded.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrSensorOutOfRange marks a reading with a measurement outside its physical bounds.
	ErrSensorOutOfRange = errors.New("sensor value out of range")

	ErrPersistence = errors.New("persistence failure")

	// ErrTransportUnavailable is returned while the message bus is disconnected.
	ErrTransportUnavailable = errors.New("transport unavailable")

	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidCommand  = errors.New("invalid command")

	// ErrCommandFailedPermanently is returned once every publish attempt has failed.
	ErrCommandFailedPermanently = errors.New("command failed permanently")

	ErrDeviceOffline = errors.New("device offline")

	// ErrUnknownDevice marks a message from a device key with no registry row.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTriggerInFlight is returned when a plant already has an evaluation
	// or an unacknowledged command outstanding.
	ErrTriggerInFlight = errors.New("trigger in flight")
)
