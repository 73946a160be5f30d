// Package codec decodes device messages into the typed inbound union and is
// the only place payload JSON is interpreted.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/plantd/pkg/mqtt/topic"
)

type Decoder struct {
	topics *topic.Builder
	clock  clock.PassiveClock
}

func NewDecoder(topics *topic.Builder, clk clock.PassiveClock) *Decoder {
	return &Decoder{topics: topics, clock: clk}
}

// Decode resolves the message kind from the topic and parses its payload.
// Payloads that cannot be parsed yield an error wrapping core.ErrMalformedMessage.
func (d *Decoder) Decode(topicName string, payload []byte) (model.Inbound, error) {
	deviceKey, segment, ok := d.topics.Parse(topicName)
	if !ok {
		return model.Unknown{Topic: topicName}, nil
	}

	var (
		msg model.Inbound
		err error
	)
	switch segment {
	case paths.Telemetry:
		msg, err = d.telemetry(deviceKey, payload)
	case paths.Status:
		msg, err = d.status(deviceKey, payload)
	case paths.CommandResult:
		msg, err = d.commandResult(deviceKey, payload)
	default:
		return model.Unknown{DeviceKey: deviceKey, Topic: topicName}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s from %s: %w", core.ErrMalformedMessage, segment, deviceKey, err)
	}
	return msg, nil
}

type telemetryPayload struct {
	SoilMoisture   *float64  `json:"soil_moisture"`
	Temperature    *float64  `json:"temperature"`
	AirHumidity    *float64  `json:"air_humidity"`
	LightIntensity *float64  `json:"light_intensity"`
	Timestamp      timestamp `json:"timestamp"`
}

func (d *Decoder) telemetry(deviceKey string, payload []byte) (model.Inbound, error) {
	var p telemetryPayload
	if err := unmarshalObject(payload, &p); err != nil {
		return nil, err
	}

	ts := p.Timestamp.Time
	if ts.IsZero() {
		ts = d.clock.Now()
	}

	return model.Telemetry{
		DeviceKey: deviceKey,
		Reading: model.SensorReading{
			DeviceKey:      deviceKey,
			Timestamp:      ts,
			SoilMoisture:   p.SoilMoisture,
			Temperature:    p.Temperature,
			AirHumidity:    p.AirHumidity,
			LightIntensity: p.LightIntensity,
		},
	}, nil
}

type statusPayload struct {
	Status          model.DeviceStatus `json:"status"`
	BatteryLevel    *int               `json:"battery_level"`
	SignalStrength  *int               `json:"signal_strength"`
	FirmwareVersion *string            `json:"firmware_version"`
	ErrorCode       code               `json:"error_code"`
}

func (d *Decoder) status(deviceKey string, payload []byte) (model.Inbound, error) {
	var p statusPayload
	if err := unmarshalObject(payload, &p); err != nil {
		return nil, err
	}
	if !p.Status.Valid() {
		return nil, fmt.Errorf("status %q is not one of online, offline, error", p.Status)
	}

	return model.Status{
		DeviceKey:       deviceKey,
		Status:          p.Status,
		BatteryLevel:    p.BatteryLevel,
		SignalStrength:  p.SignalStrength,
		FirmwareVersion: p.FirmwareVersion,
		ErrorCode:       string(p.ErrorCode),
		ReceivedAt:      d.clock.Now(),
	}, nil
}

type commandResultPayload struct {
	Command       model.Command   `json:"command"`
	Status        model.AckStatus `json:"status"`
	Duration      *int            `json:"duration"`
	Error         resultError     `json:"error"`
	ErrorCode     code            `json:"error_code"`
	Message       string          `json:"message"`
	CorrelationID string          `json:"correlation_id"`
}

func (d *Decoder) commandResult(deviceKey string, payload []byte) (model.Inbound, error) {
	var p commandResultPayload
	if err := unmarshalObject(payload, &p); err != nil {
		return nil, err
	}
	if p.Status != model.AckExecuted && p.Status != model.AckFailed {
		return nil, fmt.Errorf("status %q is not one of executed, failed", p.Status)
	}

	res := model.CommandResult{
		DeviceKey:     deviceKey,
		Command:       p.Command,
		Status:        p.Status,
		CorrelationID: p.CorrelationID,
		Duration:      p.Duration,
		ErrorCode:     string(p.Error.Code),
		ErrorMessage:  p.Error.Message,
		ReceivedAt:    d.clock.Now(),
	}
	if res.ErrorCode == "" {
		res.ErrorCode = string(p.ErrorCode)
	}
	if res.ErrorMessage == "" {
		res.ErrorMessage = p.Message
	}
	return res, nil
}

// unmarshalObject rejects anything but a JSON object, including null.
func unmarshalObject(payload []byte, v any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("payload is not a JSON object")
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return err
	}
	return nil
}
