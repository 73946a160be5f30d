package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/pkg/mqtt/topic"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestDecoder() *Decoder {
	return NewDecoder(topic.NewBuilder("device"), clocktesting.NewFakePassiveClock(now))
}

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }
func s(v string) *string   { return &v }

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    model.Inbound
	}{
		{
			name:    "telemetry with rfc3339 timestamp",
			topic:   "device/dev-1/telemetry",
			payload: `{"soil_moisture": 20, "temperature": 21.5, "air_humidity": 55, "light_intensity": 1200, "timestamp": "2026-05-01T11:59:30+02:00"}`,
			want: model.Telemetry{DeviceKey: "dev-1", Reading: model.SensorReading{
				DeviceKey:      "dev-1",
				Timestamp:      time.Date(2026, 5, 1, 9, 59, 30, 0, time.UTC),
				SoilMoisture:   f(20),
				Temperature:    f(21.5),
				AirHumidity:    f(55),
				LightIntensity: f(1200),
			}},
		},
		{
			name:    "telemetry with unix seconds and missing fields",
			topic:   "device/dev-1/telemetry",
			payload: `{"soil_moisture": null, "temperature": 18, "timestamp": 1777636800}`,
			want: model.Telemetry{DeviceKey: "dev-1", Reading: model.SensorReading{
				DeviceKey:   "dev-1",
				Timestamp:   time.Unix(1777636800, 0).UTC(),
				Temperature: f(18),
			}},
		},
		{
			name:    "telemetry with unix milliseconds",
			topic:   "device/dev-1/telemetry",
			payload: `{"timestamp": 1777636800123}`,
			want: model.Telemetry{DeviceKey: "dev-1", Reading: model.SensorReading{
				DeviceKey: "dev-1",
				Timestamp: time.UnixMilli(1777636800123).UTC(),
			}},
		},
		{
			name:    "telemetry without timestamp uses receive time",
			topic:   "device/dev-1/telemetry",
			payload: `{"soil_moisture": 44}`,
			want: model.Telemetry{DeviceKey: "dev-1", Reading: model.SensorReading{
				DeviceKey:    "dev-1",
				Timestamp:    now,
				SoilMoisture: f(44),
			}},
		},
		{
			name:    "status with metadata",
			topic:   "device/dev-1/status",
			payload: `{"status": "online", "battery_level": 87, "signal_strength": -61, "firmware_version": "1.4.2"}`,
			want: model.Status{
				DeviceKey:       "dev-1",
				Status:          model.DeviceOnline,
				BatteryLevel:    i(87),
				SignalStrength:  i(-61),
				FirmwareVersion: s("1.4.2"),
				ReceivedAt:      now,
			},
		},
		{
			name:    "status error with numeric code",
			topic:   "device/dev-1/status",
			payload: `{"status": "error", "error_code": 503}`,
			want:    model.Status{DeviceKey: "dev-1", Status: model.DeviceError, ErrorCode: "503", ReceivedAt: now},
		},
		{
			name:    "command result executed",
			topic:   "device/dev-1/command-result",
			payload: `{"command": "ON", "status": "executed", "duration": 15, "correlation_id": "c-1"}`,
			want: model.CommandResult{
				DeviceKey:     "dev-1",
				Command:       model.CommandOn,
				Status:        model.AckExecuted,
				Duration:      i(15),
				CorrelationID: "c-1",
				ReceivedAt:    now,
			},
		},
		{
			name:    "command result failed with error object",
			topic:   "device/dev-1/command-result",
			payload: `{"command": "ON", "status": "failed", "error": {"code": "PUMP_JAM", "message": "pump did not start"}}`,
			want: model.CommandResult{
				DeviceKey:    "dev-1",
				Command:      model.CommandOn,
				Status:       model.AckFailed,
				ErrorCode:    "PUMP_JAM",
				ErrorMessage: "pump did not start",
				ReceivedAt:   now,
			},
		},
		{
			name:    "command result failed with error string",
			topic:   "device/dev-1/command-result",
			payload: `{"status": "failed", "error": "valve stuck", "error_code": 7}`,
			want: model.CommandResult{
				DeviceKey:    "dev-1",
				Status:       model.AckFailed,
				ErrorCode:    "7",
				ErrorMessage: "valve stuck",
				ReceivedAt:   now,
			},
		},
		{
			name:    "unknown segment",
			topic:   "device/dev-1/firmware",
			payload: `anything`,
			want:    model.Unknown{DeviceKey: "dev-1", Topic: "device/dev-1/firmware"},
		},
		{
			name:    "outside namespace",
			topic:   "fleet/dev-1/telemetry",
			payload: `{}`,
			want:    model.Unknown{Topic: "fleet/dev-1/telemetry"},
		},
	}

	d := newTestDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Decode(tt.topic, []byte(tt.payload))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"not json", "device/dev-1/telemetry", `not json`},
		{"empty", "device/dev-1/telemetry", ``},
		{"null", "device/dev-1/telemetry", `null`},
		{"array", "device/dev-1/telemetry", `[20, 21]`},
		{"string moisture", "device/dev-1/telemetry", `{"soil_moisture": "20"}`},
		{"bad timestamp", "device/dev-1/telemetry", `{"soil_moisture": 20, "timestamp": "yesterday"}`},
		{"boolean timestamp", "device/dev-1/telemetry", `{"timestamp": true}`},
		{"huge timestamp", "device/dev-1/telemetry", `{"soil_moisture": 20, "timestamp": 1e300}`},
		{"timestamp past year 9999", "device/dev-1/telemetry", `{"timestamp": 253402300800000}`},
		{"missing status", "device/dev-1/status", `{"battery_level": 50}`},
		{"unknown status", "device/dev-1/status", `{"status": "sleeping"}`},
		{"fractional battery", "device/dev-1/status", `{"status": "online", "battery_level": 50.5}`},
		{"unknown ack status", "device/dev-1/command-result", `{"command": "ON", "status": "done"}`},
		{"bad error field", "device/dev-1/command-result", `{"status": "failed", "error": 12}`},
	}

	d := newTestDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := d.Decode(tt.topic, []byte(tt.payload))
			if !errors.Is(err, core.ErrMalformedMessage) {
				t.Fatalf("Decode() = %v, %v; want ErrMalformedMessage", msg, err)
			}
		})
	}
}
