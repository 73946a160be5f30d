package model

import "time"

// SensorReading is one telemetry sample. Each measurement is optional.
type SensorReading struct {
	ID             int64     `json:"id"`
	DeviceKey      string    `json:"device_key"`
	Timestamp      time.Time `json:"timestamp"`
	SoilMoisture   *float64  `json:"soil_moisture"`
	Temperature    *float64  `json:"temperature"`
	AirHumidity    *float64  `json:"air_humidity"`
	LightIntensity *float64  `json:"light_intensity"`
}

// StoredReading is the result of a successful write.
type StoredReading struct {
	Reading        SensorReading
	PreviousStatus DeviceStatus
	DeviceStatus   DeviceStatus
}
