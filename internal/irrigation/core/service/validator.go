package service

import (
	"fmt"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
)

// Bounds is an inclusive physical range for one measurement.
type Bounds struct {
	Min, Max float64
}

func (b Bounds) contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

var (
	SoilMoistureBounds   = Bounds{Min: 0, Max: 100}
	TemperatureBounds    = Bounds{Min: -40, Max: 80}
	AirHumidityBounds    = Bounds{Min: 0, Max: 100}
	LightIntensityBounds = Bounds{Min: 0, Max: 100000}
)

// ValidateReading checks every present measurement against its bounds.
// Missing measurements are allowed; one bad value rejects the whole reading.
func ValidateReading(r model.SensorReading) error {
	fields := []struct {
		name   string
		value  *float64
		bounds Bounds
	}{
		{"soil_moisture", r.SoilMoisture, SoilMoistureBounds},
		{"temperature", r.Temperature, TemperatureBounds},
		{"air_humidity", r.AirHumidity, AirHumidityBounds},
		{"light_intensity", r.LightIntensity, LightIntensityBounds},
	}

	for _, f := range fields {
		if f.value == nil {
			continue
		}
		if !f.bounds.contains(*f.value) {
			return fmt.Errorf("%w: %s=%g outside [%g, %g]", core.ErrSensorOutOfRange, f.name, *f.value, f.bounds.Min, f.bounds.Max)
		}
	}
	return nil
}
