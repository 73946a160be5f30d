package model

import "time"

// TriggerType records why a watering happened.
type TriggerType string

const (
	TriggerManual             TriggerType = "manual"
	TriggerAutomaticThreshold TriggerType = "automatic_threshold"
	TriggerSchedule           TriggerType = "schedule"
	TriggerAIPrediction       TriggerType = "ai_prediction"
)

// WateringEvent is a confirmed watering, written once the device acknowledges it.
type WateringEvent struct {
	ID              int64       `json:"id"`
	PlantID         int64       `json:"plant_id"`
	Timestamp       time.Time   `json:"timestamp"`
	TriggerType     TriggerType `json:"trigger_type"`
	DurationSeconds int         `json:"duration_seconds"`
	DeviceKey       *string     `json:"device_key,omitempty"`
}
