package model

import "time"

// Plant is a watered unit bound to exactly one controlling device.
type Plant struct {
	ID                int64
	UserID            int64
	Name              string
	DeviceKey         string
	MoistureThreshold int
	AutoWateringOn    bool
	LastWatered       *time.Time
}
