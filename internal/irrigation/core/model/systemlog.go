package model

import "time"

// LogLevel is the severity of an operator-visible system log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
	LogDebug   LogLevel = "DEBUG"
)

// SystemLogEntry is a row in the operator journal read by the dashboard.
type SystemLogEntry struct {
	ID        int64
	Timestamp time.Time
	Level     LogLevel
	Source    string
	Message   string
}
