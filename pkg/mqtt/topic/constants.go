package topic

// Standard MQTT wildcard definitions.
const (
	// Wildcard is the single-level wildcard "+".
	// Example: "device/+/telemetry" matches "device/dev-01/telemetry".
	Wildcard = "+"

	// MultiWildcard is the multi-level wildcard "#". It must be the last level
	// of a filter.
	MultiWildcard = "#"

	// SharePrefix introduces an MQTT v5 shared subscription: $share/{group}/{filter}.
	SharePrefix = "$share"

	// Separator is the MQTT topic level separator.
	Separator = "/"
)
