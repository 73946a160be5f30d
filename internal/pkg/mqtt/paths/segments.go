package paths

// Topic segments of the device protocol. Topics are built as
// {root}/{deviceKey}/{segment}.

// Downstream: service -> device.
const (
	// Command carries actuator commands.
	// Payload: { "command": "ON", "duration": 15, "correlation_id": "..." }
	Command = "command"
)

// Upstream: device -> service.
const (
	// Telemetry carries sensor samples.
	// Payload: { "soil_moisture": 41.5, "temperature": 22.1, "air_humidity": 55, "light_intensity": 1200, "timestamp": "..." }
	Telemetry = "telemetry"

	// Status carries connectivity and health reports.
	// Payload: { "status": "online", "battery_level": 87, "signal_strength": -61, "error_code": "..." }
	Status = "status"

	// CommandResult carries command acknowledgements.
	// Payload: { "command": "ON", "status": "executed", "duration": 15, "correlation_id": "..." }
	CommandResult = "command-result"
)

// Inbound lists the segments the service subscribes to.
var Inbound = []string{Telemetry, Status, CommandResult}
