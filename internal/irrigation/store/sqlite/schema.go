package sqlite

// Timestamps are stored as fixed-width UTC text so that lexical order matches
// time order in range predicates.
const schema = `
CREATE TABLE IF NOT EXISTS devices (
	device_key       TEXT PRIMARY KEY,
	user_id          INTEGER NOT NULL DEFAULT 0,
	name             TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'offline' CHECK (status IN ('online', 'offline', 'error')),
	last_seen        TEXT,
	firmware_version TEXT,
	battery_level    INTEGER,
	signal_strength  INTEGER
);

CREATE TABLE IF NOT EXISTS plants (
	plant_id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id            INTEGER NOT NULL DEFAULT 0,
	name               TEXT NOT NULL DEFAULT '',
	device_key         TEXT NOT NULL UNIQUE REFERENCES devices (device_key),
	moisture_threshold INTEGER NOT NULL DEFAULT 30 CHECK (moisture_threshold BETWEEN 0 AND 100),
	auto_watering_on   INTEGER NOT NULL DEFAULT 1,
	last_watered       TEXT
);

CREATE TABLE IF NOT EXISTS sensors_data (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	device_key      TEXT NOT NULL REFERENCES devices (device_key),
	timestamp       TEXT NOT NULL,
	soil_moisture   REAL,
	temperature     REAL,
	air_humidity    REAL,
	light_intensity REAL
);
CREATE INDEX IF NOT EXISTS sensors_data_device_time_idx ON sensors_data (device_key, timestamp);
CREATE INDEX IF NOT EXISTS sensors_data_time_idx ON sensors_data (timestamp);

CREATE TABLE IF NOT EXISTS watering_history (
	history_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	plant_id         INTEGER NOT NULL REFERENCES plants (plant_id),
	timestamp        TEXT NOT NULL,
	trigger_type     TEXT NOT NULL CHECK (trigger_type IN ('manual', 'automatic_threshold', 'schedule', 'ai_prediction')),
	duration_seconds INTEGER NOT NULL,
	device_key       TEXT
);
CREATE INDEX IF NOT EXISTS watering_history_plant_time_idx ON watering_history (plant_id, timestamp);

CREATE TABLE IF NOT EXISTS system_logs (
	log_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	log_level TEXT NOT NULL,
	source    TEXT NOT NULL,
	message   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS system_logs_time_idx ON system_logs (timestamp);
`
