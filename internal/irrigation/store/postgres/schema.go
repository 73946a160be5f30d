package postgres

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	device_key       TEXT PRIMARY KEY,
	user_id          BIGINT NOT NULL DEFAULT 0,
	name             TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'offline' CHECK (status IN ('online', 'offline', 'error')),
	last_seen        TIMESTAMPTZ,
	firmware_version TEXT,
	battery_level    INTEGER,
	signal_strength  INTEGER
);

CREATE TABLE IF NOT EXISTS plants (
	plant_id           BIGSERIAL PRIMARY KEY,
	user_id            BIGINT NOT NULL DEFAULT 0,
	name               TEXT NOT NULL DEFAULT '',
	device_key         TEXT NOT NULL UNIQUE REFERENCES devices (device_key),
	moisture_threshold INTEGER NOT NULL DEFAULT 30 CHECK (moisture_threshold BETWEEN 0 AND 100),
	auto_watering_on   BOOLEAN NOT NULL DEFAULT TRUE,
	last_watered       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS sensors_data (
	id              BIGSERIAL PRIMARY KEY,
	device_key      TEXT NOT NULL REFERENCES devices (device_key),
	timestamp       TIMESTAMPTZ NOT NULL,
	soil_moisture   DOUBLE PRECISION,
	temperature     DOUBLE PRECISION,
	air_humidity    DOUBLE PRECISION,
	light_intensity DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS sensors_data_device_time_idx ON sensors_data (device_key, timestamp);
CREATE INDEX IF NOT EXISTS sensors_data_time_idx ON sensors_data (timestamp);

CREATE TABLE IF NOT EXISTS watering_history (
	history_id       BIGSERIAL PRIMARY KEY,
	plant_id         BIGINT NOT NULL REFERENCES plants (plant_id),
	timestamp        TIMESTAMPTZ NOT NULL,
	trigger_type     TEXT NOT NULL CHECK (trigger_type IN ('manual', 'automatic_threshold', 'schedule', 'ai_prediction')),
	duration_seconds INTEGER NOT NULL,
	device_key       TEXT
);
CREATE INDEX IF NOT EXISTS watering_history_plant_time_idx ON watering_history (plant_id, timestamp);

CREATE TABLE IF NOT EXISTS system_logs (
	log_id    BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	log_level TEXT NOT NULL,
	source    TEXT NOT NULL,
	message   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS system_logs_time_idx ON system_logs (timestamp);
`
