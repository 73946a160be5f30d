package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
)

func (s *Store) RecordReading(ctx context.Context, r *model.SensorReading, receivedAt time.Time) (model.DeviceStatus, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT status FROM devices WHERE device_key = ?`, r.DeviceKey).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("device %s: %w", r.DeviceKey, core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read device %s: %w", r.DeviceKey, err)
	}

	ts := formatTime(r.Timestamp)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sensors_data (device_key, timestamp, soil_moisture, temperature, air_humidity, light_intensity)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.DeviceKey, ts, r.SoilMoisture, r.Temperature, r.AirHumidity, r.LightIntensity)
	if err != nil {
		return "", fmt.Errorf("insert reading: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("insert reading: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE devices SET status = 'online', last_seen = ? WHERE device_key = ?`,
		formatTime(receivedAt), r.DeviceKey); err != nil {
		return "", fmt.Errorf("touch device %s: %w", r.DeviceKey, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	r.ID = id
	return model.DeviceStatus(prev), nil
}

const readingColumns = `id, device_key, timestamp, soil_moisture, temperature, air_humidity, light_intensity`

func collectReadings(rows *sql.Rows) ([]model.SensorReading, error) {
	defer rows.Close()

	var out []model.SensorReading
	for rows.Next() {
		var (
			r  model.SensorReading
			ts string
		)
		if err := rows.Scan(&r.ID, &r.DeviceKey, &ts, &r.SoilMoisture, &r.Temperature, &r.AirHumidity, &r.LightIntensity); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		r.Timestamp = t
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListReadings(ctx context.Context, deviceKey string, since, until time.Time) ([]model.SensorReading, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+readingColumns+` FROM sensors_data
		WHERE device_key = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp, id
		LIMIT ?`,
		deviceKey, formatTime(since), formatTime(until), maxRows)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	return collectReadings(rows)
}

func (s *Store) ListReadingsBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]model.SensorReading, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+readingColumns+` FROM sensors_data
		WHERE timestamp < ? AND id > ?
		ORDER BY id
		LIMIT ?`,
		formatTime(cutoff), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list readings before %s: %w", cutoff, err)
	}
	return collectReadings(rows)
}

func (s *Store) DeleteReadingsBefore(ctx context.Context, cutoff time.Time, maxID int64) (int64, error) {
	if maxID <= 0 {
		return s.deleteBefore(ctx, "sensors_data", cutoff)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM sensors_data WHERE timestamp < ? AND id <= ?`, formatTime(cutoff), maxID)
	if err != nil {
		return 0, fmt.Errorf("delete readings: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteSystemLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, "system_logs", cutoff)
}

// deleteBefore removes rows of table older than cutoff. table is never user input.
func (s *Store) deleteBefore(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE timestamp < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

func (s *Store) InsertWateringEvent(ctx context.Context, e *model.WateringEvent) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO watering_history (plant_id, timestamp, trigger_type, duration_seconds, device_key)
		VALUES (?, ?, ?, ?, ?)`,
		e.PlantID, formatTime(e.Timestamp), string(e.TriggerType), e.DurationSeconds, e.DeviceKey)
	if err != nil {
		return fmt.Errorf("insert watering event: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert watering event: %w", err)
	}
	return nil
}

func (s *Store) ListWateringEvents(ctx context.Context, plantID int64, since, until time.Time) ([]model.WateringEvent, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT history_id, plant_id, timestamp, trigger_type, duration_seconds, device_key
		FROM watering_history
		WHERE plant_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp, history_id
		LIMIT ?`,
		plantID, formatTime(since), formatTime(until), maxRows)
	if err != nil {
		return nil, fmt.Errorf("list watering events: %w", err)
	}
	defer rows.Close()

	var out []model.WateringEvent
	for rows.Next() {
		var (
			e           model.WateringEvent
			ts, trigger string
		)
		if err := rows.Scan(&e.ID, &e.PlantID, &ts, &trigger, &e.DurationSeconds, &e.DeviceKey); err != nil {
			return nil, fmt.Errorf("scan watering event: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		e.TriggerType = model.TriggerType(trigger)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AppendSystemLog(ctx context.Context, e *model.SystemLogEntry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO system_logs (timestamp, log_level, source, message) VALUES (?, ?, ?, ?)`,
		formatTime(e.Timestamp), string(e.Level), e.Source, e.Message)
	if err != nil {
		return fmt.Errorf("append system log: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("append system log: %w", err)
	}
	return nil
}
