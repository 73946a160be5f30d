package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
)

func (s *Store) RecordReading(ctx context.Context, r *model.SensorReading, receivedAt time.Time) (model.DeviceStatus, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prev string
	err = tx.QueryRow(ctx, `SELECT status FROM devices WHERE device_key = $1 FOR UPDATE`, r.DeviceKey).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("device %s: %w", r.DeviceKey, core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lock device %s: %w", r.DeviceKey, err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO sensors_data (device_key, timestamp, soil_moisture, temperature, air_humidity, light_intensity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		r.DeviceKey, r.Timestamp, r.SoilMoisture, r.Temperature, r.AirHumidity, r.LightIntensity,
	).Scan(&r.ID)
	if err != nil {
		return "", fmt.Errorf("insert reading: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE devices SET status = 'online', last_seen = $2 WHERE device_key = $1`,
		r.DeviceKey, receivedAt.UTC()); err != nil {
		return "", fmt.Errorf("touch device %s: %w", r.DeviceKey, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return model.DeviceStatus(prev), nil
}

const readingColumns = `id, device_key, timestamp, soil_moisture, temperature, air_humidity, light_intensity`

func collectReadings(rows pgx.Rows) ([]model.SensorReading, error) {
	defer rows.Close()

	var out []model.SensorReading
	for rows.Next() {
		var r model.SensorReading
		if err := rows.Scan(&r.ID, &r.DeviceKey, &r.Timestamp, &r.SoilMoisture, &r.Temperature, &r.AirHumidity, &r.LightIntensity); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListReadings(ctx context.Context, deviceKey string, since, until time.Time) ([]model.SensorReading, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+readingColumns+` FROM sensors_data
		WHERE device_key = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp, id
		LIMIT $4`,
		deviceKey, since, until, maxRows)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	return collectReadings(rows)
}

func (s *Store) ListReadingsBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]model.SensorReading, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+readingColumns+` FROM sensors_data
		WHERE timestamp < $1 AND id > $2
		ORDER BY id
		LIMIT $3`,
		cutoff, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list readings before %s: %w", cutoff, err)
	}
	return collectReadings(rows)
}

func (s *Store) DeleteReadingsBefore(ctx context.Context, cutoff time.Time, maxID int64) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM sensors_data WHERE timestamp < $1 AND ($2::bigint <= 0 OR id <= $2::bigint)`,
		cutoff, maxID)
	if err != nil {
		return 0, fmt.Errorf("delete readings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) InsertWateringEvent(ctx context.Context, e *model.WateringEvent) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.pool.QueryRow(ctx, `
		INSERT INTO watering_history (plant_id, timestamp, trigger_type, duration_seconds, device_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING history_id`,
		e.PlantID, e.Timestamp, string(e.TriggerType), e.DurationSeconds, e.DeviceKey,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert watering event: %w", err)
	}
	return nil
}

func (s *Store) ListWateringEvents(ctx context.Context, plantID int64, since, until time.Time) ([]model.WateringEvent, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT history_id, plant_id, timestamp, trigger_type, duration_seconds, device_key
		FROM watering_history
		WHERE plant_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp, history_id
		LIMIT $4`,
		plantID, since, until, maxRows)
	if err != nil {
		return nil, fmt.Errorf("list watering events: %w", err)
	}
	defer rows.Close()

	var out []model.WateringEvent
	for rows.Next() {
		var (
			e       model.WateringEvent
			trigger string
		)
		if err := rows.Scan(&e.ID, &e.PlantID, &e.Timestamp, &trigger, &e.DurationSeconds, &e.DeviceKey); err != nil {
			return nil, fmt.Errorf("scan watering event: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		e.TriggerType = model.TriggerType(trigger)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AppendSystemLog(ctx context.Context, e *model.SystemLogEntry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.pool.QueryRow(ctx, `
		INSERT INTO system_logs (timestamp, log_level, source, message)
		VALUES ($1, $2, $3, $4)
		RETURNING log_id`,
		e.Timestamp, string(e.Level), e.Source, e.Message,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append system log: %w", err)
	}
	return nil
}

func (s *Store) DeleteSystemLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM system_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete system logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
