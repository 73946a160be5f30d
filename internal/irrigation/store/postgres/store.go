// Package postgres implements the irrigation store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
)

var _ core.Store = (*Store)(nil)

// maxRows caps range queries.
const maxRows = 10000

type Config struct {
	DSN              string
	MaxConns         int32
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
	Migrate          bool
}

type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// Open connects, verifies connectivity and optionally applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	// Verify connectivity early.
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool, timeout: cfg.StatementTimeout}
	if cfg.Migrate {
		if err := s.Migrate(connectCtx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

const deviceColumns = `device_key, user_id, name, status, last_seen, firmware_version, battery_level, signal_strength`

func scanDevice(row pgx.Row) (*model.Device, error) {
	var (
		d      model.Device
		status string
	)
	if err := row.Scan(&d.Key, &d.UserID, &d.Name, &status, &d.LastSeen, &d.FirmwareVersion, &d.BatteryLevel, &d.SignalStrength); err != nil {
		return nil, err
	}
	d.Status = model.DeviceStatus(status)
	return &d, nil
}

func (s *Store) FindDevice(ctx context.Context, key string) (*model.Device, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d, err := scanDevice(s.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("device %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find device %s: %w", key, err)
	}
	return d, nil
}

// CreateDevice registers a device.
func (s *Store) CreateDevice(ctx context.Context, d model.Device) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	status := d.Status
	if status == "" {
		status = model.DeviceOffline
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO devices (`+deviceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.Key, d.UserID, d.Name, string(status), d.LastSeen, d.FirmwareVersion, d.BatteryLevel, d.SignalStrength)
	if err != nil {
		return fmt.Errorf("create device %s: %w", d.Key, err)
	}
	return nil
}

func (s *Store) UpdateDeviceStatus(ctx context.Context, key string, u model.DeviceStatusUpdate) (model.DeviceStatus, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var prev string
	err := s.pool.QueryRow(ctx, `
		UPDATE devices d
		SET status = $2,
		    last_seen = GREATEST(d.last_seen, $3),
		    firmware_version = COALESCE($4, d.firmware_version),
		    battery_level = COALESCE($5, d.battery_level),
		    signal_strength = COALESCE($6, d.signal_strength)
		FROM (SELECT device_key, status FROM devices WHERE device_key = $1 FOR UPDATE) prev
		WHERE d.device_key = prev.device_key
		RETURNING prev.status`,
		key, string(u.Status), u.SeenAt, u.FirmwareVersion, u.BatteryLevel, u.SignalStrength,
	).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("device %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("update device %s: %w", key, err)
	}
	return model.DeviceStatus(prev), nil
}

func (s *Store) ListStaleDevices(ctx context.Context, seenBefore time.Time) ([]model.Device, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE status <> 'offline' AND last_seen < $1 ORDER BY device_key`,
		seenBefore)
	if err != nil {
		return nil, fmt.Errorf("list stale devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

func (s *Store) MarkDeviceOffline(ctx context.Context, key string, seenBefore time.Time) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE devices SET status = 'offline' WHERE device_key = $1 AND status <> 'offline' AND last_seen < $2`,
		key, seenBefore)
	if err != nil {
		return false, fmt.Errorf("mark device %s offline: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

const plantColumns = `plant_id, user_id, name, device_key, moisture_threshold, auto_watering_on, last_watered`

func scanPlant(row pgx.Row) (*model.Plant, error) {
	var p model.Plant
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.DeviceKey, &p.MoistureThreshold, &p.AutoWateringOn, &p.LastWatered); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) FindPlant(ctx context.Context, id int64) (*model.Plant, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := scanPlant(s.pool.QueryRow(ctx, `SELECT `+plantColumns+` FROM plants WHERE plant_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plant %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find plant %d: %w", id, err)
	}
	return p, nil
}

func (s *Store) FindPlantByDeviceKey(ctx context.Context, key string) (*model.Plant, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := scanPlant(s.pool.QueryRow(ctx, `SELECT `+plantColumns+` FROM plants WHERE device_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plant for device %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find plant for device %s: %w", key, err)
	}
	return p, nil
}

// CreatePlant registers a plant and assigns its ID.
func (s *Store) CreatePlant(ctx context.Context, p *model.Plant) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.pool.QueryRow(ctx, `
		INSERT INTO plants (user_id, name, device_key, moisture_threshold, auto_watering_on, last_watered)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING plant_id`,
		p.UserID, p.Name, p.DeviceKey, p.MoistureThreshold, p.AutoWateringOn, p.LastWatered,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("create plant for device %s: %w", p.DeviceKey, err)
	}
	return nil
}

func (s *Store) UpdatePlantLastWatered(ctx context.Context, plantID int64, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `UPDATE plants SET last_watered = $2 WHERE plant_id = $1`, plantID, at)
	if err != nil {
		return fmt.Errorf("update plant %d: %w", plantID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("plant %d: %w", plantID, core.ErrNotFound)
	}
	return nil
}
