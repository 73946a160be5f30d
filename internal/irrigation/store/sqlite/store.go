// Package sqlite implements the irrigation store on an embedded SQLite file.
// It serves single-node deployments and tests that need a real database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
)

var _ core.Store = (*Store)(nil)

const (
	maxRows    = 10000
	timeLayout = "2006-01-02 15:04:05.000000000"

	// WAL lets readers proceed during writes; immediate transactions take the
	// write lock up front so read-then-write sequences cannot deadlock.
	defaultParams = "_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
)

type Config struct {
	// Path is a file path or a go-sqlite3 DSN. Parameters are added when
	// the DSN carries none.
	Path             string
	MaxConns         int
	StatementTimeout time.Duration
	Migrate          bool
}

type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// Open opens the database file and optionally applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := cfg.Path
	if !strings.Contains(dsn, "?") {
		dsn += "?" + defaultParams
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	s := &Store{db: db, timeout: cfg.StatementTimeout}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Path, err)
	}
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatTime(*t)
	return &v
}

func parseTime(v string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", v, err)
	}
	return t, nil
}

func parseTimePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

const deviceColumns = `device_key, user_id, name, status, last_seen, firmware_version, battery_level, signal_strength`

func scanDevice(row scanner) (*model.Device, error) {
	var (
		d        model.Device
		status   string
		lastSeen sql.NullString
	)
	if err := row.Scan(&d.Key, &d.UserID, &d.Name, &status, &lastSeen, &d.FirmwareVersion, &d.BatteryLevel, &d.SignalStrength); err != nil {
		return nil, err
	}
	seen, err := parseTimePtr(lastSeen)
	if err != nil {
		return nil, err
	}
	d.Status = model.DeviceStatus(status)
	d.LastSeen = seen
	return &d, nil
}

func (s *Store) FindDevice(ctx context.Context, key string) (*model.Device, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d, err := scanDevice(s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (`+deviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Key, d.UserID, d.Name, string(status), formatTimePtr(d.LastSeen), d.FirmwareVersion, d.BatteryLevel, d.SignalStrength)
	if err != nil {
		return fmt.Errorf("create device %s: %w", d.Key, err)
	}
	return nil
}

// touchLastSeen never moves last_seen backwards. MAX() would return NULL for
// a device that was never seen.
const touchLastSeen = `last_seen = CASE WHEN last_seen IS NULL OR last_seen < ? THEN ? ELSE last_seen END`

func (s *Store) UpdateDeviceStatus(ctx context.Context, key string, u model.DeviceStatusUpdate) (model.DeviceStatus, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT status FROM devices WHERE device_key = ?`, key).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("device %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read device %s: %w", key, err)
	}

	seen := formatTime(u.SeenAt)
	if _, err := tx.ExecContext(ctx, `
		UPDATE devices
		SET status = ?,
		    `+touchLastSeen+`,
		    firmware_version = COALESCE(?, firmware_version),
		    battery_level = COALESCE(?, battery_level),
		    signal_strength = COALESCE(?, signal_strength)
		WHERE device_key = ?`,
		string(u.Status), seen, seen, u.FirmwareVersion, u.BatteryLevel, u.SignalStrength, key); err != nil {
		return "", fmt.Errorf("update device %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return model.DeviceStatus(prev), nil
}

func (s *Store) ListStaleDevices(ctx context.Context, seenBefore time.Time) ([]model.Device, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE status <> 'offline' AND last_seen < ? ORDER BY device_key`,
		formatTime(seenBefore))
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

	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET status = 'offline' WHERE device_key = ? AND status <> 'offline' AND last_seen < ?`,
		key, formatTime(seenBefore))
	if err != nil {
		return false, fmt.Errorf("mark device %s offline: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const plantColumns = `plant_id, user_id, name, device_key, moisture_threshold, auto_watering_on, last_watered`

func scanPlant(row scanner) (*model.Plant, error) {
	var (
		p       model.Plant
		watered sql.NullString
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.DeviceKey, &p.MoistureThreshold, &p.AutoWateringOn, &watered); err != nil {
		return nil, err
	}
	at, err := parseTimePtr(watered)
	if err != nil {
		return nil, err
	}
	p.LastWatered = at
	return &p, nil
}

func (s *Store) FindPlant(ctx context.Context, id int64) (*model.Plant, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := scanPlant(s.db.QueryRowContext(ctx, `SELECT `+plantColumns+` FROM plants WHERE plant_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
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

	p, err := scanPlant(s.db.QueryRowContext(ctx, `SELECT `+plantColumns+` FROM plants WHERE device_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
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

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO plants (user_id, name, device_key, moisture_threshold, auto_watering_on, last_watered)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.DeviceKey, p.MoistureThreshold, p.AutoWateringOn, formatTimePtr(p.LastWatered))
	if err != nil {
		return fmt.Errorf("create plant for device %s: %w", p.DeviceKey, err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("create plant for device %s: %w", p.DeviceKey, err)
	}
	return nil
}

func (s *Store) UpdatePlantLastWatered(ctx context.Context, plantID int64, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE plants SET last_watered = ? WHERE plant_id = ?`, formatTime(at), plantID)
	if err != nil {
		return fmt.Errorf("update plant %d: %w", plantID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update plant %d: %w", plantID, err)
	}
	if n == 0 {
		return fmt.Errorf("plant %d: %w", plantID, core.ErrNotFound)
	}
	return nil
}
