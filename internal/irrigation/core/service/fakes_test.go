package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/internal/pkg/metrics"
	"github.com/autopeer-io/plantd/pkg/backoff"
	"github.com/autopeer-io/plantd/pkg/log"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu sync.Mutex

	devices  map[string]*model.Device
	plants   map[int64]*model.Plant
	readings []model.SensorReading
	events   []model.WateringEvent
	logs     []model.SystemLogEntry
	nextID   int64

	recordErr   error
	wateringErr error
	deleteCalls int
}

var _ core.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		devices: make(map[string]*model.Device),
		plants:  make(map[int64]*model.Plant),
	}
}

func (f *fakeStore) addDevice(key string, status model.DeviceStatus, lastSeen time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := lastSeen
	f.devices[key] = &model.Device{Key: key, UserID: 1, Name: key, Status: status, LastSeen: &seen}
}

func (f *fakeStore) addPlant(p model.Plant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plants[p.ID] = &p
}

func (f *fakeStore) device(key string) model.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.devices[key]
}

func (f *fakeStore) plant(id int64) model.Plant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.plants[id]
}

func (f *fakeStore) wateringEvents() []model.WateringEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.WateringEvent(nil), f.events...)
}

func (f *fakeStore) storedReadings() []model.SensorReading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SensorReading(nil), f.readings...)
}

func (f *fakeStore) systemLogs() []model.SystemLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SystemLogEntry(nil), f.logs...)
}

func (f *fakeStore) FindDevice(_ context.Context, key string) (*model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[key]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", key, core.ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (f *fakeStore) FindPlant(_ context.Context, id int64) (*model.Plant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plants[id]
	if !ok {
		return nil, fmt.Errorf("plant %d: %w", id, core.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (f *fakeStore) FindPlantByDeviceKey(_ context.Context, key string) (*model.Plant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.plants {
		if p.DeviceKey == key {
			c := *p
			return &c, nil
		}
	}
	return nil, fmt.Errorf("plant for device %s: %w", key, core.ErrNotFound)
}

func (f *fakeStore) UpdateDeviceStatus(_ context.Context, key string, u model.DeviceStatusUpdate) (model.DeviceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[key]
	if !ok {
		return "", fmt.Errorf("device %s: %w", key, core.ErrNotFound)
	}
	prev := d.Status
	seen := u.SeenAt
	d.Status = u.Status
	d.LastSeen = &seen
	if u.BatteryLevel != nil {
		d.BatteryLevel = u.BatteryLevel
	}
	if u.SignalStrength != nil {
		d.SignalStrength = u.SignalStrength
	}
	if u.FirmwareVersion != nil {
		d.FirmwareVersion = u.FirmwareVersion
	}
	return prev, nil
}

func (f *fakeStore) ListStaleDevices(_ context.Context, seenBefore time.Time) ([]model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Device
	for _, d := range f.devices {
		if d.Status != model.DeviceOffline && d.LastSeen != nil && d.LastSeen.Before(seenBefore) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeStore) MarkDeviceOffline(_ context.Context, key string, seenBefore time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[key]
	if !ok || d.Status == model.DeviceOffline || d.LastSeen == nil || !d.LastSeen.Before(seenBefore) {
		return false, nil
	}
	d.Status = model.DeviceOffline
	return true, nil
}

func (f *fakeStore) UpdatePlantLastWatered(_ context.Context, plantID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plants[plantID]
	if !ok {
		return fmt.Errorf("plant %d: %w", plantID, core.ErrNotFound)
	}
	t := at
	p.LastWatered = &t
	return nil
}

func (f *fakeStore) RecordReading(_ context.Context, r *model.SensorReading, receivedAt time.Time) (model.DeviceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return "", f.recordErr
	}
	d, ok := f.devices[r.DeviceKey]
	if !ok {
		return "", fmt.Errorf("device %s: %w", r.DeviceKey, core.ErrNotFound)
	}
	f.nextID++
	r.ID = f.nextID
	f.readings = append(f.readings, *r)

	prev := d.Status
	seen := receivedAt
	d.Status = model.DeviceOnline
	d.LastSeen = &seen
	return prev, nil
}

func (f *fakeStore) ListReadings(_ context.Context, key string, since, until time.Time) ([]model.SensorReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SensorReading
	for _, r := range f.readings {
		if r.DeviceKey == key && !r.Timestamp.Before(since) && r.Timestamp.Before(until) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListReadingsBefore(_ context.Context, cutoff time.Time, afterID int64, limit int) ([]model.SensorReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SensorReading
	for _, r := range f.readings {
		if r.ID > afterID && r.Timestamp.Before(cutoff) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteReadingsBefore(_ context.Context, cutoff time.Time, maxID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	kept := f.readings[:0]
	var n int64
	for _, r := range f.readings {
		if r.Timestamp.Before(cutoff) && (maxID <= 0 || r.ID <= maxID) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.readings = kept
	return n, nil
}

func (f *fakeStore) InsertWateringEvent(_ context.Context, e *model.WateringEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wateringErr != nil {
		return f.wateringErr
	}
	f.nextID++
	e.ID = f.nextID
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeStore) ListWateringEvents(_ context.Context, plantID int64, since, until time.Time) ([]model.WateringEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.WateringEvent
	for _, e := range f.events {
		if e.PlantID == plantID && !e.Timestamp.Before(since) && e.Timestamp.Before(until) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) AppendSystemLog(_ context.Context, e *model.SystemLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e.ID = f.nextID
	f.logs = append(f.logs, *e)
	return nil
}

func (f *fakeStore) DeleteSystemLogsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.logs[:0]
	var n int64
	for _, e := range f.logs {
		if e.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	f.logs = kept
	return n, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

type sentCommand struct {
	deviceKey string
	payload   model.CommandPayload
}

type fakeNotifier struct {
	mu        sync.Mutex
	connected atomic.Bool
	failures  []error
	failAll   error
	calls     int
	sent      []sentCommand

	// When hold is set, Notify signals entered and blocks until hold is closed.
	hold    chan struct{}
	entered chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	n := &fakeNotifier{}
	n.connected.Store(true)
	return n
}

func (n *fakeNotifier) Notify(_ context.Context, deviceKey string, payload model.CommandPayload) error {
	if n.hold != nil {
		n.entered <- struct{}{}
		<-n.hold
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.failAll != nil {
		return n.failAll
	}
	if len(n.failures) > 0 {
		err := n.failures[0]
		n.failures = n.failures[1:]
		return err
	}
	n.sent = append(n.sent, sentCommand{deviceKey: deviceKey, payload: payload})
	return nil
}

func (n *fakeNotifier) Connected() bool { return n.connected.Load() }

func (n *fakeNotifier) published() []sentCommand {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentCommand(nil), n.sent...)
}

func (n *fakeNotifier) attempts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type fakeArchiver struct {
	err     error
	batches [][]model.SensorReading
	// onArchive runs after a batch is accepted.
	onArchive func()
}

func (a *fakeArchiver) Archive(_ context.Context, _ time.Time, _ int, readings []model.SensorReading) error {
	if a.err != nil {
		return a.err
	}
	a.batches = append(a.batches, readings)
	if a.onArchive != nil {
		a.onArchive()
	}
	return nil
}

var errBroker = errors.New("broker timeout")

type harness struct {
	svc      *Service
	store    *fakeStore
	notifier *fakeNotifier
	clock    *clocktesting.FakeClock
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, mutate ...func(*Config, *Dependencies)) *harness {
	t.Helper()

	zcore, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		store:    newFakeStore(),
		notifier: newFakeNotifier(),
		clock:    clocktesting.NewFakeClock(testNow),
		logs:     logs,
	}

	var ids atomic.Int64
	cfg := DefaultConfig()
	cfg.Dispatch.Backoff = backoff.Exponential{}
	deps := Dependencies{
		Registry:   h.store,
		Telemetry:  h.store,
		Watering:   h.store,
		SystemLogs: h.store,
		Notifier:   h.notifier,
		Clock:      h.clock,
		Logger:     log.New(zap.New(zcore)),
		Metrics:    metrics.New(),
		NewCorrelationID: func() string {
			return fmt.Sprintf("corr-%d", ids.Add(1))
		},
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}

	svc, err := New(deps, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.svc = svc
	return h
}

// seedPlant registers an online device "dev-1" and plant 1 with threshold 30.
func (h *harness) seedPlant(lastWatered *time.Time) {
	h.store.addDevice("dev-1", model.DeviceOnline, testNow.Add(-time.Minute))
	h.store.addPlant(model.Plant{
		ID:                1,
		UserID:            1,
		Name:              "basil",
		DeviceKey:         "dev-1",
		MoistureThreshold: 30,
		AutoWateringOn:    true,
		LastWatered:       lastWatered,
	})
}

func (h *harness) countLogs(msg string) int {
	return h.logs.FilterMessage(msg).Len()
}

func ptr[T any](v T) *T { return &v }
