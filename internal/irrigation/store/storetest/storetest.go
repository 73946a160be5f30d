// Package storetest holds the behaviour every irrigation store backend must
// share. Backends call Run from their own tests with a factory that returns
// an empty store.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
)

// Store is a core.Store that can also be seeded with devices and plants.
type Store interface {
	core.Store
	CreateDevice(ctx context.Context, d model.Device) error
	CreatePlant(ctx context.Context, p *model.Plant) error
}

// Factory returns an empty, migrated store. It registers its own cleanup.
type Factory func(t *testing.T) Store

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

// Run executes the conformance suite against stores built by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"FindDeviceNotFound", testFindDeviceNotFound},
		{"RecordReadingMarksOnline", testRecordReadingMarksOnline},
		{"RecordReadingUnknownDevice", testRecordReadingUnknownDevice},
		{"LastSeenIsReceiveTime", testLastSeenIsReceiveTime},
		{"UpdateDeviceStatusKeepsMetadata", testUpdateDeviceStatus},
		{"StaleDevices", testStaleDevices},
		{"Plants", testPlants},
		{"ListReadings", testListReadings},
		{"RetentionQueries", testRetentionQueries},
		{"WateringEvents", testWateringEvents},
		{"SystemLogs", testSystemLogs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func seedDevice(t *testing.T, s Store, key string, status model.DeviceStatus, lastSeen *time.Time) {
	t.Helper()
	err := s.CreateDevice(context.Background(), model.Device{
		Key: key, UserID: 1, Name: key, Status: status, LastSeen: lastSeen,
	})
	if err != nil {
		t.Fatalf("CreateDevice(%s): %v", key, err)
	}
}

func testFindDeviceNotFound(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.FindDevice(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindDevice err = %v, want ErrNotFound", err)
	}
	if _, err := s.FindPlant(ctx, 42); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindPlant err = %v, want ErrNotFound", err)
	}
	if _, err := s.FindPlantByDeviceKey(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindPlantByDeviceKey err = %v, want ErrNotFound", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func testRecordReadingMarksOnline(t *testing.T, s Store) {
	ctx := context.Background()
	seedDevice(t, s, "dev-1", model.DeviceOffline, nil)

	r := &model.SensorReading{
		DeviceKey:    "dev-1",
		Timestamp:    base,
		SoilMoisture: ptr(25.5),
		Temperature:  ptr(21.0),
	}
	prev, err := s.RecordReading(ctx, r, base)
	if err != nil {
		t.Fatalf("RecordReading: %v", err)
	}
	if prev != model.DeviceOffline {
		t.Errorf("previous status = %q, want offline", prev)
	}
	if r.ID == 0 {
		t.Error("reading ID was not assigned")
	}

	d, err := s.FindDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("FindDevice: %v", err)
	}
	if d.Status != model.DeviceOnline {
		t.Errorf("status = %q, want online", d.Status)
	}
	if d.LastSeen == nil || !d.LastSeen.Equal(base) {
		t.Errorf("last seen = %v, want %v", d.LastSeen, base)
	}

	prev, err = s.RecordReading(ctx, &model.SensorReading{DeviceKey: "dev-1", Timestamp: base.Add(time.Minute)}, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("RecordReading: %v", err)
	}
	if prev != model.DeviceOnline {
		t.Errorf("previous status = %q, want online", prev)
	}

	got, err := s.ListReadings(ctx, "dev-1", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListReadings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d readings, want 2", len(got))
	}
	first := got[0]
	if first.SoilMoisture == nil || *first.SoilMoisture != 25.5 {
		t.Errorf("soil moisture = %v, want 25.5", first.SoilMoisture)
	}
	if first.AirHumidity != nil || first.LightIntensity != nil {
		t.Errorf("absent measurements came back as %v, %v", first.AirHumidity, first.LightIntensity)
	}
	if got[1].SoilMoisture != nil {
		t.Errorf("second reading moisture = %v, want nil", *got[1].SoilMoisture)
	}
}

func testRecordReadingUnknownDevice(t *testing.T, s Store) {
	_, err := s.RecordReading(context.Background(), &model.SensorReading{DeviceKey: "ghost", Timestamp: base}, base)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("RecordReading err = %v, want ErrNotFound", err)
	}

	got, err := s.ListReadingsBefore(context.Background(), base.Add(time.Hour), 0, 10)
	if err != nil {
		t.Fatalf("ListReadingsBefore: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("unknown device reading was stored: %+v", got)
	}
}

func testLastSeenIsReceiveTime(t *testing.T, s Store) {
	ctx := context.Background()
	seedDevice(t, s, "dev-1", model.DeviceOnline, ptr(base))

	// The device clock lags two hours behind the receive time.
	received := base.Add(time.Minute)
	if _, err := s.RecordReading(ctx, &model.SensorReading{DeviceKey: "dev-1", Timestamp: base.Add(-2 * time.Hour)}, received); err != nil {
		t.Fatalf("RecordReading: %v", err)
	}

	d, err := s.FindDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("FindDevice: %v", err)
	}
	if d.LastSeen == nil || !d.LastSeen.Equal(received) {
		t.Errorf("last seen = %v, want receive time %v", d.LastSeen, received)
	}

	got, err := s.ListReadings(ctx, "dev-1", base.Add(-3*time.Hour), base)
	if err != nil {
		t.Fatalf("ListReadings: %v", err)
	}
	if len(got) != 1 || !got[0].Timestamp.Equal(base.Add(-2*time.Hour)) {
		t.Errorf("readings = %+v, want one stamped with the device time", got)
	}

	// A status report carrying an older receive time never moves last_seen back.
	if _, err := s.UpdateDeviceStatus(ctx, "dev-1", model.DeviceStatusUpdate{
		Status: model.DeviceOnline, SeenAt: base.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("UpdateDeviceStatus: %v", err)
	}
	d, err = s.FindDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("FindDevice: %v", err)
	}
	if d.LastSeen == nil || !d.LastSeen.Equal(received) {
		t.Errorf("last seen after status = %v, want %v", d.LastSeen, received)
	}
}

func testUpdateDeviceStatus(t *testing.T, s Store) {
	ctx := context.Background()
	seedDevice(t, s, "dev-1", model.DeviceOnline, ptr(base))

	prev, err := s.UpdateDeviceStatus(ctx, "dev-1", model.DeviceStatusUpdate{
		Status:          model.DeviceError,
		SeenAt:          base.Add(time.Minute),
		FirmwareVersion: ptr("1.2.0"),
		BatteryLevel:    ptr(80),
		SignalStrength:  ptr(-60),
	})
	if err != nil {
		t.Fatalf("UpdateDeviceStatus: %v", err)
	}
	if prev != model.DeviceOnline {
		t.Errorf("previous status = %q, want online", prev)
	}

	prev, err = s.UpdateDeviceStatus(ctx, "dev-1", model.DeviceStatusUpdate{
		Status:       model.DeviceOnline,
		SeenAt:       base.Add(2 * time.Minute),
		BatteryLevel: ptr(75),
	})
	if err != nil {
		t.Fatalf("UpdateDeviceStatus: %v", err)
	}
	if prev != model.DeviceError {
		t.Errorf("previous status = %q, want error", prev)
	}

	d, err := s.FindDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("FindDevice: %v", err)
	}
	if d.Status != model.DeviceOnline {
		t.Errorf("status = %q, want online", d.Status)
	}
	if d.FirmwareVersion == nil || *d.FirmwareVersion != "1.2.0" {
		t.Errorf("firmware = %v, want 1.2.0", d.FirmwareVersion)
	}
	if d.BatteryLevel == nil || *d.BatteryLevel != 75 {
		t.Errorf("battery = %v, want 75", d.BatteryLevel)
	}
	if d.SignalStrength == nil || *d.SignalStrength != -60 {
		t.Errorf("signal = %v, want -60", d.SignalStrength)
	}
	if d.LastSeen == nil || !d.LastSeen.Equal(base.Add(2*time.Minute)) {
		t.Errorf("last seen = %v", d.LastSeen)
	}

	_, err = s.UpdateDeviceStatus(ctx, "ghost", model.DeviceStatusUpdate{Status: model.DeviceOnline, SeenAt: base})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateDeviceStatus(ghost) err = %v, want ErrNotFound", err)
	}
}

func testStaleDevices(t *testing.T, s Store) {
	ctx := context.Background()
	seedDevice(t, s, "stale", model.DeviceOnline, ptr(base.Add(-2*time.Hour)))
	seedDevice(t, s, "fresh", model.DeviceOnline, ptr(base.Add(-time.Minute)))
	seedDevice(t, s, "already", model.DeviceOffline, ptr(base.Add(-3*time.Hour)))
	seedDevice(t, s, "broken", model.DeviceError, ptr(base.Add(-5*time.Hour)))

	cutoff := base.Add(-time.Hour)
	stale, err := s.ListStaleDevices(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListStaleDevices: %v", err)
	}
	var keys []string
	for _, d := range stale {
		keys = append(keys, d.Key)
	}
	if len(keys) != 2 || keys[0] != "broken" || keys[1] != "stale" {
		t.Fatalf("stale devices = %v, want [broken stale]", keys)
	}

	// A reading that lands between listing and marking wins.
	if _, err := s.RecordReading(ctx, &model.SensorReading{DeviceKey: "broken", Timestamp: base}, base); err != nil {
		t.Fatalf("RecordReading: %v", err)
	}

	marked, err := s.MarkDeviceOffline(ctx, "stale", cutoff)
	if err != nil || !marked {
		t.Errorf("MarkDeviceOffline(stale) = %v, %v; want true", marked, err)
	}
	marked, err = s.MarkDeviceOffline(ctx, "stale", cutoff)
	if err != nil || marked {
		t.Errorf("second MarkDeviceOffline(stale) = %v, %v; want false", marked, err)
	}
	marked, err = s.MarkDeviceOffline(ctx, "broken", cutoff)
	if err != nil || marked {
		t.Errorf("MarkDeviceOffline(broken) = %v, %v; want false", marked, err)
	}

	d, err := s.FindDevice(ctx, "stale")
	if err != nil {
		t.Fatalf("FindDevice: %v", err)
	}
	if d.Status != model.DeviceOffline {
		t.Errorf("status = %q, want offline", d.Status)
	}
}

func testPlants(t *testing.T, s Store) {
	ctx := context.Background()
	seedDevice(t, s, "dev-1", model.DeviceOnline, ptr(base))

	p := &model.Plant{UserID: 1, Name: "basil", DeviceKey: "dev-1", MoistureThreshold: 35, AutoWateringOn: true}
	if err := s.CreatePlant(ctx, p); err != nil {
		t.Fatalf("CreatePlant: %v", err)
	}
	if p.ID == 0 {
		t.Fatal("plant ID was not assigned")
	}

	got, err := s.FindPlantByDeviceKey(ctx, "dev-1")
	if err != nil {
		t.Fatalf("FindPlantByDeviceKey: %v", err)
	}
	if got.ID != p.ID || got.Name != "basil" || got.MoistureThreshold != 35 || !got.AutoWateringOn {
		t.Errorf("plant = %+v", got)
	}
	if got.LastWatered != nil {
		t.Errorf("last watered = %v, want nil", got.LastWatered)
	}

	watered := base.Add(5 * time.Minute)
	if err := s.UpdatePlantLastWatered(ctx, p.ID, watered); err != nil {
		t.Fatalf("UpdatePlantLastWatered: %v", err)
	}
	got, err = s.FindPlant(ctx, p.ID)
	if err != nil {
		t.Fatalf("FindPlant: %v", err)
	}
	if got.LastWatered == nil || !got.LastWatered.Equal(watered) {
		t.Errorf("last watered = %v, want %v", got.LastWatered, watered)
	}

	if err := s.UpdatePlantLastWatered(ctx, p.ID+100, watered); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdatePlantLastWatered(missing) err = %v, want ErrNotFound", err)
	}
}

func testListReadings(t *testing.T, s Store) {
	ctx := context.Background()
	seedDevice(t, s, "dev-1", model.DeviceOnline, ptr(base))
	seedDevice(t, s, "dev-2", model.DeviceOnline, ptr(base))

	for i := 0; i < 5; i++ {
		if _, err := s.RecordReading(ctx, &model.SensorReading{
			DeviceKey: "dev-1", Timestamp: base.Add(time.Duration(i) * time.Minute), SoilMoisture: ptr(float64(i)),
		}, base); err != nil {
			t.Fatalf("RecordReading: %v", err)
		}
	}
	if _, err := s.RecordReading(ctx, &model.SensorReading{DeviceKey: "dev-2", Timestamp: base}, base); err != nil {
		t.Fatalf("RecordReading: %v", err)
	}

	got, err := s.ListReadings(ctx, "dev-1", base.Add(time.Minute), base.Add(4*time.Minute))
	if err != nil {
		t.Fatalf("ListReadings: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d readings, want 3", len(got))
	}
	for i, r := range got {
		want := base.Add(time.Duration(i+1) * time.Minute)
		if !r.Timestamp.Equal(want) {
			t.Errorf("reading %d at %v, want %v", i, r.Timestamp, want)
		}
		if r.DeviceKey != "dev-1" {
			t.Errorf("reading %d from %s", i, r.DeviceKey)
		}
	}
}

func testRetentionQueries(t *testing.T, s Store) {
	ctx := context.Background()
	seedDevice(t, s, "dev-1", model.DeviceOnline, ptr(base))

	for i := 0; i < 5; i++ {
		if _, err := s.RecordReading(ctx, &model.SensorReading{
			DeviceKey: "dev-1", Timestamp: base.Add(time.Duration(i) * time.Hour),
		}, base); err != nil {
			t.Fatalf("RecordReading: %v", err)
		}
	}
	cutoff := base.Add(3 * time.Hour)

	var (
		seen    int
		afterID int64
	)
	for {
		batch, err := s.ListReadingsBefore(ctx, cutoff, afterID, 2)
		if err != nil {
			t.Fatalf("ListReadingsBefore: %v", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, r := range batch {
			if r.ID <= afterID {
				t.Fatalf("id %d not after %d", r.ID, afterID)
			}
			if !r.Timestamp.Before(cutoff) {
				t.Errorf("reading at %v is not before cutoff", r.Timestamp)
			}
			afterID = r.ID
		}
		seen += len(batch)
	}
	if seen != 3 {
		t.Errorf("paged %d readings, want 3", seen)
	}

	// A late reading older than the cutoff lands after paging finished.
	late := &model.SensorReading{DeviceKey: "dev-1", Timestamp: base.Add(-time.Hour)}
	if _, err := s.RecordReading(ctx, late, base); err != nil {
		t.Fatalf("RecordReading: %v", err)
	}

	n, err := s.DeleteReadingsBefore(ctx, cutoff, afterID)
	if err != nil {
		t.Fatalf("DeleteReadingsBefore: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted %d readings, want 3", n)
	}
	left, err := s.ListReadings(ctx, "dev-1", base.Add(-2*time.Hour), base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListReadings: %v", err)
	}
	if len(left) != 3 {
		t.Errorf("%d readings left, want 3", len(left))
	}

	if n, err = s.DeleteReadingsBefore(ctx, cutoff, 0); err != nil || n != 1 {
		t.Errorf("unbounded delete = %d, %v; want 1 late reading", n, err)
	}
}

func testWateringEvents(t *testing.T, s Store) {
	ctx := context.Background()
	seedDevice(t, s, "dev-1", model.DeviceOnline, ptr(base))
	p := &model.Plant{UserID: 1, Name: "fern", DeviceKey: "dev-1", MoistureThreshold: 30, AutoWateringOn: true}
	if err := s.CreatePlant(ctx, p); err != nil {
		t.Fatalf("CreatePlant: %v", err)
	}

	events := []*model.WateringEvent{
		{PlantID: p.ID, Timestamp: base, TriggerType: model.TriggerAutomaticThreshold, DurationSeconds: 15, DeviceKey: ptr("dev-1")},
		{PlantID: p.ID, Timestamp: base.Add(2 * time.Hour), TriggerType: model.TriggerManual, DurationSeconds: 30},
	}
	for _, e := range events {
		if err := s.InsertWateringEvent(ctx, e); err != nil {
			t.Fatalf("InsertWateringEvent: %v", err)
		}
		if e.ID == 0 {
			t.Fatal("event ID was not assigned")
		}
	}

	got, err := s.ListWateringEvents(ctx, p.ID, base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListWateringEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].TriggerType != model.TriggerAutomaticThreshold || got[0].DurationSeconds != 15 {
		t.Errorf("first event = %+v", got[0])
	}
	if got[0].DeviceKey == nil || *got[0].DeviceKey != "dev-1" {
		t.Errorf("first event device = %v", got[0].DeviceKey)
	}
	if got[1].TriggerType != model.TriggerManual || got[1].DeviceKey != nil {
		t.Errorf("second event = %+v", got[1])
	}

	got, err = s.ListWateringEvents(ctx, p.ID, base.Add(time.Hour), base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListWateringEvents: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d events in window, want 1", len(got))
	}
}

func testSystemLogs(t *testing.T, s Store) {
	ctx := context.Background()

	old := &model.SystemLogEntry{Timestamp: base.Add(-48 * time.Hour), Level: model.LogWarning, Source: "monitor", Message: "Device dev-1 went offline"}
	recent := &model.SystemLogEntry{Timestamp: base, Level: model.LogInfo, Source: "telemetry", Message: "Device dev-1 came online"}
	for _, e := range []*model.SystemLogEntry{old, recent} {
		if err := s.AppendSystemLog(ctx, e); err != nil {
			t.Fatalf("AppendSystemLog: %v", err)
		}
		if e.ID == 0 {
			t.Fatal("log ID was not assigned")
		}
	}

	n, err := s.DeleteSystemLogsBefore(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteSystemLogsBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d logs, want 1", n)
	}
}
