package service

import (
	"context"
	"testing"
	"time"

	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
)

func TestSweepIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.store.addDevice("stale-online", model.DeviceOnline, testNow.Add(-2*time.Hour))
	h.store.addDevice("stale-error", model.DeviceError, testNow.Add(-90*time.Minute))
	h.store.addDevice("fresh", model.DeviceOnline, testNow.Add(-10*time.Minute))
	h.store.addDevice("already-offline", model.DeviceOffline, testNow.Add(-48*time.Hour))

	n, err := h.svc.SweepDevices(context.Background())
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("first sweep changed %d devices, want 2", n)
	}

	n, err = h.svc.SweepDevices(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("second sweep changed %d devices", n)
	}
	if got := h.countLogs("Device went offline"); got != 2 {
		t.Fatalf("offline logs = %d, want 2", got)
	}

	want := map[string]model.DeviceStatus{
		"stale-online":    model.DeviceOffline,
		"stale-error":     model.DeviceOffline,
		"fresh":           model.DeviceOnline,
		"already-offline": model.DeviceOffline,
	}
	for key, status := range want {
		if got := h.store.device(key).Status; got != status {
			t.Errorf("%s status = %s, want %s", key, got, status)
		}
	}
}

func TestSweepSkipsDeviceRefreshedMeanwhile(t *testing.T) {
	h := newHarness(t)
	h.store.addDevice("dev-1", model.DeviceOnline, testNow.Add(-2*time.Hour))

	staleBefore := testNow.Add(-time.Hour)
	stale, err := h.store.ListStaleDevices(context.Background(), staleBefore)
	if err != nil || len(stale) != 1 {
		t.Fatalf("ListStaleDevices = %v, %v", stale, err)
	}

	// A reading lands between the listing and the conditional update.
	if _, err := h.svc.WriteReading(context.Background(), model.SensorReading{DeviceKey: "dev-1", Timestamp: testNow}); err != nil {
		t.Fatalf("WriteReading: %v", err)
	}

	changed, err := h.store.MarkDeviceOffline(context.Background(), "dev-1", staleBefore)
	if err != nil || changed {
		t.Fatalf("MarkDeviceOffline = %v, %v", changed, err)
	}
	if got := h.store.device("dev-1").Status; got != model.DeviceOnline {
		t.Fatalf("status = %s", got)
	}
}

func TestLaggingReadingTimestampKeepsDeviceOnline(t *testing.T) {
	h := newHarness(t)
	h.store.addDevice("dev-1", model.DeviceOffline, testNow.Add(-3*time.Hour))

	// The device clock runs two hours behind.
	if _, err := h.svc.WriteReading(context.Background(), model.SensorReading{
		DeviceKey: "dev-1", Timestamp: testNow.Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("WriteReading: %v", err)
	}

	d := h.store.device("dev-1")
	if d.LastSeen == nil || !d.LastSeen.Equal(testNow) {
		t.Fatalf("last seen = %v, want receive time %v", d.LastSeen, testNow)
	}

	n, err := h.svc.SweepDevices(context.Background())
	if err != nil {
		t.Fatalf("SweepDevices: %v", err)
	}
	if n != 0 || h.store.device("dev-1").Status != model.DeviceOnline {
		t.Fatalf("sweep changed %d devices, status = %s", n, h.store.device("dev-1").Status)
	}
}
