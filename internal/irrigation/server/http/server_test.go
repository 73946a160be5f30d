package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/internal/pkg/metrics"
	"github.com/autopeer-io/plantd/pkg/log"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	since, until time.Time
	deviceKey    string
	plantID      int64
	duration     time.Duration
	command      model.Command
	err          error
}

func (f *fakeAPI) ReadingsForDevice(_ context.Context, key string, since, until time.Time) ([]model.SensorReading, error) {
	f.deviceKey, f.since, f.until = key, since, until
	if f.err != nil {
		return nil, f.err
	}
	m := 22.5
	return []model.SensorReading{{ID: 1, DeviceKey: key, Timestamp: since, SoilMoisture: &m}}, nil
}

func (f *fakeAPI) WateringEventsForPlant(_ context.Context, id int64, since, until time.Time) ([]model.WateringEvent, error) {
	f.plantID, f.since, f.until = id, since, until
	return nil, f.err
}

func (f *fakeAPI) WaterPlant(_ context.Context, id int64, d time.Duration) (model.CommandRequest, error) {
	f.plantID, f.duration = id, d
	if f.err != nil {
		return model.CommandRequest{}, f.err
	}
	return model.CommandRequest{DeviceKey: "dev-1", PlantID: id, Command: model.CommandOn, Duration: 15 * time.Second, CorrelationID: "corr-1", Attempts: 1}, nil
}

func (f *fakeAPI) SendCommand(_ context.Context, key string, cmd model.Command) (model.CommandRequest, error) {
	f.deviceKey, f.command = key, cmd
	if f.err != nil {
		return model.CommandRequest{}, f.err
	}
	return model.CommandRequest{DeviceKey: key, Command: cmd, CorrelationID: "corr-2", Attempts: 2}, nil
}

func newTestHandler(api API, checks ...Check) (http.Handler, *metrics.Metrics) {
	m := metrics.New()
	srv := NewServer(Config{Addr: "127.0.0.1:0"}, api, checks, m, clocktesting.NewFakePassiveClock(now), log.NewNopLogger())
	return srv.Handler(), m
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	h, _ := newTestHandler(&fakeAPI{})
	if rec := do(h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}

	h, _ = newTestHandler(&fakeAPI{},
		Check{Name: "store", Run: func(context.Context) error { return nil }},
		Check{Name: "transport", Run: func(context.Context) error { return errors.New("disconnected") }},
	)
	rec := do(h, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"transport":"disconnected"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestListReadings(t *testing.T) {
	api := &fakeAPI{}
	h, _ := newTestHandler(api)

	rec := do(h, http.MethodGet, "/api/v1/devices/dev-1/readings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if api.deviceKey != "dev-1" || !api.until.Equal(now) || !api.since.Equal(now.Add(-24*time.Hour)) {
		t.Errorf("query = %s [%v, %v)", api.deviceKey, api.since, api.until)
	}

	var body struct {
		Readings []model.SensorReading `json:"readings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Readings) != 1 || *body.Readings[0].SoilMoisture != 22.5 {
		t.Errorf("readings = %+v", body.Readings)
	}

	rec = do(h, http.MethodGet, "/api/v1/devices/dev-1/readings?since=2026-04-30T00:00:00Z&until=2026-05-01T00:00:00Z", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !api.since.Equal(time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since = %v", api.since)
	}
}

func TestListWateringEventsEmpty(t *testing.T) {
	api := &fakeAPI{}
	h, _ := newTestHandler(api)

	rec := do(h, http.MethodGet, "/api/v1/plants/7/watering-events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if api.plantID != 7 {
		t.Errorf("plant = %d", api.plantID)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"watering_events":[]}` {
		t.Errorf("body = %s", got)
	}
}

func TestWaterPlant(t *testing.T) {
	api := &fakeAPI{}
	h, _ := newTestHandler(api)

	rec := do(h, http.MethodPost, "/api/v1/plants/3/water", `{"duration_seconds": 20}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if api.plantID != 3 || api.duration != 20*time.Second {
		t.Errorf("WaterPlant(%d, %v)", api.plantID, api.duration)
	}
	if !strings.Contains(rec.Body.String(), `"correlation_id":"corr-1"`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = do(h, http.MethodPost, "/api/v1/plants/3/water", "")
	if rec.Code != http.StatusAccepted || api.duration != 0 {
		t.Errorf("empty body: status = %d, duration = %v", rec.Code, api.duration)
	}
}

func TestSendCommand(t *testing.T) {
	api := &fakeAPI{}
	h, _ := newTestHandler(api)

	rec := do(h, http.MethodPost, "/api/v1/devices/dev-9/commands", `{"command": "OFF"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if api.deviceKey != "dev-9" || api.command != model.CommandOff {
		t.Errorf("SendCommand(%s, %s)", api.deviceKey, api.command)
	}

	if rec := do(h, http.MethodPost, "/api/v1/devices/dev-9/commands", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing command status = %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: 500s", core.ErrInvalidDuration), http.StatusBadRequest},
		{core.ErrInvalidCommand, http.StatusBadRequest},
		{fmt.Errorf("plant 3: %w", core.ErrNotFound), http.StatusNotFound},
		{core.ErrTriggerInFlight, http.StatusConflict},
		{core.ErrDeviceOffline, http.StatusConflict},
		{core.ErrCommandFailedPermanently, http.StatusServiceUnavailable},
		{core.ErrTransportUnavailable, http.StatusServiceUnavailable},
		{core.ErrPersistence, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h, _ := newTestHandler(&fakeAPI{err: tt.err})
		rec := do(h, http.MethodPost, "/api/v1/plants/3/water", "")
		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestBadRequests(t *testing.T) {
	api := &fakeAPI{}
	h, _ := newTestHandler(api)

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodGet, "/api/v1/devices/dev-1/readings?since=yesterday", ""},
		{http.MethodGet, "/api/v1/devices/dev-1/readings?since=2026-05-02T00:00:00Z&until=2026-05-01T00:00:00Z", ""},
		{http.MethodPost, "/api/v1/plants/3/water", `{"duration_seconds": -1}`},
		{http.MethodPost, "/api/v1/plants/3/water", `{"duration_seconds": 36028797018963983}`},
		{http.MethodPost, "/api/v1/plants/3/water", `{"minutes": 2}`},
		{http.MethodPost, "/api/v1/plants/3/water", `{`},
	} {
		if rec := do(h, tc.method, tc.target, tc.body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s %s %q: status = %d, want 400", tc.method, tc.target, tc.body, rec.Code)
		}
	}

	if rec := do(h, http.MethodPost, "/api/v1/plants/abc/water", ""); rec.Code != http.StatusNotFound {
		t.Errorf("non-numeric plant id: status = %d, want 404", rec.Code)
	}
	if api.plantID != 0 || api.duration != 0 {
		t.Errorf("rejected request reached the service: plant %d, duration %s", api.plantID, api.duration)
	}
}

func TestServerTimeouts(t *testing.T) {
	srv := NewServer(Config{Addr: "127.0.0.1:0", ReadTimeout: 10 * time.Second, WriteTimeout: 51 * time.Second},
		&fakeAPI{}, nil, nil, nil, log.NewNopLogger())

	if srv.server.WriteTimeout != 51*time.Second || srv.server.ReadTimeout != 10*time.Second {
		t.Errorf("timeouts = read %s, write %s", srv.server.ReadTimeout, srv.server.WriteTimeout)
	}
	if srv.shutdownTimeout != 5*time.Second {
		t.Errorf("shutdown timeout = %s, want 5s default", srv.shutdownTimeout)
	}
}

func TestRequestsAreInstrumented(t *testing.T) {
	h, _ := newTestHandler(&fakeAPI{})
	do(h, http.MethodGet, "/api/v1/devices/dev-1/readings", "")

	rec := do(h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/api/v1/devices/{key}/readings"`) {
		t.Errorf("request not recorded by route template")
	}
}
