package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/pkg/log"
)

// defaultWindow is the range served when a query names no since.
const defaultWindow = 24 * time.Hour

var errBadRequest = errors.New("bad request")

type handlers struct {
	api    API
	checks []Check
	clock  clock.PassiveClock
	logger log.Logger
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range h.checks {
		if err := c.Run(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) listReadings(w http.ResponseWriter, r *http.Request) {
	since, until, err := h.window(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	readings, err := h.api.ReadingsForDevice(r.Context(), mux.Vars(r)["key"], since, until)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if readings == nil {
		readings = []model.SensorReading{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings})
}

func (h *handlers) listWateringEvents(w http.ResponseWriter, r *http.Request) {
	id, err := plantID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	since, until, err := h.window(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	events, err := h.api.WateringEventsForPlant(r.Context(), id, since, until)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []model.WateringEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"watering_events": events})
}

// maxDurationSeconds is the largest duration_seconds that converts to a
// time.Duration without overflowing.
const maxDurationSeconds = int64(math.MaxInt64 / int64(time.Second))

type waterRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

func (h *handlers) waterPlant(w http.ResponseWriter, r *http.Request) {
	id, err := plantID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body waterRequest
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if body.DurationSeconds < 0 {
		h.writeError(w, r, fmt.Errorf("%w: duration_seconds must not be negative", core.ErrInvalidDuration))
		return
	}
	if int64(body.DurationSeconds) > maxDurationSeconds {
		h.writeError(w, r, fmt.Errorf("%w: duration_seconds %d is out of range", core.ErrInvalidDuration, body.DurationSeconds))
		return
	}

	req, err := h.api.WaterPlant(r.Context(), id, time.Duration(body.DurationSeconds)*time.Second)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, commandResponse(req))
}

type commandRequest struct {
	Command model.Command `json:"command"`
}

func (h *handlers) sendCommand(w http.ResponseWriter, r *http.Request) {
	var body commandRequest
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if body.Command == "" {
		h.writeError(w, r, fmt.Errorf("%w: command is required", core.ErrInvalidCommand))
		return
	}

	req, err := h.api.SendCommand(r.Context(), mux.Vars(r)["key"], body.Command)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, commandResponse(req))
}

func commandResponse(req model.CommandRequest) map[string]any {
	resp := map[string]any{
		"correlation_id": req.CorrelationID,
		"device_key":     req.DeviceKey,
		"command":        req.Command,
		"attempts":       req.Attempts,
	}
	if req.Duration > 0 {
		resp["duration_seconds"] = int(req.Duration / time.Second)
	}
	return resp
}

// window parses since/until as RFC3339. until defaults to now and since to
// one day before until.
func (h *handlers) window(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()

	until := h.clock.Now()
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: until: %w", errBadRequest, err)
		}
		until = t
	}
	since := until.Add(-defaultWindow)
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: since: %w", errBadRequest, err)
		}
		since = t
	}
	if !since.Before(until) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: since must be before until", errBadRequest)
	}
	return since, until, nil
}

func plantID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: plant id: %w", errBadRequest, err)
	}
	return id, nil
}

// decodeBody accepts an empty body and leaves v untouched in that case.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrInvalidDuration),
		errors.Is(err, core.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTriggerInFlight),
		errors.Is(err, core.ErrDeviceOffline):
		return http.StatusConflict
	case errors.Is(err, core.ErrCommandFailedPermanently),
		errors.Is(err, core.ErrTransportUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(err, "Request failed", "method", r.Method, "path", r.URL.Path)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
