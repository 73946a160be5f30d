package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/internal/pkg/metrics"
	"github.com/autopeer-io/plantd/pkg/log"
)

type pendingCommand struct {
	req model.CommandRequest
	seq uint64

	// deadline is zero while the command is still being dispatched.
	deadline time.Time
}

// AckProcessor correlates device command results with the commands that were
// published, records confirmed waterings and releases plant gates.
type AckProcessor struct {
	mu      sync.Mutex
	pending map[string]*pendingCommand
	seq     uint64

	registry core.Registry
	watering core.WateringStore
	gates    *PlantGates
	grace    time.Duration
	clock    clock.PassiveClock
	journal  *Journal
	logger   log.Logger
	metrics  *metrics.Metrics
}

// Track registers a command about to be published. It does not expire until
// Published is called for it.
func (a *AckProcessor) Track(req model.CommandRequest) {
	a.mu.Lock()
	a.seq++
	a.pending[req.CorrelationID] = &pendingCommand{
		req: req,
		seq: a.seq,
	}
	n := len(a.pending)
	a.mu.Unlock()

	a.metrics.SetPendingCommands(n)
}

// Published starts the acknowledgement deadline of a tracked command: its
// duration plus the grace period from now. Commands already acknowledged are
// ignored.
func (a *AckProcessor) Published(correlationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.pending[correlationID]; ok {
		p.deadline = a.clock.Now().Add(p.req.Duration + a.grace)
	}
}

// Forget drops a command that will never be acknowledged.
func (a *AckProcessor) Forget(correlationID string) {
	a.mu.Lock()
	delete(a.pending, correlationID)
	n := len(a.pending)
	a.mu.Unlock()

	a.metrics.SetPendingCommands(n)
}

// Pending returns the number of commands awaiting acknowledgement.
func (a *AckProcessor) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Process handles one command result. Unmatched results are logged and dropped.
func (a *AckProcessor) Process(ctx context.Context, res model.CommandResult) error {
	p, ok := a.take(res)
	if !ok {
		a.metrics.ObserveAck("unmatched")
		a.logger.Warn("Dropping unmatched command result",
			"device", res.DeviceKey, "command", res.Command, "status", res.Status, "correlationID", res.CorrelationID)
		return nil
	}

	req := p.req
	defer a.release(ctx, req)

	switch res.Status {
	case model.AckExecuted:
		a.metrics.ObserveAck("executed")
		return a.executed(ctx, req)

	case model.AckFailed:
		a.metrics.ObserveAck("failed")
		err := fmt.Errorf("device %s failed %s: %s", req.DeviceKey, req.Command, res.ErrorMessage)
		a.logger.Error(err, "Device reported command failure",
			"device", req.DeviceKey, "plant", req.PlantID, "command", req.Command,
			"correlationID", req.CorrelationID, "error_code", res.ErrorCode)
		a.journal.Record(ctx, model.LogError, "ack",
			"Command %s on device %s failed (code %q): %s", req.Command, req.DeviceKey, res.ErrorCode, res.ErrorMessage)
		return nil
	}

	return fmt.Errorf("%w: unknown command status %q", core.ErrMalformedMessage, res.Status)
}

// Expire drops commands whose acknowledgement deadline has passed and
// releases their plants. It returns the number of expired commands.
func (a *AckProcessor) Expire(ctx context.Context) int {
	now := a.clock.Now()

	a.mu.Lock()
	var expired []model.CommandRequest
	for id, p := range a.pending {
		if !p.deadline.IsZero() && now.After(p.deadline) {
			expired = append(expired, p.req)
			delete(a.pending, id)
		}
	}
	n := len(a.pending)
	a.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}
	a.metrics.SetPendingCommands(n)

	for _, req := range expired {
		a.metrics.ObserveAck("expired")
		err := errors.New("no-response")
		a.logger.Error(err, "Command was not acknowledged in time",
			"device", req.DeviceKey, "plant", req.PlantID, "command", req.Command, "correlationID", req.CorrelationID)
		a.journal.Record(ctx, model.LogError, "ack",
			"No response from device %s to command %s (%s)", req.DeviceKey, req.Command, req.CorrelationID)
		a.release(ctx, req)
	}
	return len(expired)
}

// take removes and returns the pending command matching res: by correlation
// id when the device sent one, otherwise the oldest pending command for the
// same device and command.
func (a *AckProcessor) take(res model.CommandResult) (*pendingCommand, bool) {
	a.mu.Lock()
	defer func() {
		n := len(a.pending)
		a.mu.Unlock()
		a.metrics.SetPendingCommands(n)
	}()

	if res.CorrelationID != "" {
		p, ok := a.pending[res.CorrelationID]
		if !ok || p.req.DeviceKey != res.DeviceKey {
			return nil, false
		}
		delete(a.pending, res.CorrelationID)
		return p, true
	}

	var oldest *pendingCommand
	for _, p := range a.pending {
		if p.req.DeviceKey != res.DeviceKey {
			continue
		}
		if res.Command != "" && p.req.Command != res.Command {
			continue
		}
		if oldest == nil || p.seq < oldest.seq {
			oldest = p
		}
	}
	if oldest == nil {
		return nil, false
	}
	delete(a.pending, oldest.req.CorrelationID)
	return oldest, true
}

func (a *AckProcessor) executed(ctx context.Context, req model.CommandRequest) error {
	if req.Command != model.CommandOn || req.PlantID == 0 {
		a.logger.Info("Command executed", "device", req.DeviceKey, "command", req.Command, "correlationID", req.CorrelationID)
		return nil
	}

	now := a.clock.Now()
	deviceKey := req.DeviceKey
	event := &model.WateringEvent{
		PlantID:         req.PlantID,
		Timestamp:       now,
		TriggerType:     req.Trigger,
		DurationSeconds: int(req.Duration / time.Second),
		DeviceKey:       &deviceKey,
	}

	if err := a.watering.InsertWateringEvent(ctx, event); err != nil {
		return a.persistenceFailure(ctx, fmt.Errorf("%w: insert watering event for plant %d: %w", core.ErrPersistence, req.PlantID, err))
	}
	if err := a.registry.UpdatePlantLastWatered(ctx, req.PlantID, now); err != nil {
		return a.persistenceFailure(ctx, fmt.Errorf("%w: update last watered for plant %d: %w", core.ErrPersistence, req.PlantID, err))
	}

	a.logger.Info("Plant watered",
		"plant", req.PlantID, "device", req.DeviceKey, "trigger", req.Trigger,
		"durationSeconds", event.DurationSeconds, "correlationID", req.CorrelationID)
	a.journal.Record(ctx, model.LogInfo, "watering",
		"Plant %d watered for %ds (%s)", req.PlantID, event.DurationSeconds, req.Trigger)
	return nil
}

func (a *AckProcessor) persistenceFailure(ctx context.Context, err error) error {
	a.journal.Record(ctx, model.LogError, "watering", "%v", err)
	return err
}

func (a *AckProcessor) release(ctx context.Context, req model.CommandRequest) {
	if req.PlantID != 0 && req.Command == model.CommandOn {
		a.gates.Release(ctx, req.PlantID)
	}
}
