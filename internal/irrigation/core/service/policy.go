package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/internal/pkg/metrics"
	"github.com/autopeer-io/plantd/pkg/log"
)

type Action string

const (
	ActionTrigger Action = "trigger"
	ActionSkip    Action = "skip"
)

// Reason names the rule that produced a decision.
type Reason string

const (
	ReasonAutoWateringDisabled Reason = "AutoWateringDisabled"
	ReasonDeviceOffline        Reason = "DeviceOffline"
	ReasonNoMoistureData       Reason = "NoMoistureData"
	ReasonCooldownActive       Reason = "CooldownActive"
	ReasonAboveThreshold       Reason = "AboveThreshold"
	ReasonBelowThreshold       Reason = "BelowThreshold"
	ReasonTriggerInFlight      Reason = "TriggerInFlight"
	ReasonNoPlant              Reason = "NoPlant"
)

func (a Action) String() string { return string(a) }
func (r Reason) String() string { return string(r) }

// Decision is the outcome of one policy evaluation. Skips are values, not errors.
type Decision struct {
	Action   Action
	Reason   Reason
	Duration time.Duration
}

// Evaluation is the input of the decision rules.
type Evaluation struct {
	Plant        model.Plant
	DeviceStatus model.DeviceStatus
	Moisture     *float64
}

// Decide applies the watering rules in order; the first match wins.
func Decide(policy PolicyConfig, in Evaluation, now time.Time) Decision {
	switch {
	case !in.Plant.AutoWateringOn:
		return Decision{Action: ActionSkip, Reason: ReasonAutoWateringDisabled}
	case in.DeviceStatus != model.DeviceOnline:
		return Decision{Action: ActionSkip, Reason: ReasonDeviceOffline}
	case in.Moisture == nil:
		return Decision{Action: ActionSkip, Reason: ReasonNoMoistureData}
	case in.Plant.LastWatered != nil && now.Sub(*in.Plant.LastWatered) < policy.Cooldown:
		return Decision{Action: ActionSkip, Reason: ReasonCooldownActive}
	case *in.Moisture >= float64(in.Plant.MoistureThreshold):
		return Decision{Action: ActionSkip, Reason: ReasonAboveThreshold}
	}

	return Decision{
		Action:   ActionTrigger,
		Reason:   ReasonBelowThreshold,
		Duration: min(policy.DefaultDuration, policy.MaxDuration),
	}
}

// PolicyEngine evaluates plants after each stored reading and dispatches
// automatic watering commands.
type PolicyEngine struct {
	registry   core.Registry
	policy     *PolicySource
	gates      *PlantGates
	dispatcher *Dispatcher
	clock      clock.PassiveClock
	logger     log.Logger
	metrics    *metrics.Metrics
}

// EvaluateReading runs the policy for the plant bound to the reading's device.
func (e *PolicyEngine) EvaluateReading(ctx context.Context, stored model.StoredReading) (Decision, error) {
	deviceKey := stored.Reading.DeviceKey

	plant, err := e.registry.FindPlantByDeviceKey(ctx, deviceKey)
	if errors.Is(err, core.ErrNotFound) {
		e.logger.Debug("No plant bound to device", "device", deviceKey)
		return e.observe(Decision{Action: ActionSkip, Reason: ReasonNoPlant}), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("%w: find plant for device %s: %w", core.ErrPersistence, deviceKey, err)
	}

	return e.Evaluate(ctx, Evaluation{
		Plant:        *plant,
		DeviceStatus: stored.DeviceStatus,
		Moisture:     stored.Reading.SoilMoisture,
	})
}

// Evaluate decides for one plant and, on a trigger, dispatches an ON command.
// The plant stays awaiting acknowledgement until the ack processor releases it.
func (e *PolicyEngine) Evaluate(ctx context.Context, in Evaluation) (Decision, error) {
	plantID := in.Plant.ID
	logger := e.logger.WithValues("plant", plantID, "device", in.Plant.DeviceKey)

	if err := e.gates.Begin(ctx, plantID); err != nil {
		if errors.Is(err, core.ErrTriggerInFlight) {
			logger.Info("Skipping evaluation", "reason", ReasonTriggerInFlight)
			return e.observe(Decision{Action: ActionSkip, Reason: ReasonTriggerInFlight}), nil
		}
		return Decision{}, err
	}

	d := e.observe(Decide(e.policy.Load(), in, e.clock.Now()))

	if d.Action == ActionSkip {
		if d.Reason == ReasonCooldownActive {
			logger.Info("Skipping watering", "reason", d.Reason, "lastWatered", in.Plant.LastWatered)
		} else {
			logger.Debug("Skipping watering", "reason", d.Reason, "moisture", in.Moisture, "threshold", in.Plant.MoistureThreshold)
		}
		return d, e.gates.Skip(ctx, plantID)
	}

	logger.Info("Watering triggered", "moisture", *in.Moisture, "threshold", in.Plant.MoistureThreshold, "duration", d.Duration)

	if err := e.gates.Trigger(ctx, plantID); err != nil {
		e.gates.Release(ctx, plantID)
		return d, err
	}

	if _, err := e.dispatcher.Dispatch(ctx, model.CommandRequest{
		DeviceKey: in.Plant.DeviceKey,
		PlantID:   plantID,
		Command:   model.CommandOn,
		Duration:  d.Duration,
		Trigger:   model.TriggerAutomaticThreshold,
	}); err != nil {
		e.gates.Release(ctx, plantID)
		return d, err
	}

	return d, nil
}

func (e *PolicyEngine) observe(d Decision) Decision {
	e.metrics.ObservePolicyDecision(string(d.Action), string(d.Reason))
	return d
}
