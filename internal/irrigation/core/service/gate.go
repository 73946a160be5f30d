package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	fsmutil "github.com/autopeer-io/plantd/internal/pkg/util/fsm"
	"github.com/autopeer-io/plantd/pkg/log"
)

// Plant gate states.
const (
	StateIdle        = "idle"
	StateEvaluating  = "evaluating"
	StateAwaitingAck = "awaiting_ack"
)

// Plant gate events.
const (
	EventEvaluate = "evaluate"
	EventSkip     = "skip"
	EventTrigger  = "trigger"
	EventRelease  = "release"
)

// PlantGates is an arena of per-plant state machines. A plant can only start
// an evaluation from idle, which guarantees at most one outstanding watering
// command per plant without a global lock.
type PlantGates struct {
	machines sync.Map // int64 -> *fsm.FSM
	logger   log.Logger
}

func NewPlantGates(logger log.Logger) *PlantGates {
	return &PlantGates{logger: logger}
}

func (g *PlantGates) machine(plantID int64) *fsm.FSM {
	if m, ok := g.machines.Load(plantID); ok {
		return m.(*fsm.FSM)
	}
	m, _ := g.machines.LoadOrStore(plantID, g.newMachine(plantID))
	return m.(*fsm.FSM)
}

func (g *PlantGates) newMachine(plantID int64) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventEvaluate, Src: []string{StateIdle}, Dst: StateEvaluating},
			{Name: EventSkip, Src: []string{StateEvaluating}, Dst: StateIdle},
			{Name: EventTrigger, Src: []string{StateEvaluating}, Dst: StateAwaitingAck},
			{Name: EventRelease, Src: []string{StateEvaluating, StateAwaitingAck}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				g.logger.Debug("Plant state changed", "plant", plantID, "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
}

// Begin moves the plant from idle to evaluating. It returns ErrTriggerInFlight
// when the plant is already evaluating or awaiting an acknowledgement.
func (g *PlantGates) Begin(ctx context.Context, plantID int64) error {
	err := g.machine(plantID).Event(ctx, EventEvaluate)
	if fsmutil.IsRejected(err) {
		return fmt.Errorf("plant %d: %w", plantID, core.ErrTriggerInFlight)
	}
	if fsmutil.IsRealError(err) {
		return fmt.Errorf("plant %d: begin evaluation: %w", plantID, err)
	}
	return nil
}

// Skip ends an evaluation that decided not to water.
func (g *PlantGates) Skip(ctx context.Context, plantID int64) error {
	return g.fire(ctx, plantID, EventSkip)
}

// Trigger marks the plant as waiting for the device to acknowledge a command.
func (g *PlantGates) Trigger(ctx context.Context, plantID int64) error {
	return g.fire(ctx, plantID, EventTrigger)
}

// Release returns the plant to idle. Releasing an idle plant is a no-op.
func (g *PlantGates) Release(ctx context.Context, plantID int64) {
	m := g.machine(plantID)
	if m.Current() == StateIdle {
		return
	}
	if err := m.Event(ctx, EventRelease); fsmutil.IsRealError(err) && !fsmutil.IsRejected(err) {
		g.logger.Error(err, "Failed to release plant", "plant", plantID)
	}
}

// State returns the plant's current gate state.
func (g *PlantGates) State(plantID int64) string {
	return g.machine(plantID).Current()
}

func (g *PlantGates) fire(ctx context.Context, plantID int64, event string) error {
	if err := g.machine(plantID).Event(ctx, event); fsmutil.IsRealError(err) {
		return fmt.Errorf("plant %d: %s: %w", plantID, event, err)
	}
	return nil
}
