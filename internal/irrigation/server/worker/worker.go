// Package worker runs the periodic background jobs of the server: the device
// health sweep, acknowledgement expiry and retention.
package worker

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/plantd/pkg/log"
)

// Task is one pass of a periodic job. Errors are logged and the loop goes on.
type Task func(ctx context.Context) error

// Periodic runs a task on a fixed interval until its context ends.
type Periodic struct {
	Name     string
	Interval time.Duration
	Task     Task

	// Immediate runs the first pass at start instead of after one interval.
	Immediate bool

	Clock  clock.WithTicker
	Logger log.Logger
}

// Start blocks until ctx is cancelled.
func (p *Periodic) Start(ctx context.Context) error {
	clk := p.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := p.Logger
	if logger == nil {
		logger = log.WithName(p.Name)
	}

	logger.Info("Starting periodic job", "job", p.Name, "interval", p.Interval)

	ticker := clk.NewTicker(p.Interval)
	defer ticker.Stop()

	if p.Immediate {
		p.run(ctx, logger)
	}
	for {
		select {
		case <-ticker.C():
			p.run(ctx, logger)
		case <-ctx.Done():
			logger.Info("Stopping periodic job", "job", p.Name)
			return nil
		}
	}
}

func (p *Periodic) run(ctx context.Context, logger log.Logger) {
	if err := p.Task(ctx); err != nil && ctx.Err() == nil {
		logger.Error(err, "Periodic job failed", "job", p.Name)
	}
}
