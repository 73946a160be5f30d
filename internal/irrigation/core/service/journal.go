package service

import (
	"context"
	"fmt"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/pkg/log"
)

// Journal appends operator-visible entries to the system log. Writes are best
// effort: a failure is logged and never fails the caller.
type Journal struct {
	store  core.SystemLogStore
	clock  clock.PassiveClock
	logger log.Logger
}

func NewJournal(store core.SystemLogStore, clk clock.PassiveClock, logger log.Logger) *Journal {
	return &Journal{store: store, clock: clk, logger: logger}
}

func (j *Journal) Record(ctx context.Context, level model.LogLevel, source, format string, args ...any) {
	if j == nil || j.store == nil {
		return
	}

	entry := &model.SystemLogEntry{
		Timestamp: j.clock.Now(),
		Level:     level,
		Source:    source,
		Message:   fmt.Sprintf(format, args...),
	}
	if err := j.store.AppendSystemLog(ctx, entry); err != nil {
		j.logger.Warn("Failed to append system log entry", "source", source, "error", err)
	}
}
