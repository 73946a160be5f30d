package service

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/pkg/log"
)

// RetentionResult summarizes one retention pass.
type RetentionResult struct {
	ArchivedReadings int
	DeletedReadings  int64
	DeletedLogs      int64
}

// Retention prunes old readings and system log entries. When an archiver is
// configured, readings are exported before they are deleted.
type Retention struct {
	readings       core.TelemetryStore
	logs           core.SystemLogStore
	archiver       core.ReadingArchiver
	readingsMaxAge time.Duration
	logsMaxAge     time.Duration
	batchSize      int
	clock          clock.PassiveClock
	logger         log.Logger
}

// Run performs one pass. A failed export skips reading deletion for this pass.
// With an archiver, only readings up to the last exported ID are deleted.
func (r *Retention) Run(ctx context.Context) (RetentionResult, error) {
	var res RetentionResult
	now := r.clock.Now()

	readingsCutoff := now.Add(-r.readingsMaxAge)
	archived, lastID, err := r.archive(ctx, readingsCutoff)
	res.ArchivedReadings = archived
	if err != nil {
		return res, fmt.Errorf("archive readings before %s: %w", readingsCutoff.Format(time.RFC3339), err)
	}

	if r.archiver == nil || lastID > 0 {
		if res.DeletedReadings, err = r.readings.DeleteReadingsBefore(ctx, readingsCutoff, lastID); err != nil {
			return res, fmt.Errorf("%w: delete readings: %w", core.ErrPersistence, err)
		}
	}

	logsCutoff := now.Add(-r.logsMaxAge)
	if res.DeletedLogs, err = r.logs.DeleteSystemLogsBefore(ctx, logsCutoff); err != nil {
		return res, fmt.Errorf("%w: delete system logs: %w", core.ErrPersistence, err)
	}

	r.logger.Info("Retention pass complete",
		"archivedReadings", res.ArchivedReadings, "deletedReadings", res.DeletedReadings, "deletedLogs", res.DeletedLogs)
	return res, nil
}

// archive exports readings older than cutoff and returns how many were
// exported and the highest exported ID.
func (r *Retention) archive(ctx context.Context, cutoff time.Time) (int, int64, error) {
	if r.archiver == nil {
		return 0, 0, nil
	}

	total := 0
	var afterID int64
	for part := 0; ; part++ {
		batch, err := r.readings.ListReadingsBefore(ctx, cutoff, afterID, r.batchSize)
		if err != nil {
			return total, afterID, fmt.Errorf("%w: list readings: %w", core.ErrPersistence, err)
		}
		if len(batch) == 0 {
			return total, afterID, nil
		}

		if err := r.archiver.Archive(ctx, cutoff, part, batch); err != nil {
			return total, afterID, err
		}

		total += len(batch)
		afterID = batch[len(batch)-1].ID
		if len(batch) < r.batchSize {
			return total, afterID, nil
		}
	}
}
