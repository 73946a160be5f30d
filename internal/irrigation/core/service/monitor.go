package service

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/internal/pkg/metrics"
	"github.com/autopeer-io/plantd/pkg/log"
)

// HealthMonitor marks devices offline once they stop sending telemetry.
type HealthMonitor struct {
	registry     core.Registry
	offlineAfter time.Duration
	clock        clock.PassiveClock
	journal      *Journal
	logger       log.Logger
	metrics      *metrics.Metrics
}

// Sweep marks every stale device offline and returns how many changed. The
// update is conditional, so a device that reported since the listing keeps
// its status, and a repeated sweep changes nothing.
func (m *HealthMonitor) Sweep(ctx context.Context) (int, error) {
	staleBefore := m.clock.Now().Add(-m.offlineAfter)

	devices, err := m.registry.ListStaleDevices(ctx, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("%w: list stale devices: %w", core.ErrPersistence, err)
	}

	changed := 0
	for _, d := range devices {
		ok, err := m.registry.MarkDeviceOffline(ctx, d.Key, staleBefore)
		if err != nil {
			m.logger.Error(err, "Failed to mark device offline", "device", d.Key)
			continue
		}
		if !ok {
			continue
		}

		changed++
		m.metrics.ObserveDeviceTransition(string(model.DeviceOffline))
		m.logger.Warn("Device went offline", "device", d.Key, "previousStatus", d.Status, "lastSeen", d.LastSeen)
		m.journal.Record(ctx, model.LogWarning, "monitor",
			"Device %s went offline (no telemetry for %s)", d.Key, m.offlineAfter)
	}

	return changed, nil
}
