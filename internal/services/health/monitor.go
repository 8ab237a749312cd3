// Package health implements the Health Monitor: a periodic snapshot of
// queue depths, memory pressure, and broker reachability used by the /health
// endpoint and ops dashboards.
package health

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
)

// heapWarnPercent is the heap-in-use fraction (of sys memory) above which a
// warning is appended to the snapshot.
const heapWarnPercent = 85.0

// Monitor implements interfaces.HealthMonitor over a QueueBroker.
type Monitor struct {
	broker interfaces.QueueBroker
	logger *common.Logger

	mu   sync.RWMutex
	last interfaces.HealthSnapshot
}

// New creates a new Monitor watching every job type in models.AllJobTypes.
func New(broker interfaces.QueueBroker, logger *common.Logger) *Monitor {
	return &Monitor{broker: broker, logger: logger}
}

// Snapshot collects current broker depths and runtime memory stats.
func (m *Monitor) Snapshot(ctx context.Context) (interfaces.HealthSnapshot, error) {
	snap := interfaces.HealthSnapshot{
		Timestamp:       time.Now(),
		BrokerReachable: true,
		Channels:        make(map[string]interfaces.ChannelDepth, len(models.AllJobTypes)),
	}

	start := time.Now()
	for _, jobType := range models.AllJobTypes {
		depth, err := m.broker.Depth(ctx, jobType)
		if err != nil {
			snap.BrokerReachable = false
			snap.Warnings = append(snap.Warnings, "broker depth check failed for "+jobType+": "+err.Error())
			continue
		}
		snap.Channels[jobType] = depth
		if depth.Failed > 0 {
			snap.Warnings = append(snap.Warnings, jobType+" has "+strconv.Itoa(depth.Failed)+" failed jobs outstanding")
		}
	}
	snap.BrokerLatencyMS = time.Since(start).Milliseconds()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap.MemoryRSSBytes = ms.Sys
	snap.MemoryHeapBytes = ms.HeapInuse
	if ms.Sys > 0 {
		snap.HeapPercent = float64(ms.HeapInuse) / float64(ms.Sys) * 100
	}
	if snap.HeapPercent > heapWarnPercent {
		snap.Warnings = append(snap.Warnings, "heap usage above warning threshold")
	}

	m.store(snap)
	return snap, nil
}

// Start runs the periodic collector loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := m.Snapshot(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("health: initial snapshot failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := m.Snapshot(ctx)
			if err != nil {
				m.logger.Warn().Err(err).Msg("health: snapshot failed")
				continue
			}
			if len(snap.Warnings) > 0 {
				m.logger.Warn().Interface("warnings", snap.Warnings).Msg("health: snapshot raised warnings")
			}
		}
	}
}

// Last returns the most recently collected snapshot, or a zero-value
// snapshot with BrokerReachable=false if none has been taken yet.
func (m *Monitor) Last() interfaces.HealthSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *Monitor) store(snap interfaces.HealthSnapshot) {
	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()
}

var _ interfaces.HealthMonitor = (*Monitor)(nil)
