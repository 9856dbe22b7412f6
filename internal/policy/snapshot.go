package policy

import (
	"sync"
	"time"

	"gridcast/internal/models"

	"github.com/google/uuid"
)

// SnapshotManager holds at most one frozen aggregate for comparison. The snapshot is a
// value copy and stays valid until replaced or cleared.
type SnapshotManager struct {
	mu   sync.Mutex
	snap *models.BaselineSnapshot
	now  func() time.Time
}

// NewSnapshotManager creates an empty manager
func NewSnapshotManager() *SnapshotManager {
	return &SnapshotManager{now: time.Now}
}

// Take freezes a copy of result, replacing any earlier snapshot
func (m *SnapshotManager) Take(result models.AggregateResult) models.BaselineSnapshot {
	snap := models.BaselineSnapshot{
		ID:      uuid.NewString(),
		TakenAt: m.now().UTC(),
		Result:  result.Clone(),
	}

	m.mu.Lock()
	m.snap = &snap
	m.mu.Unlock()

	return copySnapshot(snap)
}

// Current returns a copy of the snapshot, if one is set
func (m *SnapshotManager) Current() (models.BaselineSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return models.BaselineSnapshot{}, false
	}
	return copySnapshot(*m.snap), true
}

// Clear discards the snapshot and reports whether one was set
func (m *SnapshotManager) Clear() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	had := m.snap != nil
	m.snap = nil
	return had
}

// Diff compares result against the snapshot, city by city
func (m *SnapshotManager) Diff(result models.AggregateResult) (models.SnapshotDiff, bool) {
	snap, ok := m.Current()
	if !ok {
		return models.SnapshotDiff{}, false
	}

	diff := models.SnapshotDiff{
		SnapshotID:   snap.ID,
		TotalDeltaMW: result.TotalMW - snap.Result.TotalMW,
		ByCity:       make(map[models.City]float64),
	}
	for city, load := range result.Breakdown {
		diff.ByCity[city] = load - snap.Result.Breakdown[city]
	}
	for city, load := range snap.Result.Breakdown {
		if _, seen := result.Breakdown[city]; !seen {
			diff.ByCity[city] = -load
		}
	}
	return diff, true
}

func copySnapshot(s models.BaselineSnapshot) models.BaselineSnapshot {
	s.Result = s.Result.Clone()
	return s
}
