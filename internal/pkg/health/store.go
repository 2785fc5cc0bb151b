package health

import (
	"sync"

	"github.com/Vodeneev/livewatch/internal/pkg/models"
)

const recentStatusLimit = 50

// snapshotStore keeps the latest batch and the most recent status events in memory for fast API access.
type snapshotStore struct {
	mu       sync.RWMutex
	latest   models.Batch
	hasBatch bool
	statuses []models.StatusEvent
}

func newSnapshotStore() *snapshotStore {
	return &snapshotStore{statuses: make([]models.StatusEvent, 0, recentStatusLimit)}
}

func (s *snapshotStore) setBatch(b models.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = b
	s.hasBatch = true
}

func (s *snapshotStore) addStatus(e models.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == recentStatusLimit {
		copy(s.statuses, s.statuses[1:])
		s.statuses = s.statuses[:recentStatusLimit-1]
	}
	s.statuses = append(s.statuses, e)
}

// Latest returns the last emitted batch. Records are shared with the caller and must not be modified.
func (s *snapshotStore) Latest() (models.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasBatch
}

// Statuses returns recent status events, oldest first.
func (s *snapshotStore) Statuses() []models.StatusEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StatusEvent, len(s.statuses))
	copy(out, s.statuses)
	return out
}
