// Package worker routes simulation output through the dispatcher into the
// active storage backend, validating entity references along the way.
package worker

import (
	"fmt"
	"time"

	"github.com/warfront/simcore/internal/cache"
	"github.com/warfront/simcore/internal/dispatcher"
	"github.com/warfront/simcore/internal/logging"
	"github.com/warfront/simcore/internal/model"
	"github.com/warfront/simcore/internal/storage"
)

// ErrTooEarlyForStateAssociation is returned when state data arrives before
// its entity is registered
var ErrTooEarlyForStateAssociation = fmt.Errorf("too early for state association")

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	CombatantCache *cache.CombatantCache
	ZoneCache      *cache.ZoneCache
	LogManager     *logging.SlogManager
}

// Manager manages the event handlers and publishing helpers.
type Manager struct {
	deps       Dependencies
	backend    storage.Backend
	dispatcher *dispatcher.Dispatcher
	dropped    cache.SafeCounter
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// DBWriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type DBWriteDurationProvider interface {
	GetLastDBWriteDuration() time.Duration
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(DBWriteDurationProvider); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}

// DroppedEvents reports how many events failed to dispatch since startup.
func (m *Manager) DroppedEvents() int {
	return m.dropped.Value()
}

// QueueLengthsProvider is an optional interface that backends can implement
// to expose their write queue depths for monitoring.
type QueueLengthsProvider interface {
	QueueLengths() model.WriteQueueLengths
}

// DBQueueLengths returns the backend's write queue depths.
// Returns zeroes if the backend doesn't support this metric.
func (m *Manager) DBQueueLengths() model.WriteQueueLengths {
	if p, ok := m.backend.(QueueLengthsProvider); ok {
		return p.QueueLengths()
	}
	return model.WriteQueueLengths{}
}
