// Package respawn owns the pending-respawn queue. Entries come due after a
// fixed delay; a respawn aimed at a squad dissolved in the interim is silently
// dropped, because stale squad ids are expected, not exceptional.
package respawn

import (
	"github.com/warfront/simcore/internal/combatant"
	"github.com/warfront/simcore/internal/queue"
	"github.com/warfront/simcore/internal/squad"
	"github.com/warfront/simcore/pkg/core"
)

// Pending is one queued respawn.
type Pending struct {
	SquadID    core.SquadID
	OriginalID core.CombatantID
	DueAt      float64
}

// IDSource allocates fresh combatant ids. The population implements this.
type IDSource interface {
	NextID() core.CombatantID
}

// Locator resolves the current spawn position for a squad. Returning false
// drops the respawn.
type Locator func(core.SquadID) (core.Position3D, bool)

// Spawn is one resolved respawn: the rebuilt combatant and the fallen member
// it replaces. The caller despawns the replaced record when it registers the
// new one.
type Spawn struct {
	Combatant *combatant.Combatant
	Replaced  core.CombatantID
}

// Manager scans the pending queue each tick and rebuilds due members through
// the factory.
type Manager struct {
	delay   float64
	pending *queue.Queue[Pending]
	factory *combatant.Factory
	squads  *squad.Manager
	ids     IDSource
	locate  Locator
}

// NewManager wires the respawn queue to the factory and squad roster.
func NewManager(delay float64, factory *combatant.Factory, squads *squad.Manager, ids IDSource, locate Locator) *Manager {
	return &Manager{
		delay:   delay,
		pending: queue.New[Pending](),
		factory: factory,
		squads:  squads,
		ids:     ids,
		locate:  locate,
	}
}

// QueueRespawn inserts a pending entry due at now + the fixed respawn delay.
func (m *Manager) QueueRespawn(squadID core.SquadID, originalID core.CombatantID, now float64) {
	m.pending.Push(Pending{
		SquadID:    squadID,
		OriginalID: originalID,
		DueAt:      now + m.delay,
	})
}

// HandlePending processes every entry whose respawn time has elapsed,
// returning the combatants built for the caller to register with the
// population and spatial index. Entries aimed at dissolved squads are
// dropped; their original ids come back so the caller can still despawn the
// abandoned records. The queue is due-time ordered because the delay is
// fixed, so the scan stops at the first not-yet-due entry.
func (m *Manager) HandlePending(now float64) (spawns []Spawn, dropped []core.CombatantID) {
	for {
		head, ok := m.pending.Peek()
		if !ok || head.DueAt > now {
			break
		}
		m.pending.Pop()

		s, ok := m.squads.Get(head.SquadID)
		if !ok {
			dropped = append(dropped, head.OriginalID)
			continue
		}
		pos, ok := m.locate(head.SquadID)
		if !ok {
			dropped = append(dropped, head.OriginalID)
			continue
		}

		c := m.factory.New(m.ids.NextID(), s.Faction, pos,
			combatant.WithSquad(head.SquadID))
		if !m.squads.AddMember(head.SquadID, c.ID) {
			dropped = append(dropped, head.OriginalID)
			continue
		}
		spawns = append(spawns, Spawn{Combatant: c, Replaced: head.OriginalID})
	}
	return spawns, dropped
}

// PendingCount returns the number of respawns waiting to fire.
func (m *Manager) PendingCount() int {
	return m.pending.Len()
}

// Reset clears the queue on match restart.
func (m *Manager) Reset() {
	m.pending.Clear()
}
