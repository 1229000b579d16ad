// Package squad owns the squad roster. A squad with zero members does not
// exist: the dissolve-on-empty rule is enforced here, so a lookup can never
// observe an empty squad.
package squad

import (
	"github.com/warfront/simcore/pkg/core"
)

// Command is a squad-level order issued by the director or a player.
type Command uint8

const (
	CmdNone Command = iota
	CmdAdvance
	CmdDefend
)

func (c Command) String() string {
	switch c {
	case CmdAdvance:
		return "advance"
	case CmdDefend:
		return "defend"
	default:
		return "none"
	}
}

// Squad is a named group of combatants sharing one faction. Members is join
// order; the leader is always the earliest surviving member.
type Squad struct {
	ID               core.SquadID
	Faction          core.Faction
	Members          []core.CombatantID
	Leader           core.CombatantID
	PlayerControlled bool
	Command          Command
	CommandTarget    core.Position3D

	// LastReinforced is the sim time of the last reinforcement, used by the
	// director's cooldown check.
	LastReinforced float64
}

// Manager owns the squad roster and the member -> squad reverse index.
// Accessed only from the tick goroutine; no locks.
type Manager struct {
	squads      map[core.SquadID]*Squad
	memberSquad map[core.CombatantID]core.SquadID
	order       []core.SquadID
	nextID      core.SquadID
}

// NewManager creates an empty roster.
func NewManager() *Manager {
	return &Manager{
		squads:      make(map[core.SquadID]*Squad),
		memberSquad: make(map[core.CombatantID]core.SquadID),
		nextID:      1,
	}
}

// Create registers a new empty squad shell. The caller must add at least one
// member before the end of the tick; the roster never keeps empty squads.
func (m *Manager) Create(faction core.Faction) *Squad {
	s := &Squad{
		ID:      m.nextID,
		Faction: faction,
	}
	m.nextID++
	m.squads[s.ID] = s
	m.order = append(m.order, s.ID)
	return s
}

// Get returns the squad with the given id.
func (m *Manager) Get(id core.SquadID) (*Squad, bool) {
	s, ok := m.squads[id]
	return s, ok
}

// SquadOf returns the squad a combatant belongs to.
func (m *Manager) SquadOf(member core.CombatantID) (core.SquadID, bool) {
	id, ok := m.memberSquad[member]
	return id, ok
}

// AddMember appends a combatant to a squad. The first member becomes leader.
// Unknown squads and already-assigned members are a no-op.
func (m *Manager) AddMember(squadID core.SquadID, member core.CombatantID) bool {
	s, ok := m.squads[squadID]
	if !ok {
		return false
	}
	if _, assigned := m.memberSquad[member]; assigned {
		return false
	}
	s.Members = append(s.Members, member)
	m.memberSquad[member] = squadID
	if len(s.Members) == 1 {
		s.Leader = member
	}
	return true
}

// RemoveMember takes a combatant out of its squad. Removing the leader
// promotes the next member in join order; removing the last member dissolves
// the squad entirely. Unknown ids are a no-op.
func (m *Manager) RemoveMember(squadID core.SquadID, member core.CombatantID) {
	s, ok := m.squads[squadID]
	if !ok {
		return
	}
	idx := -1
	for i, id := range s.Members {
		if id == member {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	s.Members = append(s.Members[:idx], s.Members[idx+1:]...)
	delete(m.memberSquad, member)

	if len(s.Members) == 0 {
		m.delete(squadID)
		return
	}
	if s.Leader == member {
		s.Leader = s.Members[0]
	}
}

func (m *Manager) delete(squadID core.SquadID) {
	delete(m.squads, squadID)
	for i, id := range m.order {
		if id == squadID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// SetCommand records an order and target for a squad.
func (m *Manager) SetCommand(squadID core.SquadID, cmd Command, target core.Position3D) {
	if s, ok := m.squads[squadID]; ok {
		s.Command = cmd
		s.CommandTarget = target
	}
}

// IDs returns squad ids in creation order. The returned slice is shared;
// callers must not mutate it.
func (m *Manager) IDs() []core.SquadID {
	return m.order
}

// Len returns the number of squads in the roster.
func (m *Manager) Len() int {
	return len(m.squads)
}

// Reset drops the whole roster and restarts the id sequence.
func (m *Manager) Reset() {
	m.squads = make(map[core.SquadID]*Squad)
	m.memberSquad = make(map[core.CombatantID]core.SquadID)
	m.order = nil
	m.nextID = 1
}
