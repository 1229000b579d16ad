package respawn

import (
	"testing"

	"github.com/warfront/simcore/internal/combatant"
	"github.com/warfront/simcore/internal/squad"
	"github.com/warfront/simcore/pkg/core"
)

func newFixture(delay float64) (*Manager, *squad.Manager, *combatant.Population) {
	pop := combatant.NewPopulation()
	factory := combatant.NewFactory(100, 10)
	squads := squad.NewManager()
	locate := func(id core.SquadID) (core.Position3D, bool) {
		return core.Position3D{X: 100, Y: 200}, true
	}
	return NewManager(delay, factory, squads, pop, locate), squads, pop
}

func TestManager_RespawnAfterDelay(t *testing.T) {
	m, squads, _ := newFixture(15)
	s := squads.Create(core.FactionUS)
	squads.AddMember(s.ID, 1)

	m.QueueRespawn(s.ID, 7, 100)

	// Not yet due.
	spawns, dropped := m.HandlePending(110)
	if len(spawns) != 0 || len(dropped) != 0 {
		t.Fatalf("early HandlePending spawned %d, dropped %d", len(spawns), len(dropped))
	}
	if m.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1", m.PendingCount())
	}

	// Due at 115.
	spawns, dropped = m.HandlePending(115)
	if len(spawns) != 1 {
		t.Fatalf("spawned %d, want 1", len(spawns))
	}
	if len(dropped) != 0 {
		t.Errorf("dropped = %v, want none", dropped)
	}
	if m.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", m.PendingCount())
	}

	c := spawns[0].Combatant
	if spawns[0].Replaced != 7 {
		t.Errorf("replaced = %d, want 7", spawns[0].Replaced)
	}
	if c.Faction != core.FactionUS {
		t.Errorf("faction = %s, want US", c.Faction)
	}
	if c.Squad != s.ID {
		t.Errorf("squad = %d, want %d", c.Squad, s.ID)
	}
	if c.ID == 7 {
		t.Error("respawn reused the original combatant id")
	}
	if c.Position.X != 100 || c.Position.Y != 200 {
		t.Errorf("position = %+v, want locator position", c.Position)
	}
	if len(s.Members) != 2 {
		t.Errorf("squad members = %d, want 2", len(s.Members))
	}
}

func TestManager_DissolvedSquadDropsSilently(t *testing.T) {
	m, squads, _ := newFixture(10)
	s := squads.Create(core.FactionNVA)
	squads.AddMember(s.ID, 1)

	m.QueueRespawn(s.ID, 9, 0)

	// Squad dissolves while the respawn is pending.
	squads.RemoveMember(s.ID, 1)

	spawns, dropped := m.HandlePending(20)
	if len(spawns) != 0 {
		t.Errorf("spawned %d against a dissolved squad", len(spawns))
	}
	if len(dropped) != 1 || dropped[0] != 9 {
		t.Errorf("dropped = %v, want [9]", dropped)
	}
	if m.PendingCount() != 0 {
		t.Error("dropped entry left in queue")
	}
}

func TestManager_MultipleDueProcessedInOrder(t *testing.T) {
	m, squads, _ := newFixture(5)
	s := squads.Create(core.FactionUS)
	squads.AddMember(s.ID, 1)

	m.QueueRespawn(s.ID, 2, 0)
	m.QueueRespawn(s.ID, 3, 1)
	m.QueueRespawn(s.ID, 4, 30)

	spawns, _ := m.HandlePending(10)
	if len(spawns) != 2 {
		t.Fatalf("spawned %d, want 2", len(spawns))
	}
	if spawns[0].Replaced != 2 || spawns[1].Replaced != 3 {
		t.Errorf("replaced order = %d, %d; want 2, 3", spawns[0].Replaced, spawns[1].Replaced)
	}
	if m.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1", m.PendingCount())
	}

	spawns, _ = m.HandlePending(40)
	if len(spawns) != 1 {
		t.Errorf("spawned %d, want 1", len(spawns))
	}
}

func TestManager_LocatorFailureDrops(t *testing.T) {
	pop := combatant.NewPopulation()
	factory := combatant.NewFactory(100, 10)
	squads := squad.NewManager()
	locate := func(id core.SquadID) (core.Position3D, bool) {
		return core.Position3D{}, false
	}
	m := NewManager(5, factory, squads, pop, locate)

	s := squads.Create(core.FactionUS)
	squads.AddMember(s.ID, 1)
	m.QueueRespawn(s.ID, 1, 0)

	spawns, dropped := m.HandlePending(10)
	if len(spawns) != 0 || len(dropped) != 1 {
		t.Errorf("spawned %d, dropped %v; want 0 and [1]", len(spawns), dropped)
	}
}

func TestManager_Reset(t *testing.T) {
	m, squads, _ := newFixture(5)
	s := squads.Create(core.FactionUS)
	squads.AddMember(s.ID, 1)
	m.QueueRespawn(s.ID, 1, 0)

	m.Reset()

	if m.PendingCount() != 0 {
		t.Errorf("pending = %d after Reset, want 0", m.PendingCount())
	}
}
