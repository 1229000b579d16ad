package combatant

import (
	"testing"

	"github.com/warfront/simcore/pkg/core"
)

func TestFactory_Defaults(t *testing.T) {
	f := NewFactory(100, 10)

	c := f.New(1, core.FactionUS, core.Position3D{X: 10, Y: 20, Z: 5})

	if c.ID != 1 {
		t.Errorf("ID = %d, want 1", c.ID)
	}
	if c.Faction != core.FactionUS {
		t.Errorf("Faction = %s, want US", c.Faction)
	}
	if c.Health != 100 {
		t.Errorf("Health = %d, want 100", c.Health)
	}
	if c.State != core.LifecycleAlive {
		t.Errorf("State = %s, want alive", c.State)
	}
	if c.Role != core.RoleFollower {
		t.Errorf("Role = %s, want follower", c.Role)
	}
	if !c.Alive() {
		t.Error("expected new combatant to be alive")
	}
}

func TestFactory_Options(t *testing.T) {
	f := NewFactory(100, 10)

	c := f.New(2, core.FactionNVA, core.Position3D{},
		WithRole(core.RoleLeader), WithHealth(75), WithSquad(3))

	if c.Role != core.RoleLeader {
		t.Errorf("Role = %s, want leader", c.Role)
	}
	if c.Health != 75 {
		t.Errorf("Health = %d, want 75", c.Health)
	}
	if c.Squad != 3 {
		t.Errorf("Squad = %d, want 3", c.Squad)
	}
}

func TestCombatant_RecordDamageBounded(t *testing.T) {
	f := NewFactory(100, 3)
	c := f.New(1, core.FactionUS, core.Position3D{})

	for i := 1; i <= 5; i++ {
		c.RecordDamage(core.CombatantID(i+10), 10, float64(i))
	}

	if c.DamageLogLen() != 3 {
		t.Fatalf("damage log length = %d, want 3", c.DamageLogLen())
	}

	// Oldest entries evicted: attackers 13, 14, 15 remain.
	assists := c.AssistCandidates(0, 100, 5)
	if len(assists) != 3 {
		t.Fatalf("assists = %v, want 3 entries", assists)
	}
	if assists[0] != 13 || assists[1] != 14 || assists[2] != 15 {
		t.Errorf("assists = %v, want [13 14 15]", assists)
	}
}

func TestCombatant_AssistCandidates(t *testing.T) {
	f := NewFactory(100, 10)

	tests := []struct {
		name   string
		hits   []DamageEntry
		killer core.CombatantID
		now    float64
		want   []core.CombatantID
	}{
		{
			name: "excludes the killer",
			hits: []DamageEntry{
				{Attacker: 5, Amount: 30, SimTime: 9},
				{Attacker: 6, Amount: 40, SimTime: 9.5},
			},
			killer: 6,
			now:    10,
			want:   []core.CombatantID{5},
		},
		{
			name: "drops hits outside the window",
			hits: []DamageEntry{
				{Attacker: 5, Amount: 30, SimTime: 1},
				{Attacker: 7, Amount: 20, SimTime: 19},
			},
			killer: 9,
			now:    20,
			want:   []core.CombatantID{7},
		},
		{
			name: "deduplicates attackers",
			hits: []DamageEntry{
				{Attacker: 5, Amount: 10, SimTime: 18},
				{Attacker: 5, Amount: 10, SimTime: 19},
				{Attacker: 8, Amount: 10, SimTime: 19},
			},
			killer: 9,
			now:    20,
			want:   []core.CombatantID{5, 8},
		},
		{
			name:   "empty history",
			hits:   nil,
			killer: 9,
			now:    20,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := f.New(1, core.FactionUS, core.Position3D{})
			for _, h := range tt.hits {
				c.RecordDamage(h.Attacker, h.Amount, h.SimTime)
			}

			got := c.AssistCandidates(tt.killer, 10, tt.now)

			if len(got) != len(tt.want) {
				t.Fatalf("assists = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("assists = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestCombatant_AssistCandidatesClearsHistory(t *testing.T) {
	f := NewFactory(100, 10)
	c := f.New(1, core.FactionUS, core.Position3D{})
	c.RecordDamage(5, 30, 1)

	c.AssistCandidates(9, 10, 2)

	if c.DamageLogLen() != 0 {
		t.Errorf("damage log not cleared: %d entries remain", c.DamageLogLen())
	}
	if got := c.AssistCandidates(9, 10, 2); len(got) != 0 {
		t.Errorf("second call returned %v, want empty", got)
	}
}

func TestPopulation_AddGetRemove(t *testing.T) {
	p := NewPopulation()
	f := NewFactory(100, 10)

	id := p.NextID()
	c := f.New(id, core.FactionUS, core.Position3D{})
	if !p.Add(c) {
		t.Fatal("Add returned false")
	}
	if p.Add(c) {
		t.Error("duplicate Add returned true")
	}

	got, ok := p.Get(id)
	if !ok || got.ID != id {
		t.Fatalf("Get(%d) = %v, %v", id, got, ok)
	}

	p.Remove(id)
	if _, ok := p.Get(id); ok {
		t.Error("combatant still present after Remove")
	}
	if p.Len() != 0 {
		t.Errorf("Len = %d, want 0", p.Len())
	}

	// Unknown id is a no-op.
	p.Remove(999)
}

func TestPopulation_IDsNeverReused(t *testing.T) {
	p := NewPopulation()
	f := NewFactory(100, 10)

	first := p.NextID()
	p.Add(f.New(first, core.FactionUS, core.Position3D{}))
	p.Remove(first)

	second := p.NextID()
	if second == first {
		t.Errorf("id %d reused after removal", first)
	}
}

func TestPopulation_JoinOrderIteration(t *testing.T) {
	p := NewPopulation()
	f := NewFactory(100, 10)

	var ids []core.CombatantID
	for i := 0; i < 5; i++ {
		id := p.NextID()
		ids = append(ids, id)
		p.Add(f.New(id, core.FactionUS, core.Position3D{}))
	}
	p.Remove(ids[2])

	got := p.IDs()
	want := []core.CombatantID{ids[0], ids[1], ids[3], ids[4]}
	if len(got) != len(want) {
		t.Fatalf("IDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("IDs = %v, want %v", got, want)
			break
		}
	}
}

func TestPopulation_CountAlive(t *testing.T) {
	p := NewPopulation()
	f := NewFactory(100, 10)

	a := f.New(p.NextID(), core.FactionUS, core.Position3D{})
	b := f.New(p.NextID(), core.FactionUS, core.Position3D{})
	c := f.New(p.NextID(), core.FactionNVA, core.Position3D{})
	p.Add(a)
	p.Add(b)
	p.Add(c)

	b.Health = 0
	b.State = core.LifecycleDead

	counts := p.CountAlive()
	if counts[core.FactionUS] != 1 {
		t.Errorf("US alive = %d, want 1", counts[core.FactionUS])
	}
	if counts[core.FactionNVA] != 1 {
		t.Errorf("NVA alive = %d, want 1", counts[core.FactionNVA])
	}
}
