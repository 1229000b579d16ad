package combatant

import (
	"github.com/warfront/simcore/pkg/core"
)

// Population is the arena holding every live combatant record, keyed by id
// with O(1) existence checks. Iteration order is join order, which keeps tick
// processing deterministic. Accessed only from the tick goroutine; no locks.
type Population struct {
	byID   map[core.CombatantID]*Combatant
	order  []core.CombatantID
	nextID core.CombatantID
}

// NewPopulation creates an empty population.
func NewPopulation() *Population {
	return &Population{
		byID:   make(map[core.CombatantID]*Combatant),
		nextID: 1,
	}
}

// NextID allocates a fresh combatant id. IDs are never reused; a respawned
// soldier is a new combatant.
func (p *Population) NextID() core.CombatantID {
	id := p.nextID
	p.nextID++
	return id
}

// Add registers a combatant. A record with a duplicate id is rejected.
func (p *Population) Add(c *Combatant) bool {
	if _, exists := p.byID[c.ID]; exists {
		return false
	}
	p.byID[c.ID] = c
	p.order = append(p.order, c.ID)
	return true
}

// Get returns the combatant with the given id.
func (p *Population) Get(id core.CombatantID) (*Combatant, bool) {
	c, ok := p.byID[id]
	return c, ok
}

// Remove despawns a combatant. This is the only deletion path; unknown ids
// are a no-op.
func (p *Population) Remove(id core.CombatantID) {
	if _, ok := p.byID[id]; !ok {
		return
	}
	delete(p.byID, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// IDs returns the population ids in join order. The returned slice is shared;
// callers must not mutate it.
func (p *Population) IDs() []core.CombatantID {
	return p.order
}

// Len returns the population size.
func (p *Population) Len() int {
	return len(p.byID)
}

// CountAlive returns the number of alive combatants per faction.
func (p *Population) CountAlive() map[core.Faction]int {
	counts := make(map[core.Faction]int)
	for _, id := range p.order {
		if c := p.byID[id]; c.Alive() {
			counts[c.Faction]++
		}
	}
	return counts
}

// Reset drops every combatant and restarts the id sequence.
func (p *Population) Reset() {
	p.byID = make(map[core.CombatantID]*Combatant)
	p.order = nil
	p.nextID = 1
}
