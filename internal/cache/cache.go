package cache

import (
	"sync"

	"github.com/warfront/simcore/pkg/core"
)

// CombatantCache caches combatant registrations as they stream in, so state
// samples can be validated without a db read. Latency in these calls is
// critical to quickly process incoming data.
type CombatantCache struct {
	m          sync.Mutex
	Combatants map[core.CombatantID]core.CombatantRecord
}

func NewCombatantCache() *CombatantCache {
	return &CombatantCache{
		m:          sync.Mutex{},
		Combatants: make(map[core.CombatantID]core.CombatantRecord),
	}
}

func (c *CombatantCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.Combatants = make(map[core.CombatantID]core.CombatantRecord)
}

func (c *CombatantCache) Lock() {
	c.m.Lock()
}

func (c *CombatantCache) Unlock() {
	c.m.Unlock()
}

func (c *CombatantCache) Get(id core.CombatantID) (core.CombatantRecord, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if r, ok := c.Combatants[id]; ok {
		return r, true
	}
	return core.CombatantRecord{}, false
}

func (c *CombatantCache) Add(r core.CombatantRecord) {
	c.m.Lock()
	defer c.m.Unlock()
	c.Combatants[r.SimID] = r
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
