package cache

import (
	"sync"

	"github.com/warfront/simcore/pkg/core"
)

// ZoneCache maps authored zone ids to their database row ids for the current
// match. Backends without a database register zones with a row id of zero;
// presence in the cache is what marks a zone as known.
type ZoneCache struct {
	mu    sync.RWMutex
	zones map[core.ZoneID]uint
}

// NewZoneCache creates a new ZoneCache
func NewZoneCache() *ZoneCache {
	return &ZoneCache{
		zones: make(map[core.ZoneID]uint),
	}
}

// Get retrieves a zone row id by authored id
func (c *ZoneCache) Get(id core.ZoneID) (uint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rowID, ok := c.zones[id]
	return rowID, ok
}

// Set stores a zone row id by authored id
func (c *ZoneCache) Set(id core.ZoneID, rowID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zones[id] = rowID
}

// Delete removes a zone by authored id
func (c *ZoneCache) Delete(id core.ZoneID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.zones, id)
}

// Reset clears all zones from the cache
func (c *ZoneCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zones = make(map[core.ZoneID]uint)
}
