package match

import (
	"sync"

	"github.com/warfront/simcore/internal/model"
)

// Context holds the current match and map state
type Context struct {
	mu    sync.RWMutex
	Match *model.Match
	Map   *model.Map
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{
		Match: &model.Match{Name: "No match loaded"},
		Map:   &model.Map{Name: "No map loaded"},
	}
}

// GetMatch returns the current match
func (mc *Context) GetMatch() *model.Match {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.Match
}

// GetMap returns the current map
func (mc *Context) GetMap() *model.Map {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.Map
}

// SetMatch sets the current match and map
func (mc *Context) SetMatch(match *model.Match, campaignMap *model.Map) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.Match = match
	mc.Map = campaignMap
}
