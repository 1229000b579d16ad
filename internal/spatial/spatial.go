// Package spatial provides the uniform-grid index every proximity query in
// the core runs against. The whole population is resynced once per tick
// rather than diffed incrementally; a stale bucket can therefore only survive
// until the next resync. Accessed only from the tick goroutine; no locks.
package spatial

import (
	"math"

	"github.com/warfront/simcore/internal/geo"
	"github.com/warfront/simcore/pkg/core"
)

type cellKey struct {
	cx int32
	cy int32
}

// Grid buckets combatants into square cells of a configured edge length.
type Grid struct {
	cellSize float64
	cells    map[cellKey]map[core.CombatantID]struct{}
	last     map[core.CombatantID]core.Position3D
}

// NewGrid creates a grid with the given cell edge length in metres.
func NewGrid(cellSize float64) *Grid {
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[cellKey]map[core.CombatantID]struct{}),
		last:     make(map[core.CombatantID]core.Position3D),
	}
}

func (g *Grid) toCell(v float64) int32 {
	return int32(math.Floor(v / g.cellSize))
}

func (g *Grid) key(pos core.Position3D) cellKey {
	return cellKey{cx: g.toCell(pos.X), cy: g.toCell(pos.Y)}
}

// Sync inserts an entity or moves it to its current position.
func (g *Grid) Sync(id core.CombatantID, pos core.Position3D) {
	if old, ok := g.last[id]; ok {
		oldK := g.key(old)
		newK := g.key(pos)
		if oldK == newK {
			g.last[id] = pos
			return
		}
		g.removeFromCell(id, oldK)
	}
	k := g.key(pos)
	cell := g.cells[k]
	if cell == nil {
		cell = make(map[core.CombatantID]struct{})
		g.cells[k] = cell
	}
	cell[id] = struct{}{}
	g.last[id] = pos
}

// Remove deletes an entity from the grid. Dead combatants must be removed
// before the next query or they leak into proximity results.
func (g *Grid) Remove(id core.CombatantID) {
	pos, ok := g.last[id]
	if !ok {
		return
	}
	g.removeFromCell(id, g.key(pos))
	delete(g.last, id)
}

func (g *Grid) removeFromCell(id core.CombatantID, k cellKey) {
	cell := g.cells[k]
	if cell != nil {
		delete(cell, id)
		if len(cell) == 0 {
			delete(g.cells, k)
		}
	}
}

// QueryRadius returns all entity ids whose last-synced position lies within
// radius of center. No ordering guarantee.
func (g *Grid) QueryRadius(center core.Position3D, radius float64) []core.CombatantID {
	if radius < 0 {
		return nil
	}
	span := int32(math.Ceil(radius / g.cellSize))
	ccx := g.toCell(center.X)
	ccy := g.toCell(center.Y)

	var result []core.CombatantID
	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			k := cellKey{cx: ccx + dx, cy: ccy + dy}
			for id := range g.cells[k] {
				if geo.Dist2D(g.last[id], center) <= radius {
					result = append(result, id)
				}
			}
		}
	}
	return result
}

// Contains reports whether an entity is currently indexed.
func (g *Grid) Contains(id core.CombatantID) bool {
	_, ok := g.last[id]
	return ok
}

// Position returns the last-synced position of an entity.
func (g *Grid) Position(id core.CombatantID) (core.Position3D, bool) {
	pos, ok := g.last[id]
	return pos, ok
}

// Len returns the number of indexed entities.
func (g *Grid) Len() int {
	return len(g.last)
}

// Reset drops every entity, keeping the configured cell size.
func (g *Grid) Reset() {
	g.cells = make(map[cellKey]map[core.CombatantID]struct{})
	g.last = make(map[core.CombatantID]core.Position3D)
}
