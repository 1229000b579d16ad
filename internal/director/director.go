// Package director runs the two-tier population model: a large abstract
// force resolved statistically on a coarse interval, and a small materialized
// subset near the viewpoint exposed for full-fidelity simulation. Promotion
// and demotion happen inside a hysteresis band so agents loitering at the
// boundary never thrash, and the materialized set is hard-capped with
// deferred closest-first promotion. All compute passes run against the
// per-tick Budget. Accessed only from the tick goroutine; no locks.
package director

import (
	"encoding/binary"
	"hash/fnv"
	"sort"

	"github.com/warfront/simcore/internal/combatant"
	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/internal/geo"
	"github.com/warfront/simcore/internal/spatial"
	"github.com/warfront/simcore/internal/squad"
	"github.com/warfront/simcore/internal/zone"
	"github.com/warfront/simcore/pkg/core"
)

// Casualty is one statistical loss from an abstract combat round. The sim
// routes it through the ordinary death path.
type Casualty struct {
	Victim core.CombatantID
	Killer core.CombatantID
}

// ReinforceOrder asks the sim to spawn Count replacements into a squad.
type ReinforceOrder struct {
	Squad core.SquadID
	Count int
}

// Director owns the tier table and the coarse-interval passes.
type Director struct {
	cfg    *config.Config
	pop    *combatant.Population
	grid   *spatial.Grid
	squads *squad.Manager
	zones  *zone.Manager
	budget *Budget

	tiers        map[core.CombatantID]core.Tier
	materialized int
	pending      int

	viewpoint    core.Position3D
	hasViewpoint bool

	lastAbstract float64
	lastDirector float64
	aiCursor     int
}

// New wires the director against the arenas it reads. Config validation has
// already guaranteed the hysteresis band and cap invariants.
func New(cfg *config.Config, pop *combatant.Population, grid *spatial.Grid, squads *squad.Manager, zones *zone.Manager, budget *Budget) *Director {
	return &Director{
		cfg:    cfg,
		pop:    pop,
		grid:   grid,
		squads: squads,
		zones:  zones,
		budget: budget,
		tiers:  make(map[core.CombatantID]core.Tier),
	}
}

// Register enters a spawned combatant at the abstract tier.
func (d *Director) Register(id core.CombatantID) {
	if _, ok := d.tiers[id]; ok {
		return
	}
	d.tiers[id] = core.TierAbstract
}

// OnDeath drops a combatant from the tier table. A materialized death frees
// capacity for the next promotion pass.
func (d *Director) OnDeath(id core.CombatantID) {
	tier, ok := d.tiers[id]
	if !ok {
		return
	}
	if tier == core.TierMaterialized {
		d.materialized--
	}
	delete(d.tiers, id)
}

// Tier reports a combatant's current fidelity tier.
func (d *Director) Tier(id core.CombatantID) (core.Tier, bool) {
	t, ok := d.tiers[id]
	return t, ok
}

// MaterializedCount returns the size of the full-fidelity set.
func (d *Director) MaterializedCount() int {
	return d.materialized
}

// PendingPromotions returns how many eligible agents the cap deferred on the
// last materialization pass.
func (d *Director) PendingPromotions() int {
	return d.pending
}

// SetViewpoint moves the point promotions are measured from. Until one is
// set, the whole population stays abstract.
func (d *Director) SetViewpoint(pos core.Position3D) {
	d.viewpoint = pos
	d.hasViewpoint = true
}

type promoteCandidate struct {
	id   core.CombatantID
	dist float64
}

// MaterializePass demotes agents beyond the dematerialization radius, then
// fills free capacity with the closest eligible agents. The demotion radius
// is strictly larger than the promotion radius, so an agent at the boundary
// needs real displacement to transition again.
func (d *Director) MaterializePass(tick uint64, simTime float64) []core.MaterializationEvent {
	if !d.hasViewpoint {
		return nil
	}

	var events []core.MaterializationEvent
	var candidates []promoteCandidate

	for _, id := range d.pop.IDs() {
		c, ok := d.pop.Get(id)
		if !ok || !c.Alive() {
			continue
		}
		dist := geo.Dist2D(d.viewpoint, c.Position)
		switch d.tiers[id] {
		case core.TierMaterialized:
			if dist > d.cfg.Director.DematerializeRadius {
				d.tiers[id] = core.TierAbstract
				d.materialized--
				events = append(events, core.MaterializationEvent{
					Tick:      tick,
					SimTime:   simTime,
					Combatant: id,
					Faction:   c.Faction,
					To:        core.TierAbstract,
					Distance:  dist,
				})
			}
		default:
			if dist <= d.cfg.Director.MaterializeRadius {
				candidates = append(candidates, promoteCandidate{id: id, dist: dist})
			}
		}
	}

	// Closest first; id breaks ties so the order is stable.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].id < candidates[j].id
	})

	promoted := 0
	for _, pc := range candidates {
		if d.materialized >= d.cfg.Director.MaxMaterialized {
			break
		}
		d.tiers[pc.id] = core.TierMaterialized
		d.materialized++
		promoted++
		c, _ := d.pop.Get(pc.id)
		events = append(events, core.MaterializationEvent{
			Tick:      tick,
			SimTime:   simTime,
			Combatant: pc.id,
			Faction:   c.Faction,
			To:        core.TierMaterialized,
			Distance:  pc.dist,
		})
	}
	d.pending = len(candidates) - promoted

	return events
}

// MaterializedTransforms returns renderer-facing state for the full-fidelity
// set, in population join order.
func (d *Director) MaterializedTransforms() []core.CombatantTransform {
	out := make([]core.CombatantTransform, 0, d.materialized)
	for _, id := range d.pop.IDs() {
		if d.tiers[id] != core.TierMaterialized {
			continue
		}
		c, ok := d.pop.Get(id)
		if !ok {
			continue
		}
		out = append(out, core.CombatantTransform{
			ID:       c.ID,
			Faction:  c.Faction,
			Position: c.Position,
			Health:   c.Health,
			Squad:    c.Squad,
			Role:     c.Role,
		})
	}
	return out
}

// ScheduleAI books the tick's full-update slots: every materialized agent
// wants a high-priority update, abstract agents inside the hysteresis band
// want a medium one. The scan starts where the last tick's first denial
// happened, so deferred agents run next tick instead of starving.
func (d *Director) ScheduleAI() {
	if !d.hasViewpoint {
		return
	}
	ids := d.pop.IDs()
	n := len(ids)
	if n == 0 {
		return
	}

	start := d.aiCursor % n
	firstDenied := -1
	for k := 0; k < n; k++ {
		i := (start + k) % n
		c, ok := d.pop.Get(ids[i])
		if !ok || !c.Alive() {
			continue
		}
		granted := true
		switch d.tiers[ids[i]] {
		case core.TierMaterialized:
			granted = d.budget.RequestAIHigh()
		default:
			if geo.Dist2D(d.viewpoint, c.Position) <= d.cfg.Director.DematerializeRadius {
				granted = d.budget.RequestAIMedium()
			}
		}
		if !granted && firstDenied < 0 {
			firstDenied = i
		}
	}
	if firstDenied >= 0 {
		d.aiCursor = firstDenied
	} else {
		d.aiCursor = 0
	}
}

// AbstractCombat runs one statistical resolution round when the interval is
// due, otherwise it is a no-op. Each abstract agent with an enemy contact in
// engagement range spends a raycast on the sight check and then rolls a
// deterministic hash against the casualty chance. Denied raycasts simply
// defer the contact to the next round.
func (d *Director) AbstractCombat(tick uint64, simTime float64) []Casualty {
	if simTime-d.lastAbstract < d.cfg.Director.AbstractInterval {
		return nil
	}
	d.lastAbstract = simTime

	var out []Casualty
	for _, id := range d.pop.IDs() {
		c, ok := d.pop.Get(id)
		if !ok || !c.Alive() {
			continue
		}
		if d.tiers[id] == core.TierMaterialized {
			continue
		}
		killer, found := d.nearestEnemy(c)
		if !found {
			continue
		}
		if !d.budget.RequestRaycast() {
			continue
		}
		if !sampleCasualty(tick, id, d.cfg.Director.CasualtyChance) {
			continue
		}
		out = append(out, Casualty{Victim: id, Killer: killer})
	}
	return out
}

// nearestEnemy picks the closest living opponent in engagement range,
// breaking distance ties by id so the result never depends on map order.
func (d *Director) nearestEnemy(c *combatant.Combatant) (core.CombatantID, bool) {
	var (
		best     core.CombatantID
		bestDist float64
		found    bool
	)
	for _, id := range d.grid.QueryRadius(c.Position, d.cfg.Director.EngagementRange) {
		if id == c.ID {
			continue
		}
		other, ok := d.pop.Get(id)
		if !ok || !other.Alive() || other.Faction == c.Faction {
			continue
		}
		dist := geo.Dist2D(c.Position, other.Position)
		if !found || dist < bestDist || (dist == bestDist && id < best) {
			best, bestDist, found = id, dist, true
		}
	}
	return best, found
}

// DirectorPass re-evaluates squad composition and objectives when the
// interval is due. Each squad decision is a medium AI update; a denied slot
// pushes that squad to the next pass. Reinforcement tops a squad back up to
// its faction's minimum size, subject to the cooldown; the spawning itself is
// the sim's job, returned as orders.
func (d *Director) DirectorPass(tick uint64, simTime float64) (*core.DirectorStats, []ReinforceOrder) {
	if simTime-d.lastDirector < d.cfg.Director.UpdateInterval {
		return nil, nil
	}
	d.lastDirector = simTime

	var orders []ReinforceOrder
	reinforced := 0
	zoneOrders := 0

	for _, sid := range d.squads.IDs() {
		s, ok := d.squads.Get(sid)
		if !ok {
			continue
		}
		if !d.budget.RequestAIMedium() {
			continue
		}

		r := d.cfg.SquadRange(s.Faction)
		if len(s.Members) < r.Min && simTime-s.LastReinforced >= d.cfg.Director.ReinforceCooldown {
			orders = append(orders, ReinforceOrder{Squad: sid, Count: r.Min - len(s.Members)})
			s.LastReinforced = simTime
			reinforced++
		}

		if s.PlayerControlled {
			continue
		}
		if cmd, target, ok := d.objectiveFor(s); ok {
			d.squads.SetCommand(sid, cmd, target)
			zoneOrders++
		}
	}

	stats := d.stats(tick, simTime)
	stats.Reinforced = reinforced
	stats.ZoneOrders = zoneOrders
	return &stats, orders
}

// objectiveFor orders a squad onto the nearest zone its faction does not
// hold, falling back to defending the nearest held zone when the faction
// owns the whole map.
func (d *Director) objectiveFor(s *squad.Squad) (squad.Command, core.Position3D, bool) {
	leader, ok := d.pop.Get(s.Leader)
	if !ok {
		return squad.CmdNone, core.Position3D{}, false
	}

	var (
		attackPos, defendPos   core.Position3D
		attackDist, defendDist float64
		haveAttack, haveDefend bool
	)
	for _, zid := range d.zones.IDs() {
		z, _ := d.zones.Get(zid)
		if z.HomeBase {
			continue
		}
		dist := geo.Dist2D(leader.Position, z.Position)
		if z.Owner != s.Faction {
			if !haveAttack || dist < attackDist {
				attackPos, attackDist, haveAttack = z.Position, dist, true
			}
		} else {
			if !haveDefend || dist < defendDist {
				defendPos, defendDist, haveDefend = z.Position, dist, true
			}
		}
	}
	if haveAttack {
		return squad.CmdAdvance, attackPos, true
	}
	if haveDefend {
		return squad.CmdDefend, defendPos, true
	}
	return squad.CmdNone, core.Position3D{}, false
}

func (d *Director) stats(tick uint64, simTime float64) core.DirectorStats {
	return core.DirectorStats{
		Tick:              tick,
		SimTime:           simTime,
		Abstract:          len(d.tiers) - d.materialized,
		Materialized:      d.materialized,
		PendingPromotions: d.pending,
	}
}

// Reset clears the tier table and interval clocks for a match restart. The
// viewpoint is kept.
func (d *Director) Reset() {
	d.tiers = make(map[core.CombatantID]core.Tier)
	d.materialized = 0
	d.pending = 0
	d.lastAbstract = 0
	d.lastDirector = 0
	d.aiCursor = 0
}

// sampleCasualty hashes the tick and victim id into a uniform draw, so an
// abstract round's outcome is reproducible for a given population and never
// consumes shared random state.
func sampleCasualty(tick uint64, id core.CombatantID, chance float64) bool {
	if chance <= 0 {
		return false
	}
	if chance >= 1 {
		return true
	}
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[0:8], tick)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(id))
	h := fnv.New64a()
	h.Write(buf[:])
	return float64(h.Sum64()%1_000_000)/1_000_000 < chance
}
