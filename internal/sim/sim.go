// Package sim wires the subsystems into the tick-driven core. Each Tick runs
// the fixed pipeline: spatial resync, zone capture evaluation, ticket bleed
// and victory checks, respawn processing, then the materialization and
// director pass under the compute budget. The core never invokes callbacks;
// every tick hands back a TickResult for the host loop to consume.
//
// Accessed only from the tick goroutine; no locks.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/warfront/simcore/internal/combatant"
	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/internal/director"
	"github.com/warfront/simcore/internal/geo"
	"github.com/warfront/simcore/internal/respawn"
	"github.com/warfront/simcore/internal/spatial"
	"github.com/warfront/simcore/internal/squad"
	"github.com/warfront/simcore/internal/ticket"
	"github.com/warfront/simcore/internal/zone"
	"github.com/warfront/simcore/pkg/core"
)

// Simulator owns the whole match state. The host drives it by applying
// inputs between ticks and calling Tick at its own rate.
type Simulator struct {
	cfg    *config.Config
	logger *slog.Logger

	factionA core.Faction
	factionB core.Faction

	pop      *combatant.Population
	factory  *combatant.Factory
	grid     *spatial.Grid
	squads   *squad.Manager
	zones    *zone.Manager
	ledger   *ticket.Ledger
	respawns *respawn.Manager
	budget   *director.Budget
	director *director.Director

	tick    uint64
	simTime float64

	tickDuration metric.Float64Histogram

	// Events raised between ticks (host inputs) or mid-tick accumulate here
	// and drain into the next TickResult.
	pendingKills    []core.KillEvent
	pendingCaptures []core.CaptureEvent
	pendingPhases   []core.PhaseChangeEvent
	pendingSpawns   []core.CombatantRecord
	victorySent     bool
}

// New builds a simulator from a validated configuration. The config is
// re-validated here so directly constructed configs get the same fail-fast
// treatment as loaded ones.
func New(cfg *config.Config, logger *slog.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	budget, err := director.NewBudget(cfg.Budget)
	if err != nil {
		return nil, fmt.Errorf("creating compute budget: %w", err)
	}
	tickDuration, err := meter().Float64Histogram(
		"sim.tick.duration",
		metric.WithDescription("Wall-clock time spent inside one Tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	s := &Simulator{
		cfg:      cfg,
		logger:   logger,
		factionA: core.Faction(cfg.Match.FactionA),
		factionB: core.Faction(cfg.Match.FactionB),
		pop:      combatant.NewPopulation(),
		factory:  combatant.NewFactory(cfg.Sim.DefaultHealth, cfg.Sim.DamageHistoryLimit),
		grid:     spatial.NewGrid(cfg.Sim.CellSize),
		squads:   squad.NewManager(),
		budget:   budget,

		tickDuration: tickDuration,
	}
	s.zones = zone.NewManager(s.factionA, s.factionB, cfg.Sim.DwellThreshold, cfg.Zones)
	s.ledger = ticket.NewLedger(cfg.Sim, s.factionA, s.factionB)
	s.respawns = respawn.NewManager(cfg.Sim.RespawnDelay, s.factory, s.squads, s.pop, s.squadLocation)
	s.director = director.New(cfg, s.pop, s.grid, s.squads, s.zones, budget)

	logger.Info("Simulation core ready",
		"factionA", s.factionA,
		"factionB", s.factionB,
		"zones", s.zones.Len(),
		"maxTickets", cfg.Sim.MaxTickets)
	return s, nil
}

// Tick advances the simulation by dt seconds of match time and returns
// everything that happened. dt must be positive; the host owns the pacing.
func (s *Simulator) Tick(dt float64) core.TickResult {
	tickStart := time.Now()
	s.tick++
	s.simTime += dt
	s.budget.BeginTick()

	// Spatial resync. Dead records never re-enter the index.
	for _, id := range s.pop.IDs() {
		if c, ok := s.pop.Get(id); ok && c.Alive() {
			s.grid.Sync(c.ID, c.Position)
		}
	}

	if s.ledger.Active() {
		// Zone capture evaluation, config order.
		for _, zid := range s.zones.IDs() {
			z, ok := s.zones.Get(zid)
			if !ok {
				continue
			}
			events := s.zones.Advance(zid, s.zoneOccupancy(z), dt, s.tick, s.simTime)
			s.pendingCaptures = append(s.pendingCaptures, events...)
		}

		// Ticket bleed and the match clock. Victory can resolve here.
		s.applyOutcome(s.ledger.Advance(dt, s.tick, s.simTime, s.zoneControl()))
	}

	if s.ledger.Active() {
		s.handleRespawns()
	}

	// Materialization and director work, measured against the AI budget.
	aiStart := time.Now()
	transitions := s.director.MaterializePass(s.tick, s.simTime)
	var stats *core.DirectorStats
	if s.ledger.Active() {
		s.director.ScheduleAI()
		for _, cas := range s.director.AbstractCombat(s.tick, s.simTime) {
			if victim, ok := s.pop.Get(cas.Victim); ok && victim.Alive() {
				s.processDeath(victim, cas.Killer)
			}
		}
		var orders []director.ReinforceOrder
		stats, orders = s.director.DirectorPass(s.tick, s.simTime)
		for _, o := range orders {
			s.reinforce(o)
		}
	}
	s.budget.ObserveAITime(time.Since(aiStart).Seconds())

	res := core.TickResult{
		Tick:         s.tick,
		SimTime:      s.simTime,
		Phase:        s.ledger.Phase(),
		Tickets:      s.ledger.Snapshot(),
		Zones:        s.zones.Statuses(),
		Materialized: s.director.MaterializedTransforms(),
		Kills:        s.pendingKills,
		Captures:     s.pendingCaptures,
		PhaseChanges: s.pendingPhases,
		Spawns:       s.pendingSpawns,
		Transitions:  transitions,
		Budget:       s.budget.Report(),
		Director:     stats,
	}
	if v := s.ledger.Victory(); v != nil && !s.victorySent {
		res.Victory = v
		s.victorySent = true
	}
	s.pendingKills = nil
	s.pendingCaptures = nil
	s.pendingPhases = nil
	s.pendingSpawns = nil

	s.tickDuration.Record(context.Background(), time.Since(tickStart).Seconds()*1000)
	return res
}

// CreateSquad spawns a squad of size members around pos: one leader on the
// anchor, followers offset alternately left and right by the formation
// spread. Returns false for an unknown faction or a non-positive size.
func (s *Simulator) CreateSquad(faction core.Faction, pos core.Position3D, size int) (core.SquadID, bool) {
	if size < 1 || (faction != s.factionA && faction != s.factionB) {
		return 0, false
	}
	sq := s.squads.Create(faction)
	for i := 0; i < size; i++ {
		role := core.RoleFollower
		if i == 0 {
			role = core.RoleLeader
		}
		s.spawnMember(sq.ID, faction, s.formationSlot(pos, i), role)
	}
	s.logger.Debug("Squad created",
		"squad", sq.ID,
		"faction", faction,
		"size", size)
	return sq.ID, true
}

// ApplyMove updates a living combatant's position. The spatial index catches
// up at the next tick's resync. Unknown or dead ids are ignored.
func (s *Simulator) ApplyMove(id core.CombatantID, pos core.Position3D) {
	c, ok := s.pop.Get(id)
	if !ok || !c.Alive() {
		return
	}
	c.Position = pos
}

// ApplyDamage records damage from attacker against victim and processes the
// death if health reaches zero. Unknown ids, dead victims and non-positive
// amounts are ignored.
func (s *Simulator) ApplyDamage(victim, attacker core.CombatantID, amount int) {
	if amount <= 0 {
		return
	}
	c, ok := s.pop.Get(victim)
	if !ok || !c.Alive() {
		return
	}
	c.RecordDamage(attacker, amount, s.simTime)
	c.Health -= amount
	if c.Health <= 0 {
		s.processDeath(c, attacker)
	}
}

// Despawn destroys a combatant record. Records are never destroyed
// implicitly: death only marks state, and the corpse survives until its
// respawn replaces it or the host calls this.
func (s *Simulator) Despawn(id core.CombatantID) {
	c, ok := s.pop.Get(id)
	if !ok {
		return
	}
	if c.Alive() {
		if sid, ok := s.squads.SquadOf(id); ok {
			s.removeFromSquad(sid, id)
		}
		s.grid.Remove(id)
		s.director.OnDeath(id)
	}
	s.pop.Remove(id)
}

// SetViewpoint moves the player viewpoint the materialization director
// measures distances against.
func (s *Simulator) SetViewpoint(pos core.Position3D) {
	s.director.SetViewpoint(pos)
}

// ForceEnd resolves the match immediately in winner's favour. An admin
// operation; no-op once the match has ended.
func (s *Simulator) ForceEnd(winner core.Faction) {
	s.applyOutcome(s.ledger.ForceEnd(winner, s.tick, s.simTime))
}

// AdjustTickets applies an admin ticket delta, clamped at zero. Draining a
// faction this way can resolve the match.
func (s *Simulator) AdjustTickets(faction core.Faction, delta float64) {
	s.applyOutcome(s.ledger.AdjustTickets(faction, delta, s.tick, s.simTime, s.zoneControl()))
}

// Restart resets the whole world to its config-authored initial state: fresh
// ticket pools, zones back to their authored owners, empty population and
// respawn queue, clocks at zero. The host re-seeds squads afterwards.
func (s *Simulator) Restart() {
	s.tick = 0
	s.simTime = 0
	s.pendingKills = nil
	s.pendingCaptures = nil
	s.pendingPhases = nil
	s.pendingSpawns = nil
	s.victorySent = false

	out := s.ledger.Restart(0, 0)
	s.pendingPhases = append(s.pendingPhases, out.PhaseChanges...)

	s.pop.Reset()
	s.grid.Reset()
	s.squads.Reset()
	s.respawns.Reset()
	s.director.Reset()
	s.zones.Reset(s.cfg.Zones)

	s.logger.Info("Match restarted")
}

// Phase returns the current match phase.
func (s *Simulator) Phase() core.MatchPhase {
	return s.ledger.Phase()
}

// Active reports whether the match is still running.
func (s *Simulator) Active() bool {
	return s.ledger.Active()
}

// Victory returns the resolution, or nil while the match is running.
func (s *Simulator) Victory() *core.VictoryResult {
	return s.ledger.Victory()
}

// CurrentTick returns the number of completed ticks.
func (s *Simulator) CurrentTick() uint64 {
	return s.tick
}

// SimTime returns accumulated match time in seconds.
func (s *Simulator) SimTime() float64 {
	return s.simTime
}

// Sample snapshots the ticket ledger for recording.
func (s *Simulator) Sample() core.TicketSample {
	return s.ledger.Sample(s.tick, s.simTime)
}

// Zones returns the outbound view of every zone in config order.
func (s *Simulator) Zones() []core.ZoneStatus {
	return s.zones.Statuses()
}

// AliveCounts returns the number of living combatants per faction.
func (s *Simulator) AliveCounts() map[core.Faction]int {
	return s.pop.CountAlive()
}

// Snapshot samples every population record for the recorder, corpses
// included, in join order. Tier falls back to ABSTRACT for records the
// director no longer tracks.
func (s *Simulator) Snapshot() []core.CombatantState {
	out := make([]core.CombatantState, 0, s.pop.Len())
	for _, id := range s.pop.IDs() {
		c, ok := s.pop.Get(id)
		if !ok {
			continue
		}
		tier, ok := s.director.Tier(c.ID)
		if !ok {
			tier = core.TierAbstract
		}
		out = append(out, core.CombatantState{
			SimID:     c.ID,
			Tick:      s.tick,
			SimTime:   s.simTime,
			Position:  c.Position,
			Health:    c.Health,
			Lifecycle: c.State,
			Tier:      tier,
			Squad:     c.Squad,
			Role:      c.Role,
		})
	}
	return out
}

// processDeath runs the full death pipeline: kill event with assist
// attribution, ticket penalty with its victory check, removal from the
// spatial index and director, squad roster maintenance, and the respawn
// queue. The population record stays, marked dead or respawning.
func (s *Simulator) processDeath(victim *combatant.Combatant, killerID core.CombatantID) {
	victim.Health = 0
	victim.State = core.LifecycleDead
	victim.Deaths++

	ev := core.KillEvent{
		Tick:          s.tick,
		SimTime:       s.simTime,
		Victim:        victim.ID,
		VictimFaction: victim.Faction,
	}
	if killer, ok := s.pop.Get(killerID); ok && killerID != victim.ID {
		ev.Killer = killerID
		ev.KillerFaction = killer.Faction
		ev.Distance = geo.Dist3D(killer.Position, victim.Position)
		if killer.Faction != victim.Faction {
			killer.Kills++
		}
	}
	ev.Assists = victim.AssistCandidates(killerID, s.cfg.Sim.AssistWindow, s.simTime)
	s.pendingKills = append(s.pendingKills, ev)

	s.logger.Debug("Combatant killed",
		"victim", victim.ID,
		"victimFaction", victim.Faction,
		"killer", ev.Killer,
		"assists", len(ev.Assists))

	s.applyOutcome(s.ledger.OnCombatantDeath(victim.Faction, s.tick, s.simTime, s.zoneControl()))

	s.grid.Remove(victim.ID)
	s.director.OnDeath(victim.ID)

	if sid, ok := s.squads.SquadOf(victim.ID); ok {
		s.removeFromSquad(sid, victim.ID)
		// Queued against the squad id on purpose: if the squad dissolves in
		// the interim, the entry drops silently at its due time.
		s.respawns.QueueRespawn(sid, victim.ID, s.simTime)
		victim.State = core.LifecycleRespawning
	}
}

// removeFromSquad takes member off the roster and promotes the successor's
// role when the leader fell.
func (s *Simulator) removeFromSquad(sid core.SquadID, member core.CombatantID) {
	sq, ok := s.squads.Get(sid)
	if !ok {
		return
	}
	wasLeader := sq.Leader == member
	s.squads.RemoveMember(sid, member)
	if !wasLeader {
		return
	}
	if sq, ok := s.squads.Get(sid); ok {
		if succ, ok := s.pop.Get(sq.Leader); ok && succ.Role != core.RoleLeader {
			succ.Role = core.RoleLeader
			s.logger.Debug("Squad leader succeeded",
				"squad", sid,
				"leader", succ.ID)
		}
	}
}

// handleRespawns registers due replacements and despawns the records they
// replace. Dropped entries despawn their originals too; nothing else will.
func (s *Simulator) handleRespawns() {
	spawns, dropped := s.respawns.HandlePending(s.simTime)
	for _, sp := range spawns {
		c := sp.Combatant
		s.pop.Add(c)
		s.grid.Sync(c.ID, c.Position)
		s.director.Register(c.ID)
		s.recordSpawn(c)
		s.pop.Remove(sp.Replaced)
		s.logger.Debug("Combatant respawned",
			"combatant", c.ID,
			"replaces", sp.Replaced,
			"squad", c.Squad)
	}
	for _, id := range dropped {
		s.pop.Remove(id)
	}
	if len(dropped) > 0 {
		s.logger.Debug("Respawns dropped", "count", len(dropped))
	}
}

// reinforce spawns the ordered number of followers at the squad's current
// position, formation-offset like an initial spawn.
func (s *Simulator) reinforce(o director.ReinforceOrder) {
	sq, ok := s.squads.Get(o.Squad)
	if !ok {
		return
	}
	pos, ok := s.squadLocation(o.Squad)
	if !ok {
		return
	}
	base := len(sq.Members)
	for i := 0; i < o.Count; i++ {
		s.spawnMember(o.Squad, sq.Faction, s.formationSlot(pos, base+i), core.RoleFollower)
	}
	s.logger.Debug("Squad reinforced",
		"squad", o.Squad,
		"count", o.Count)
}

// spawnMember builds one combatant and registers it everywhere: population,
// roster, spatial index, director (abstract tier).
func (s *Simulator) spawnMember(squadID core.SquadID, faction core.Faction, pos core.Position3D, role core.Role) *combatant.Combatant {
	c := s.factory.New(s.pop.NextID(), faction, pos,
		combatant.WithSquad(squadID),
		combatant.WithRole(role))
	s.pop.Add(c)
	s.squads.AddMember(squadID, c.ID)
	s.grid.Sync(c.ID, c.Position)
	s.director.Register(c.ID)
	s.recordSpawn(c)
	return c
}

// recordSpawn queues the recorder-facing registration of a fresh combatant.
func (s *Simulator) recordSpawn(c *combatant.Combatant) {
	s.pendingSpawns = append(s.pendingSpawns, core.CombatantRecord{
		SimID:       c.ID,
		JoinTick:    s.tick,
		JoinSimTime: s.simTime,
		Faction:     c.Faction,
		Squad:       c.Squad,
		Role:        c.Role,
		Health:      c.Health,
	})
}

// formationSlot places member i of a spawning group: the anchor for i 0,
// then alternating sides at growing multiples of the formation spread.
func (s *Simulator) formationSlot(anchor core.Position3D, i int) core.Position3D {
	if i == 0 {
		return anchor
	}
	offset := s.cfg.Sim.FormationSpread * float64((i+1)/2)
	if i%2 == 0 {
		offset = -offset
	}
	return core.Position3D{X: anchor.X + offset, Y: anchor.Y, Z: anchor.Z}
}

// squadLocation resolves a squad's spawn anchor: the leader's position, or
// the first living member's when the leader is down.
func (s *Simulator) squadLocation(id core.SquadID) (core.Position3D, bool) {
	sq, ok := s.squads.Get(id)
	if !ok {
		return core.Position3D{}, false
	}
	if c, ok := s.pop.Get(sq.Leader); ok && c.Alive() {
		return c.Position, true
	}
	for _, m := range sq.Members {
		if c, ok := s.pop.Get(m); ok && c.Alive() {
			return c.Position, true
		}
	}
	return core.Position3D{}, false
}

// zoneOccupancy counts living occupants per faction inside a zone's radius.
func (s *Simulator) zoneOccupancy(z *zone.Zone) zone.Occupancy {
	var occ zone.Occupancy
	for _, id := range s.grid.QueryRadius(z.Position, z.Radius) {
		c, ok := s.pop.Get(id)
		if !ok || !c.Alive() {
			continue
		}
		switch c.Faction {
		case s.factionA:
			occ.CountA++
		case s.factionB:
			occ.CountB++
		}
	}
	return occ
}

// zoneControl folds the zone arena into the ledger's inputs.
func (s *Simulator) zoneControl() ticket.ZoneControl {
	bleedA, bleedB := s.zones.BleedRates(s.cfg.Sim.MaxBleedRate)
	return ticket.ZoneControl{
		BleedA:      bleedA,
		BleedB:      bleedB,
		ControlledA: s.zones.ControlledCount(s.factionA),
		ControlledB: s.zones.ControlledCount(s.factionB),
		Contestable: s.zones.ContestableCount(),
	}
}

// applyOutcome folds a ledger outcome into the pending event buffers.
func (s *Simulator) applyOutcome(out ticket.Outcome) {
	for _, pc := range out.PhaseChanges {
		s.logger.Info("Match phase changed",
			"from", pc.From,
			"to", pc.To,
			"simTime", pc.SimTime)
	}
	s.pendingPhases = append(s.pendingPhases, out.PhaseChanges...)
	if out.Victory != nil {
		s.logger.Info("Match resolved",
			"winner", out.Victory.Winner,
			"reason", out.Victory.Reason,
			"tick", out.Victory.Tick)
	}
}
