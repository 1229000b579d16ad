// Package ticket owns the match clock, the per-faction ticket pools and kill
// counters, and victory resolution. The ledger is mutated only through its
// methods; once the phase reaches ENDED every mutator becomes a no-op, so a
// victory never re-fires. Accessed only from the tick goroutine; no locks.
package ticket

import (
	"math"

	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/pkg/core"
)

// ZoneControl is the read-only zone ownership summary the ledger needs each
// tick. The caller computes it from the zone arena; the ledger never reaches
// into zone state itself.
type ZoneControl struct {
	BleedA      float64 // tickets/second faction A is draining
	BleedB      float64
	ControlledA int // non-home zones owned by faction A
	ControlledB int
	Contestable int // total non-home zones
}

// Outcome carries everything a ledger mutation produced: zero or more phase
// transitions and, at most once per match, the victory result.
type Outcome struct {
	PhaseChanges []core.PhaseChangeEvent
	Victory      *core.VictoryResult
}

// Ledger is the finite-state match clock: SETUP -> COMBAT -> OVERTIME -> ENDED.
type Ledger struct {
	factionA core.Faction
	factionB core.Faction

	maxTickets   float64
	setup        float64
	matchLimit   float64
	overtimeCap  float64
	closeness    float64
	deathPenalty float64
	killTarget   int

	ticketsA float64
	ticketsB float64
	killsA   uint32
	killsB   uint32

	phase        core.MatchPhase
	elapsed      float64
	phaseElapsed float64
	victory      *core.VictoryResult

	lastBleedA float64
	lastBleedB float64
}

// NewLedger builds a ledger in SETUP with both pools at the configured
// maximum. Config validation has already run.
func NewLedger(cfg config.SimConfig, factionA, factionB core.Faction) *Ledger {
	return &Ledger{
		factionA:     factionA,
		factionB:     factionB,
		maxTickets:   cfg.MaxTickets,
		setup:        cfg.SetupDuration,
		matchLimit:   cfg.MatchDuration,
		overtimeCap:  cfg.OvertimeCap,
		closeness:    cfg.ClosenessThreshold,
		deathPenalty: cfg.DeathPenalty,
		killTarget:   cfg.KillTarget,
		ticketsA:     cfg.MaxTickets,
		ticketsB:     cfg.MaxTickets,
		phase:        core.PhaseSetup,
	}
}

// Advance moves the match clock by dt seconds, applying bleed and resolving
// phase transitions and victory. A single call can cross a phase boundary;
// the remainder of dt is processed under the new phase, so bleed starts the
// instant COMBAT does.
func (l *Ledger) Advance(dt float64, tick uint64, simTime float64, zc ZoneControl) Outcome {
	var out Outcome
	if l.phase == core.PhaseEnded || dt <= 0 {
		return out
	}

	remaining := dt
	for remaining > 0 && l.phase != core.PhaseEnded {
		switch l.phase {
		case core.PhaseSetup:
			need := l.setup - l.phaseElapsed
			if remaining < need {
				l.phaseElapsed += remaining
				l.elapsed += remaining
				remaining = 0
				break
			}
			l.elapsed += need
			remaining -= need
			l.transition(core.PhaseCombat, tick, simTime, &out)
			// A transition is a ticket-relevant edge: setup-phase deaths may
			// already have decided the match.
			if w, reason, ok := l.victoryCheck(zc); ok {
				l.end(w, reason, tick, simTime, &out)
			}

		case core.PhaseCombat:
			step := remaining
			atLimit := false
			if need := l.matchLimit - l.phaseElapsed; step >= need {
				step = need
				atLimit = true
			}
			l.applyBleed(step, zc)
			l.phaseElapsed += step
			l.elapsed += step
			remaining -= step
			if w, reason, ok := l.victoryCheck(zc); ok {
				l.end(w, reason, tick, simTime, &out)
				break
			}
			if atLimit {
				l.resolveTimeLimit(tick, simTime, &out)
			}

		case core.PhaseOvertime:
			step := remaining
			atCap := false
			if l.overtimeCap > 0 {
				if capLeft := l.overtimeCap - l.phaseElapsed; step >= capLeft {
					step = capLeft
					atCap = true
				}
			}
			l.applyBleed(step, zc)
			l.phaseElapsed += step
			l.elapsed += step
			remaining -= step
			if w, reason, ok := l.victoryCheck(zc); ok {
				l.end(w, reason, tick, simTime, &out)
				break
			}
			if gap := math.Abs(l.ticketsA - l.ticketsB); gap >= l.closeness {
				l.end(l.leader(), core.VictoryOvertime, tick, simTime, &out)
				break
			}
			if atCap {
				l.end(l.leader(), core.VictoryOvertime, tick, simTime, &out)
			}
		}
	}
	return out
}

// OnCombatantDeath deducts the death penalty from the dying faction, credits
// the opposing kill counter, and immediately re-checks victory: a death can
// end the match on the tick it happens. Deaths during SETUP still cost
// tickets but cannot resolve the match until COMBAT begins.
func (l *Ledger) OnCombatantDeath(victim core.Faction, tick uint64, simTime float64, zc ZoneControl) Outcome {
	var out Outcome
	if l.phase == core.PhaseEnded {
		return out
	}
	switch victim {
	case l.factionA:
		l.ticketsA = max(0, l.ticketsA-l.deathPenalty)
		l.killsB++
	case l.factionB:
		l.ticketsB = max(0, l.ticketsB-l.deathPenalty)
		l.killsA++
	default:
		return out
	}
	if l.phase == core.PhaseSetup {
		return out
	}
	if w, reason, ok := l.victoryCheck(zc); ok {
		l.end(w, reason, tick, simTime, &out)
	}
	return out
}

// AdjustTickets adds delta (which may be negative) to a faction's pool,
// clamped at zero, and re-checks victory. Unknown factions are a no-op.
func (l *Ledger) AdjustTickets(faction core.Faction, delta float64, tick uint64, simTime float64, zc ZoneControl) Outcome {
	var out Outcome
	if l.phase == core.PhaseEnded {
		return out
	}
	switch faction {
	case l.factionA:
		l.ticketsA = max(0, l.ticketsA+delta)
	case l.factionB:
		l.ticketsB = max(0, l.ticketsB+delta)
	default:
		return out
	}
	if l.phase == core.PhaseSetup {
		return out
	}
	if w, reason, ok := l.victoryCheck(zc); ok {
		l.end(w, reason, tick, simTime, &out)
	}
	return out
}

// ForceEnd ends the match immediately with a declared winner, which may be
// empty for an administrative draw.
func (l *Ledger) ForceEnd(winner core.Faction, tick uint64, simTime float64) Outcome {
	var out Outcome
	if l.phase == core.PhaseEnded {
		return out
	}
	l.end(winner, core.VictoryForced, tick, simTime, &out)
	return out
}

// Restart resets the ledger to SETUP with full pools. Configuration is
// preserved. This is the one operation that leaves ENDED.
func (l *Ledger) Restart(tick uint64, simTime float64) Outcome {
	var out Outcome
	if l.phase != core.PhaseSetup {
		l.transition(core.PhaseSetup, tick, simTime, &out)
	}
	l.ticketsA = l.maxTickets
	l.ticketsB = l.maxTickets
	l.killsA = 0
	l.killsB = 0
	l.elapsed = 0
	l.phaseElapsed = 0
	l.victory = nil
	l.lastBleedA = 0
	l.lastBleedB = 0
	return out
}

// Phase returns the current match phase.
func (l *Ledger) Phase() core.MatchPhase {
	return l.phase
}

// Active reports whether the match can still change state.
func (l *Ledger) Active() bool {
	return l.phase != core.PhaseEnded
}

// Victory returns the resolved result, or nil while the match is live.
func (l *Ledger) Victory() *core.VictoryResult {
	return l.victory
}

// Tickets returns a faction's remaining pool; zero for unknown factions.
func (l *Ledger) Tickets(f core.Faction) float64 {
	switch f {
	case l.factionA:
		return l.ticketsA
	case l.factionB:
		return l.ticketsB
	}
	return 0
}

// Kills returns a faction's kill counter.
func (l *Ledger) Kills(f core.Faction) uint32 {
	switch f {
	case l.factionA:
		return l.killsA
	case l.factionB:
		return l.killsB
	}
	return 0
}

// Elapsed returns total seconds since match start.
func (l *Ledger) Elapsed() float64 {
	return l.elapsed
}

// PhaseElapsed returns seconds spent in the current phase.
func (l *Ledger) PhaseElapsed() float64 {
	return l.phaseElapsed
}

// Snapshot returns both factions' ledger slices with the bleed rates last
// applied.
func (l *Ledger) Snapshot() []core.FactionTickets {
	return []core.FactionTickets{
		{Faction: l.factionA, Tickets: l.ticketsA, Kills: l.killsA, BleedRate: l.lastBleedA},
		{Faction: l.factionB, Tickets: l.ticketsB, Kills: l.killsB, BleedRate: l.lastBleedB},
	}
}

// Sample packages a snapshot for the recorder.
func (l *Ledger) Sample(tick uint64, simTime float64) core.TicketSample {
	return core.TicketSample{
		Tick:     tick,
		SimTime:  simTime,
		Phase:    l.phase,
		Factions: l.Snapshot(),
	}
}

func (l *Ledger) applyBleed(dt float64, zc ZoneControl) {
	if dt <= 0 {
		return
	}
	l.ticketsA = max(0, l.ticketsA-zc.BleedA*dt)
	l.ticketsB = max(0, l.ticketsB-zc.BleedB*dt)
	l.lastBleedA = zc.BleedA
	l.lastBleedB = zc.BleedB
}

// victoryCheck evaluates the live conditions in priority order: kill target,
// ticket exhaustion, total zone control. The time limit is handled separately
// because it only exists at the COMBAT boundary.
func (l *Ledger) victoryCheck(zc ZoneControl) (core.Faction, core.VictoryReason, bool) {
	if l.killTarget > 0 {
		aHit := int(l.killsA) >= l.killTarget
		bHit := int(l.killsB) >= l.killTarget
		switch {
		case aHit && bHit:
			// Both over the line (setup-phase kills count but cannot end the
			// match until COMBAT): higher count takes it, a tie is a draw.
			switch {
			case l.killsA > l.killsB:
				return l.factionA, core.VictoryKillTarget, true
			case l.killsB > l.killsA:
				return l.factionB, core.VictoryKillTarget, true
			}
			return core.FactionNone, core.VictoryKillTarget, true
		case aHit:
			return l.factionA, core.VictoryKillTarget, true
		case bHit:
			return l.factionB, core.VictoryKillTarget, true
		}
	}

	aOut := l.ticketsA <= 0
	bOut := l.ticketsB <= 0
	switch {
	case aOut && bOut:
		return core.FactionNone, core.VictoryTickets, true
	case aOut:
		return l.factionB, core.VictoryTickets, true
	case bOut:
		return l.factionA, core.VictoryTickets, true
	}

	if zc.Contestable > 0 {
		if zc.ControlledA == zc.Contestable {
			return l.factionA, core.VictoryAllZones, true
		}
		if zc.ControlledB == zc.Contestable {
			return l.factionB, core.VictoryAllZones, true
		}
	}

	return core.FactionNone, "", false
}

// resolveTimeLimit handles the COMBAT clock running out: the leader wins on
// tickets unless the gap is inside the closeness threshold, which extends the
// match into OVERTIME instead.
func (l *Ledger) resolveTimeLimit(tick uint64, simTime float64, out *Outcome) {
	gap := math.Abs(l.ticketsA - l.ticketsB)
	if l.closeness > 0 && gap < l.closeness {
		l.transition(core.PhaseOvertime, tick, simTime, out)
		return
	}
	l.end(l.leader(), core.VictoryTimeLimit, tick, simTime, out)
}

// leader returns the faction with more tickets, or none on an exact tie.
func (l *Ledger) leader() core.Faction {
	switch {
	case l.ticketsA > l.ticketsB:
		return l.factionA
	case l.ticketsB > l.ticketsA:
		return l.factionB
	}
	return core.FactionNone
}

func (l *Ledger) transition(to core.MatchPhase, tick uint64, simTime float64, out *Outcome) {
	out.PhaseChanges = append(out.PhaseChanges, core.PhaseChangeEvent{
		Tick:    tick,
		SimTime: simTime,
		From:    l.phase,
		To:      to,
	})
	l.phase = to
	l.phaseElapsed = 0
}

func (l *Ledger) end(winner core.Faction, reason core.VictoryReason, tick uint64, simTime float64, out *Outcome) {
	l.transition(core.PhaseEnded, tick, simTime, out)
	v := &core.VictoryResult{
		Tick:    tick,
		SimTime: simTime,
		Winner:  winner,
		Reason:  reason,
	}
	l.victory = v
	out.Victory = v
}
