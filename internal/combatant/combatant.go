// Package combatant holds the soldier records of the population and the
// stateless factory that builds them.
package combatant

import (
	"github.com/warfront/simcore/pkg/core"
)

// DamageEntry is one hit in a combatant's rolling damage history.
type DamageEntry struct {
	Attacker core.CombatantID
	Amount   int
	SimTime  float64
}

// Combatant is one soldier. Created by the Factory, owned by the Population,
// removed only on explicit despawn.
type Combatant struct {
	ID       core.CombatantID
	Faction  core.Faction
	Position core.Position3D
	Health   int
	State    core.LifecycleState
	Squad    core.SquadID // 0 = unassigned
	Role     core.Role
	Kills    uint32
	Deaths   uint32

	damageLog   []DamageEntry
	damageLimit int
}

// Alive reports whether the combatant participates in the simulation.
func (c *Combatant) Alive() bool {
	return c.State == core.LifecycleAlive && c.Health > 0
}

// RecordDamage appends to the rolling damage history, evicting the oldest
// entry once the bound is reached.
func (c *Combatant) RecordDamage(attacker core.CombatantID, amount int, simTime float64) {
	if c.damageLimit <= 0 {
		return
	}
	if len(c.damageLog) >= c.damageLimit {
		copy(c.damageLog, c.damageLog[1:])
		c.damageLog = c.damageLog[:len(c.damageLog)-1]
	}
	c.damageLog = append(c.damageLog, DamageEntry{Attacker: attacker, Amount: amount, SimTime: simTime})
}

// AssistCandidates returns the distinct attackers within the assist window,
// excluding the killer, and clears the history. Call exactly once per death.
func (c *Combatant) AssistCandidates(killer core.CombatantID, window, now float64) []core.CombatantID {
	var assists []core.CombatantID
	seen := make(map[core.CombatantID]struct{}, len(c.damageLog))
	for _, e := range c.damageLog {
		if e.Attacker == killer || e.Attacker == 0 {
			continue
		}
		if now-e.SimTime > window {
			continue
		}
		if _, dup := seen[e.Attacker]; dup {
			continue
		}
		seen[e.Attacker] = struct{}{}
		assists = append(assists, e.Attacker)
	}
	c.damageLog = c.damageLog[:0]
	return assists
}

// DamageLogLen reports the current damage history depth.
func (c *Combatant) DamageLogLen() int {
	return len(c.damageLog)
}
