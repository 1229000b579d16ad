// internal/scenario/player.go
package scenario

import "github.com/warfront/simcore/pkg/core"

// Driver is the slice of the simulator a script drives. *sim.Simulator
// satisfies it.
type Driver interface {
	CreateSquad(faction core.Faction, pos core.Position3D, size int) (core.SquadID, bool)
	ApplyMove(id core.CombatantID, pos core.Position3D)
	ApplyDamage(victim, attacker core.CombatantID, amount int)
	SetViewpoint(pos core.Position3D)
	Despawn(id core.CombatantID)
	AdjustTickets(faction core.Faction, delta float64)
	ForceEnd(winner core.Faction)
	Restart()
}

// Player steps through a parsed script, applying every command that has
// come due. Commands must be in tick order, as Parse guarantees.
type Player struct {
	commands []Command
	next     int
	done     bool
}

// NewPlayer wraps a parsed command list.
func NewPlayer(commands []Command) *Player {
	return &Player{commands: commands}
}

// Apply runs every command due at or before tick against d. It reports
// true once an end command has fired; the script stays finished after
// that, even if commands remain.
func (p *Player) Apply(tick uint64, d Driver) bool {
	if p.done {
		return true
	}
	for p.next < len(p.commands) && p.commands[p.next].Tick <= tick {
		cmd := p.commands[p.next]
		p.next++
		switch cmd.Verb {
		case VerbSpawn:
			d.CreateSquad(cmd.Faction, cmd.Position, cmd.Count)
		case VerbMove:
			d.ApplyMove(cmd.Target, cmd.Position)
		case VerbDamage:
			d.ApplyDamage(cmd.Target, cmd.Attacker, cmd.Amount)
		case VerbViewpoint:
			d.SetViewpoint(cmd.Position)
		case VerbDespawn:
			d.Despawn(cmd.Target)
		case VerbTickets:
			d.AdjustTickets(cmd.Faction, cmd.Delta)
		case VerbForceEnd:
			d.ForceEnd(cmd.Faction)
		case VerbRestart:
			d.Restart()
		case VerbEnd:
			p.done = true
			return true
		}
	}
	return false
}

// Done reports whether an end command has fired.
func (p *Player) Done() bool {
	return p.done
}

// Remaining returns the number of commands not yet applied.
func (p *Player) Remaining() int {
	return len(p.commands) - p.next
}
