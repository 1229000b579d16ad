// internal/scenario/scenario.go
// Package scenario parses line-oriented match scripts. A script stands in
// for the host game engine during development and replay runs: it feeds
// spawns, movement, damage and admin commands into the simulator at fixed
// ticks.
package scenario

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/warfront/simcore/internal/geo"
	"github.com/warfront/simcore/pkg/core"
)

// Verb names a scripted operation.
type Verb string

const (
	VerbSpawn     Verb = "spawn"
	VerbMove      Verb = "move"
	VerbDamage    Verb = "damage"
	VerbViewpoint Verb = "viewpoint"
	VerbDespawn   Verb = "despawn"
	VerbTickets   Verb = "tickets"
	VerbForceEnd  Verb = "forceend"
	VerbRestart   Verb = "restart"
	VerbEnd       Verb = "end"
)

// Command is one scripted operation, due at Tick. Only the fields the verb
// uses are populated.
type Command struct {
	Tick     uint64
	Verb     Verb
	Faction  core.Faction
	Count    int
	Target   core.CombatantID
	Attacker core.CombatantID
	Amount   int
	Delta    float64
	Position core.Position3D
}

// Parse reads a script, one command per line:
//
//	at <tick> spawn <faction> <count> <x,y,z>
//	at <tick> move <combatant> <x,y,z>
//	at <tick> damage <victim> <attacker> <amount>
//	at <tick> viewpoint <x,y,z>
//	at <tick> despawn <combatant>
//	at <tick> tickets <faction> <delta>
//	at <tick> forceend <faction|draw>
//	at <tick> restart
//	at <tick> end
//
// Positions are comma-joined map-local metres. '#' starts a comment, blank
// lines are skipped, and ticks must not decrease from one command to the
// next.
func Parse(r io.Reader) ([]Command, error) {
	var commands []Command
	scanner := bufio.NewScanner(r)
	lineNo := 0
	var lastTick uint64
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, err := parseCommand(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if cmd.Tick < lastTick {
			return nil, fmt.Errorf("line %d: tick %d precedes tick %d", lineNo, cmd.Tick, lastTick)
		}
		lastTick = cmd.Tick
		commands = append(commands, cmd)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading script: %w", err)
	}
	return commands, nil
}

// ParseFile reads a script from disk.
func ParseFile(path string) ([]Command, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening script: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func parseCommand(fields []string) (Command, error) {
	var cmd Command
	if fields[0] != "at" {
		return cmd, fmt.Errorf("expected 'at', got %q", fields[0])
	}
	if len(fields) < 3 {
		return cmd, fmt.Errorf("expected 'at <tick> <verb>', got %d fields", len(fields))
	}

	tick, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return cmd, fmt.Errorf("error converting tick to uint: %w", err)
	}
	cmd.Tick = tick
	cmd.Verb = Verb(fields[2])
	args := fields[3:]

	switch cmd.Verb {
	case VerbSpawn:
		if len(args) != 3 {
			return cmd, fmt.Errorf("spawn wants <faction> <count> <x,y,z>, got %d args", len(args))
		}
		cmd.Faction, err = parseFaction(args[0])
		if err != nil {
			return cmd, err
		}
		cmd.Count, err = strconv.Atoi(args[1])
		if err != nil {
			return cmd, fmt.Errorf("error converting count to int: %w", err)
		}
		if cmd.Count < 1 {
			return cmd, fmt.Errorf("spawn count must be positive, got %d", cmd.Count)
		}
		cmd.Position, err = parsePosition(args[2])
		if err != nil {
			return cmd, err
		}

	case VerbMove:
		if len(args) != 2 {
			return cmd, fmt.Errorf("move wants <combatant> <x,y,z>, got %d args", len(args))
		}
		cmd.Target, err = parseCombatantID(args[0])
		if err != nil {
			return cmd, err
		}
		cmd.Position, err = parsePosition(args[1])
		if err != nil {
			return cmd, err
		}

	case VerbDamage:
		if len(args) != 3 {
			return cmd, fmt.Errorf("damage wants <victim> <attacker> <amount>, got %d args", len(args))
		}
		cmd.Target, err = parseCombatantID(args[0])
		if err != nil {
			return cmd, err
		}
		cmd.Attacker, err = parseCombatantID(args[1])
		if err != nil {
			return cmd, err
		}
		cmd.Amount, err = strconv.Atoi(args[2])
		if err != nil {
			return cmd, fmt.Errorf("error converting amount to int: %w", err)
		}

	case VerbViewpoint:
		if len(args) != 1 {
			return cmd, fmt.Errorf("viewpoint wants <x,y,z>, got %d args", len(args))
		}
		cmd.Position, err = parsePosition(args[0])
		if err != nil {
			return cmd, err
		}

	case VerbDespawn:
		if len(args) != 1 {
			return cmd, fmt.Errorf("despawn wants <combatant>, got %d args", len(args))
		}
		cmd.Target, err = parseCombatantID(args[0])
		if err != nil {
			return cmd, err
		}

	case VerbTickets:
		if len(args) != 2 {
			return cmd, fmt.Errorf("tickets wants <faction> <delta>, got %d args", len(args))
		}
		cmd.Faction, err = parseFaction(args[0])
		if err != nil {
			return cmd, err
		}
		cmd.Delta, err = strconv.ParseFloat(args[1], 64)
		if err != nil {
			return cmd, fmt.Errorf("error converting delta to float: %w", err)
		}

	case VerbForceEnd:
		if len(args) != 1 {
			return cmd, fmt.Errorf("forceend wants <faction|draw>, got %d args", len(args))
		}
		if !strings.EqualFold(args[0], "draw") {
			cmd.Faction, err = parseFaction(args[0])
			if err != nil {
				return cmd, err
			}
		}

	case VerbRestart, VerbEnd:
		if len(args) != 0 {
			return cmd, fmt.Errorf("%s takes no arguments", cmd.Verb)
		}

	default:
		return cmd, fmt.Errorf("unknown verb %q", fields[2])
	}

	return cmd, nil
}

func parseFaction(s string) (core.Faction, error) {
	switch f := core.Faction(strings.ToUpper(s)); f {
	case core.FactionUS, core.FactionNVA, core.FactionVC:
		return f, nil
	}
	return core.FactionNone, fmt.Errorf("unknown faction %q", s)
}

func parseCombatantID(s string) (core.CombatantID, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("error converting combatant id to uint: %w", err)
	}
	return core.CombatantID(id), nil
}

func parsePosition(s string) (core.Position3D, error) {
	pos, err := geo.ParsePosition(s)
	if err != nil {
		return pos, fmt.Errorf("invalid position %q: %w", s, err)
	}
	return pos, nil
}
