// pkg/core/types.go
package core

import "fmt"

// Faction identifies one side in a match.
type Faction string

const (
	FactionNone Faction = ""
	FactionUS   Faction = "US"
	FactionNVA  Faction = "NVA"
	FactionVC   Faction = "VC"
)

// CombatantID is the stable identifier of a combatant for the lifetime of a match.
// IDs are never reused; a respawned soldier is a new combatant.
type CombatantID uint32

// SquadID identifies a squad. Squad IDs are never reused within a match.
type SquadID uint32

// ZoneID is the config-authored identifier of a capture zone.
type ZoneID string

// Position3D represents a map-local 3D coordinate without GIS dependencies.
type Position3D struct {
	X float64 `json:"x"` // easting, metres
	Y float64 `json:"y"` // northing, metres
	Z float64 `json:"z"` // elevation ASL, metres
}

// LifecycleState tracks where a combatant is in its spawn/death cycle.
type LifecycleState uint8

const (
	LifecycleAlive LifecycleState = iota
	LifecycleDead
	LifecycleRespawning
)

func (s LifecycleState) String() string {
	switch s {
	case LifecycleAlive:
		return "alive"
	case LifecycleDead:
		return "dead"
	case LifecycleRespawning:
		return "respawning"
	default:
		return fmt.Sprintf("lifecycle(%d)", uint8(s))
	}
}

// Role is a combatant's position within its squad.
type Role uint8

const (
	RoleFollower Role = iota
	RoleLeader
)

func (r Role) String() string {
	if r == RoleLeader {
		return "leader"
	}
	return "follower"
}

// MatchPhase is the state of the match clock.
type MatchPhase string

const (
	PhaseSetup    MatchPhase = "SETUP"
	PhaseCombat   MatchPhase = "COMBAT"
	PhaseOvertime MatchPhase = "OVERTIME"
	PhaseEnded    MatchPhase = "ENDED"
)

// CaptureState is the externally visible state of a capture zone.
// A and B refer to the two sides configured for the match, in order.
type CaptureState string

const (
	CaptureNeutral     CaptureState = "NEUTRAL"
	CaptureContested   CaptureState = "CONTESTED"
	CaptureControlledA CaptureState = "FACTION_A_CONTROLLED"
	CaptureControlledB CaptureState = "FACTION_B_CONTROLLED"
)

// Tier is the simulation fidelity tier of an agent.
type Tier string

const (
	TierAbstract     Tier = "ABSTRACT"
	TierMaterialized Tier = "MATERIALIZED"
)

// VictoryReason records which condition resolved the match.
type VictoryReason string

const (
	VictoryKillTarget VictoryReason = "KILL_TARGET"
	VictoryTickets    VictoryReason = "TICKETS"
	VictoryAllZones   VictoryReason = "ALL_ZONES"
	VictoryTimeLimit  VictoryReason = "TIME_LIMIT"
	VictoryOvertime   VictoryReason = "OVERTIME"
	VictoryForced     VictoryReason = "FORCED"
)
