// pkg/core/record.go
package core

// CombatantRecord registers one combatant with the recorder. One is emitted
// for every spawn: initial squad creation, respawn replacements, and director
// reinforcements alike.
type CombatantRecord struct {
	SimID       CombatantID `json:"simId"`
	JoinTick    uint64      `json:"joinTick"`
	JoinSimTime float64     `json:"joinSimTime"`
	Faction     Faction     `json:"faction"`
	Squad       SquadID     `json:"squad"`
	Role        Role        `json:"role"`
	Health      int         `json:"health"`
}

// CombatantState is one time-series sample of a combatant, taken at the
// recording cadence rather than every tick.
type CombatantState struct {
	SimID     CombatantID    `json:"simId"`
	Tick      uint64         `json:"tick"`
	SimTime   float64        `json:"simTime"`
	Position  Position3D     `json:"position"`
	Health    int            `json:"health"`
	Lifecycle LifecycleState `json:"lifecycle"`
	Tier      Tier           `json:"tier"`
	Squad     SquadID        `json:"squad"`
	Role      Role           `json:"role"`
}

// ZoneRecord registers one capture zone with the recorder at match start.
type ZoneRecord struct {
	SimID    ZoneID     `json:"simId"`
	Name     string     `json:"name"`
	Position Position3D `json:"position"`
	Radius   float64    `json:"radius"`
	HomeBase bool       `json:"homeBase"`
	Owner    Faction    `json:"owner,omitempty"`
}

// ZoneState is one time-series sample of a capture zone.
type ZoneState struct {
	SimID           ZoneID       `json:"simId"`
	Tick            uint64       `json:"tick"`
	SimTime         float64      `json:"simTime"`
	Owner           Faction      `json:"owner,omitempty"`
	State           CaptureState `json:"state"`
	Progress        float64      `json:"progress"`
	ProgressFaction Faction      `json:"progressFaction,omitempty"`
}
