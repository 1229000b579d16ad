// pkg/core/events.go
package core

// KillEvent records a combatant death with assist attribution.
// Killer is zero when the death had no attributable attacker.
type KillEvent struct {
	Tick          uint64        `json:"tick"`
	SimTime       float64       `json:"simTime"`
	Victim        CombatantID   `json:"victim"`
	Killer        CombatantID   `json:"killer,omitempty"`
	VictimFaction Faction       `json:"victimFaction"`
	KillerFaction Faction       `json:"killerFaction,omitempty"`
	Assists       []CombatantID `json:"assists,omitempty"`
	Distance      float64       `json:"distance,omitempty"`
}

// CaptureEvent records a zone changing owner or being neutralised.
type CaptureEvent struct {
	Tick     uint64       `json:"tick"`
	SimTime  float64      `json:"simTime"`
	Zone     ZoneID       `json:"zone"`
	ZoneName string       `json:"zoneName"`
	From     Faction      `json:"from,omitempty"`
	To       Faction      `json:"to,omitempty"`
	State    CaptureState `json:"state"`
}

// PhaseChangeEvent records a match clock transition.
type PhaseChangeEvent struct {
	Tick    uint64     `json:"tick"`
	SimTime float64    `json:"simTime"`
	From    MatchPhase `json:"from"`
	To      MatchPhase `json:"to"`
}

// MaterializationEvent records an agent crossing the fidelity boundary.
type MaterializationEvent struct {
	Tick      uint64      `json:"tick"`
	SimTime   float64     `json:"simTime"`
	Combatant CombatantID `json:"combatant"`
	Faction   Faction     `json:"faction"`
	To        Tier        `json:"to"`
	Distance  float64     `json:"distance"` // distance to viewpoint at transition
}

// VictoryResult is set once, when the match resolves.
type VictoryResult struct {
	Tick    uint64        `json:"tick"`
	SimTime float64       `json:"simTime"`
	Winner  Faction       `json:"winner,omitempty"` // empty on a draw
	Reason  VictoryReason `json:"reason"`
}

// FactionTickets is one faction's slice of the ledger at a point in time.
type FactionTickets struct {
	Faction   Faction `json:"faction"`
	Tickets   float64 `json:"tickets"`
	Kills     uint32  `json:"kills"`
	BleedRate float64 `json:"bleedRate"` // tickets per second currently draining
}

// TicketSample is a periodic snapshot of the ledger for recording.
type TicketSample struct {
	Tick     uint64           `json:"tick"`
	SimTime  float64          `json:"simTime"`
	Phase    MatchPhase       `json:"phase"`
	Factions []FactionTickets `json:"factions"`
}

// ZoneStatus is the per-tick outbound view of one capture zone.
type ZoneStatus struct {
	Zone            ZoneID       `json:"zone"`
	Name            string       `json:"name"`
	Position        Position3D   `json:"position"`
	Radius          float64      `json:"radius"`
	Owner           Faction      `json:"owner,omitempty"`
	State           CaptureState `json:"state"`
	Progress        float64      `json:"progress"` // 0..100
	ProgressFaction Faction      `json:"progressFaction,omitempty"`
	HomeBase        bool         `json:"homeBase"`
}

// CombatantTransform is the renderer-facing state of one materialized combatant.
type CombatantTransform struct {
	ID       CombatantID `json:"id"`
	Faction  Faction     `json:"faction"`
	Position Position3D  `json:"position"`
	Health   int         `json:"health"`
	Squad    SquadID     `json:"squad,omitempty"`
	Role     Role        `json:"role"`
}

// BudgetReport carries the per-tick compute budget counters. Denials and
// overruns are diagnostic, never errors.
type BudgetReport struct {
	RaycastsUsed    uint32  `json:"raycastsUsed"`
	RaycastsDenied  uint32  `json:"raycastsDenied"`
	AIHighRuns      uint32  `json:"aiHighRuns"`
	AIMediumRuns    uint32  `json:"aiMediumRuns"`
	AIDeferred      uint32  `json:"aiDeferred"`
	BudgetExceeded  bool    `json:"budgetExceeded"`
	SevereOverrun   bool    `json:"severeOverrun"`
	DirectorElapsed float64 `json:"directorElapsed"` // seconds spent in AI/director work this tick
}

// DirectorStats summarises the population split after a director pass.
type DirectorStats struct {
	Tick              uint64  `json:"tick"`
	SimTime           float64 `json:"simTime"`
	Abstract          int     `json:"abstract"`
	Materialized      int     `json:"materialized"`
	PendingPromotions int     `json:"pendingPromotions"`
	Reinforced        int     `json:"reinforced"`
	ZoneOrders        int     `json:"zoneOrders"`
}

// TickResult is everything one simulation tick hands back to the host loop.
// The core never invokes callbacks; consumers read this struct.
type TickResult struct {
	Tick         uint64                 `json:"tick"`
	SimTime      float64                `json:"simTime"`
	Phase        MatchPhase             `json:"phase"`
	Tickets      []FactionTickets       `json:"tickets"`
	Victory      *VictoryResult         `json:"victory,omitempty"`
	Zones        []ZoneStatus           `json:"zones"`
	Materialized []CombatantTransform   `json:"materialized"`
	Kills        []KillEvent            `json:"kills,omitempty"`
	Captures     []CaptureEvent         `json:"captures,omitempty"`
	PhaseChanges []PhaseChangeEvent     `json:"phaseChanges,omitempty"`
	Spawns       []CombatantRecord      `json:"spawns,omitempty"`
	Transitions  []MaterializationEvent `json:"transitions,omitempty"`
	Budget       BudgetReport           `json:"budget"`
	Director     *DirectorStats         `json:"director,omitempty"` // set only on director ticks
}
