package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent
// tables in the database schema.
var DatabaseModels = []interface{}{
	&Map{},
	&Match{},
	&Combatant{},
	&CombatantState{},
	&Zone{},
	&ZoneState{},
	&KillEvent{},
	&CaptureEvent{},
	&TicketState{},
	&MaterializationEvent{},
	&PhaseChange{},
	&DirectorStat{},
	&CorePerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// CorePerformance is the model for recorder performance metrics, sampled by
// the monitor goroutine.
type CorePerformance struct {
	Time                time.Time         `json:"time" gorm:"type:timestamptz;index:idx_time"`
	MatchID             uint              `json:"matchId" gorm:"index:idx_coreperformance_match_id"`
	Match               Match             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	BufferLengths       BufferLengths     `json:"bufferLengths" gorm:"embedded;embeddedPrefix:buffer_"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*CorePerformance) TableName() string {
	return "core_performances"
}

// BufferLengths is the model for dispatcher buffer depths. Depths are also
// tracked as OTel gauges; this embeds them in the perf row for offline runs.
type BufferLengths struct {
	CombatantStates       uint16 `json:"combatantStates"`
	ZoneStates            uint16 `json:"zoneStates"`
	KillEvents            uint16 `json:"killEvents"`
	CaptureEvents         uint16 `json:"captureEvents"`
	TicketStates          uint16 `json:"ticketStates"`
	MaterializationEvents uint16 `json:"materializationEvents"`
	PhaseChanges          uint16 `json:"phaseChanges"`
	DirectorStats         uint16 `json:"directorStats"`
}

// WriteQueueLengths is the model for the DB write queue depths.
type WriteQueueLengths struct {
	Combatants            uint16 `json:"combatants"`
	CombatantStates       uint16 `json:"combatantStates"`
	Zones                 uint16 `json:"zones"`
	ZoneStates            uint16 `json:"zoneStates"`
	KillEvents            uint16 `json:"killEvents"`
	CaptureEvents         uint16 `json:"captureEvents"`
	TicketStates          uint16 `json:"ticketStates"`
	MaterializationEvents uint16 `json:"materializationEvents"`
	PhaseChanges          uint16 `json:"phaseChanges"`
	DirectorStats         uint16 `json:"directorStats"`
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Map is the main model for a campaign map.
type Map struct {
	gorm.Model
	Name        string     `json:"name" gorm:"size:127"`
	DisplayName string     `json:"displayName" gorm:"size:127"`
	SizeMetres  float64    `json:"sizeMetres"`
	Latitude    float32    `json:"latitude" gorm:"-"`
	Longitude   float32    `json:"longitude" gorm:"-"`
	Location    geom.Point `json:"location"`
	Matches     []Match
}

func (*Map) TableName() string {
	return "maps"
}

// GetOrInsert looks the map up by name and inserts it when missing. The
// receiver is overwritten with the stored row either way.
func (m *Map) GetOrInsert(db *gorm.DB) (
	created bool,
	err error,
) {
	var existing Map
	err = db.Where("name = ?", m.Name).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			err = db.Create(m).Error
			return true, err
		}
		return false, err
	}
	*m = existing
	return false, nil
}

// Match is the main model for one recorded simulation run.
type Match struct {
	gorm.Model
	Name        string    `json:"name" gorm:"size:200"`
	Tag         string    `json:"tag" gorm:"size:127"`
	StartTime   time.Time `json:"startTime" gorm:"type:timestamptz;index:idx_match_start"`
	MapID       uint
	Map         Map     `gorm:"foreignkey:MapID"`
	FactionA    string  `json:"factionA" gorm:"size:16"`
	FactionB    string  `json:"factionB" gorm:"size:16"`
	MaxTickets  float64 `json:"maxTickets"`
	TickRate    float64 `json:"tickRate"`
	CoreVersion string  `json:"coreVersion" gorm:"size:64"`

	// Resolution, written at EndMatch. Winner is empty for a draw and NULL
	// while the match is still running.
	Winner          sql.NullString `json:"winner" gorm:"size:16"`
	VictoryReason   string         `json:"victoryReason" gorm:"size:32"`
	EndTick         uint64         `json:"endTick"`
	DurationSeconds float64        `json:"durationSeconds"`

	Combatants            []Combatant
	Zones                 []Zone
	KillEvents            []KillEvent
	CaptureEvents         []CaptureEvent
	TicketStates          []TicketState
	MaterializationEvents []MaterializationEvent
	PhaseChanges          []PhaseChange
	DirectorStats         []DirectorStat
}

func (*Match) TableName() string {
	return "matches"
}

// Combatant is one soldier in the population. Uses composite primary key
// (MatchID, SimID); SimID is the core-assigned sequential id, never reused
// within a match.
type Combatant struct {
	MatchID     uint           `json:"matchId" gorm:"primaryKey;autoIncrement:false"`
	SimID       uint32         `json:"simId" gorm:"primaryKey;autoIncrement:false"`
	Match       Match          `gorm:"foreignkey:MatchID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `json:"deletedAt" gorm:"index"`
	JoinTime    time.Time      `json:"joinTime" gorm:"type:timestamptz;NOT NULL;index:idx_combatant_join_time"`
	JoinTick    uint64         `json:"joinTick"`
	JoinSimTime float64        `json:"joinSimTime"`
	Faction     string         `json:"faction" gorm:"size:16"`
	SquadID     uint32         `json:"squadId" gorm:"index:idx_combatant_squad_id"`
	Role        string         `json:"role" gorm:"size:16;default:follower"`
	SpawnHealth int16          `json:"spawnHealth"`
}

func (*Combatant) TableName() string {
	return "combatants"
}

func (c *Combatant) Get(db *gorm.DB) (err error) {
	err = db.Where(&c).Order(
		"join_time DESC",
	).First(&c).Error
	return err
}

// CombatantState tracks combatant state at a point in match time.
// References Combatant by (MatchID, CombatantSimID) composite FK.
type CombatantState struct {
	ID             uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time           time.Time `json:"time" gorm:"type:timestamptz;"`
	MatchID        uint      `json:"matchId" gorm:"index:idx_combatantstate_match_id"`
	Match          Match     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick           uint64    `json:"tick" gorm:"index:idx_combatantstate_tick"`
	SimTime        float64   `json:"simTime"`
	CombatantSimID uint32    `json:"combatantSimId" gorm:"index:idx_combatantstate_sim_id"`
	Combatant      Combatant `gorm:"foreignkey:MatchID,CombatantSimID;references:MatchID,SimID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	Position     geom.Point `json:"position"` // map-local XY, metres
	ElevationASL float32    `json:"elevationASL"`
	Health       int16      `json:"health" gorm:"default:0"`
	Lifecycle    uint8      `json:"lifecycle" gorm:"default:0"` // 0=alive, 1=dead, 2=respawning
	Tier         string     `json:"tier" gorm:"size:16;default:ABSTRACT"`
	SquadID      uint32     `json:"squadId"`
	Role         string     `json:"role" gorm:"size:16"`
}

func (*CombatantState) TableName() string {
	return "combatant_states"
}

// Zone is a config-authored capture zone registered at match start. SimID is
// the authored string id, unique within a match.
type Zone struct {
	ID           uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	MatchID      uint       `json:"matchId" gorm:"index:idx_zone_match_id"`
	Match        Match      `gorm:"foreignkey:MatchID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	SimID        string     `json:"simId" gorm:"size:64;index:idx_zone_sim_id"`
	Name         string     `json:"name" gorm:"size:127"`
	Position     geom.Point `json:"position"`
	Radius       float64    `json:"radius"`
	HomeBase     bool       `json:"homeBase" gorm:"default:false"`
	InitialOwner string     `json:"initialOwner" gorm:"size:16"`
}

func (*Zone) TableName() string {
	return "zones"
}

// ZoneState tracks capture progress at a point in match time. Zones are
// referenced by their authored SimID rather than a numeric FK so states can
// stream before the zone row commits.
type ZoneState struct {
	ID              uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time            time.Time `json:"time" gorm:"type:timestamptz;"`
	MatchID         uint      `json:"matchId" gorm:"index:idx_zonestate_match_id"`
	Match           Match     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick            uint64    `json:"tick" gorm:"index:idx_zonestate_tick"`
	SimTime         float64   `json:"simTime"`
	ZoneSimID       string    `json:"zoneSimId" gorm:"size:64;index:idx_zonestate_zone_sim_id"`
	Owner           string    `json:"owner" gorm:"size:16"`
	State           string    `json:"state" gorm:"size:32"`
	Progress        float32   `json:"progress"`
	ProgressFaction string    `json:"progressFaction" gorm:"size:16"`
}

func (*ZoneState) TableName() string {
	return "zone_states"
}

////////////////////////
// EVENT MODELS
////////////////////////

// KillEvent records a combatant death with assist attribution. KillerSimID
// is NULL when the death had no attributable attacker.
type KillEvent struct {
	ID             uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time           time.Time      `json:"time" gorm:"type:timestamptz;"`
	MatchID        uint           `json:"matchId" gorm:"index:idx_killevent_match_id"`
	Match          Match          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick           uint64         `json:"tick" gorm:"index:idx_killevent_tick"`
	SimTime        float64        `json:"simTime"`
	VictimSimID    uint32         `json:"victimSimId"`
	VictimFaction  string         `json:"victimFaction" gorm:"size:16"`
	KillerSimID    sql.NullInt32  `json:"killerSimId" gorm:"default:NULL"`
	KillerFaction  string         `json:"killerFaction" gorm:"size:16"`
	Assists        datatypes.JSON `json:"assists" gorm:"type:jsonb;default:'[]'"`
	Distance       float32        `json:"distance" gorm:"default:0"`
}

func (*KillEvent) TableName() string {
	return "kill_events"
}

// CaptureEvent records a zone changing owner or being neutralised.
type CaptureEvent struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time        time.Time `json:"time" gorm:"type:timestamptz;"`
	MatchID     uint      `json:"matchId" gorm:"index:idx_captureevent_match_id"`
	Match       Match     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick        uint64    `json:"tick" gorm:"index:idx_captureevent_tick"`
	SimTime     float64   `json:"simTime"`
	ZoneSimID   string    `json:"zoneSimId" gorm:"size:64"`
	ZoneName    string    `json:"zoneName" gorm:"size:127"`
	FromFaction string    `json:"fromFaction" gorm:"size:16"`
	ToFaction   string    `json:"toFaction" gorm:"size:16"`
	State       string    `json:"state" gorm:"size:32"`
}

func (*CaptureEvent) TableName() string {
	return "capture_events"
}

// TicketState is a periodic snapshot of the ticket ledger. Factions carries
// the per-faction slices as JSON so the schema survives faction renames.
type TicketState struct {
	ID       uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time     time.Time      `json:"time" gorm:"type:timestamptz;"`
	MatchID  uint           `json:"matchId" gorm:"index:idx_ticketstate_match_id"`
	Match    Match          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick     uint64         `json:"tick" gorm:"index:idx_ticketstate_tick"`
	SimTime  float64        `json:"simTime"`
	Phase    string         `json:"phase" gorm:"size:16"`
	Factions datatypes.JSON `json:"factions" gorm:"type:jsonb;default:'[]'"`
}

func (*TicketState) TableName() string {
	return "ticket_states"
}

// MaterializationEvent records an agent crossing the fidelity boundary.
type MaterializationEvent struct {
	ID             uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time           time.Time `json:"time" gorm:"type:timestamptz;"`
	MatchID        uint      `json:"matchId" gorm:"index:idx_materialization_match_id"`
	Match          Match     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick           uint64    `json:"tick" gorm:"index:idx_materialization_tick"`
	SimTime        float64   `json:"simTime"`
	CombatantSimID uint32    `json:"combatantSimId"`
	Faction        string    `json:"faction" gorm:"size:16"`
	ToTier         string    `json:"toTier" gorm:"size:16"`
	Distance       float32   `json:"distance"`
}

func (*MaterializationEvent) TableName() string {
	return "materialization_events"
}

// PhaseChange records a match clock transition.
type PhaseChange struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;"`
	MatchID   uint      `json:"matchId" gorm:"index:idx_phasechange_match_id"`
	Match     Match     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick      uint64    `json:"tick"`
	SimTime   float64   `json:"simTime"`
	FromPhase string    `json:"fromPhase" gorm:"size:16"`
	ToPhase   string    `json:"toPhase" gorm:"size:16"`
}

func (*PhaseChange) TableName() string {
	return "phase_changes"
}

// DirectorStat summarises the population split after a director pass,
// alongside the budget counters for that tick.
type DirectorStat struct {
	ID                uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time              time.Time `json:"time" gorm:"type:timestamptz;"`
	MatchID           uint      `json:"matchId" gorm:"index:idx_directorstat_match_id"`
	Match             Match     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick              uint64    `json:"tick" gorm:"index:idx_directorstat_tick"`
	SimTime           float64   `json:"simTime"`
	Abstract          int       `json:"abstract"`
	Materialized      int       `json:"materialized"`
	PendingPromotions int       `json:"pendingPromotions"`
	Reinforced        int       `json:"reinforced"`
	ZoneOrders        int       `json:"zoneOrders"`
}

func (*DirectorStat) TableName() string {
	return "director_stats"
}
