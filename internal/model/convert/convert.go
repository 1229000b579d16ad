package convert

import (
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/warfront/simcore/internal/geo"
	"github.com/warfront/simcore/internal/model"
	"github.com/warfront/simcore/pkg/core"
)

// pointToPosition3D converts a PostGIS geom.Point to a core.Position3D.
func pointToPosition3D(p geom.Point) core.Position3D {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Position3D{}
	}
	return core.Position3D{X: coord.XY.X, Y: coord.XY.Y, Z: coord.Z}
}

// roleFromString maps a stored role column back to a core.Role.
func roleFromString(s string) core.Role {
	if s == core.RoleLeader.String() {
		return core.RoleLeader
	}
	return core.RoleFollower
}

// assistsFromJSON unpacks a stored assist id list.
func assistsFromJSON(data []byte) []core.CombatantID {
	var assists []core.CombatantID
	if len(data) > 0 {
		_ = json.Unmarshal(data, &assists)
	}
	return assists
}

// factionsFromJSON unpacks a stored ticket ledger slice.
func factionsFromJSON(data []byte) []core.FactionTickets {
	var factions []core.FactionTickets
	if len(data) > 0 {
		_ = json.Unmarshal(data, &factions)
	}
	return factions
}

// CombatantToCore converts a GORM model.Combatant to a core.CombatantRecord.
func CombatantToCore(c model.Combatant) core.CombatantRecord {
	return core.CombatantRecord{
		SimID:       core.CombatantID(c.SimID),
		JoinTick:    c.JoinTick,
		JoinSimTime: c.JoinSimTime,
		Faction:     core.Faction(c.Faction),
		Squad:       core.SquadID(c.SquadID),
		Role:        roleFromString(c.Role),
		Health:      int(c.SpawnHealth),
	}
}

// CombatantStateToCore converts a GORM model.CombatantState to a core.CombatantState.
// Elevation is restored from the ElevationASL column; the stored point is XY.
func CombatantStateToCore(s model.CombatantState) core.CombatantState {
	pos := pointToPosition3D(s.Position)
	pos.Z = float64(s.ElevationASL)

	return core.CombatantState{
		SimID:     core.CombatantID(s.CombatantSimID),
		Tick:      s.Tick,
		SimTime:   s.SimTime,
		Position:  pos,
		Health:    int(s.Health),
		Lifecycle: core.LifecycleState(s.Lifecycle),
		Tier:      core.Tier(s.Tier),
		Squad:     core.SquadID(s.SquadID),
		Role:      roleFromString(s.Role),
	}
}

// ZoneToCore converts a GORM model.Zone to a core.ZoneRecord.
func ZoneToCore(z model.Zone) core.ZoneRecord {
	return core.ZoneRecord{
		SimID:    core.ZoneID(z.SimID),
		Name:     z.Name,
		Position: pointToPosition3D(z.Position),
		Radius:   z.Radius,
		HomeBase: z.HomeBase,
		Owner:    core.Faction(z.InitialOwner),
	}
}

// ZoneStateToCore converts a GORM model.ZoneState to a core.ZoneState.
func ZoneStateToCore(s model.ZoneState) core.ZoneState {
	return core.ZoneState{
		SimID:           core.ZoneID(s.ZoneSimID),
		Tick:            s.Tick,
		SimTime:         s.SimTime,
		Owner:           core.Faction(s.Owner),
		State:           core.CaptureState(s.State),
		Progress:        float64(s.Progress),
		ProgressFaction: core.Faction(s.ProgressFaction),
	}
}

// KillEventToCore converts a GORM model.KillEvent to a core.KillEvent.
// A NULL killer column maps back to the zero id.
func KillEventToCore(e model.KillEvent) core.KillEvent {
	result := core.KillEvent{
		Tick:          e.Tick,
		SimTime:       e.SimTime,
		Victim:        core.CombatantID(e.VictimSimID),
		VictimFaction: core.Faction(e.VictimFaction),
		KillerFaction: core.Faction(e.KillerFaction),
		Assists:       assistsFromJSON(e.Assists),
		Distance:      float64(e.Distance),
	}

	if e.KillerSimID.Valid {
		result.Killer = core.CombatantID(e.KillerSimID.Int32)
	}

	return result
}

// CaptureEventToCore converts a GORM model.CaptureEvent to a core.CaptureEvent.
func CaptureEventToCore(e model.CaptureEvent) core.CaptureEvent {
	return core.CaptureEvent{
		Tick:     e.Tick,
		SimTime:  e.SimTime,
		Zone:     core.ZoneID(e.ZoneSimID),
		ZoneName: e.ZoneName,
		From:     core.Faction(e.FromFaction),
		To:       core.Faction(e.ToFaction),
		State:    core.CaptureState(e.State),
	}
}

// TicketStateToCore converts a GORM model.TicketState to a core.TicketSample.
func TicketStateToCore(s model.TicketState) core.TicketSample {
	return core.TicketSample{
		Tick:     s.Tick,
		SimTime:  s.SimTime,
		Phase:    core.MatchPhase(s.Phase),
		Factions: factionsFromJSON(s.Factions),
	}
}

// MaterializationEventToCore converts a GORM model.MaterializationEvent to a
// core.MaterializationEvent.
func MaterializationEventToCore(e model.MaterializationEvent) core.MaterializationEvent {
	return core.MaterializationEvent{
		Tick:      e.Tick,
		SimTime:   e.SimTime,
		Combatant: core.CombatantID(e.CombatantSimID),
		Faction:   core.Faction(e.Faction),
		To:        core.Tier(e.ToTier),
		Distance:  float64(e.Distance),
	}
}

// PhaseChangeToCore converts a GORM model.PhaseChange to a core.PhaseChangeEvent.
func PhaseChangeToCore(e model.PhaseChange) core.PhaseChangeEvent {
	return core.PhaseChangeEvent{
		Tick:    e.Tick,
		SimTime: e.SimTime,
		From:    core.MatchPhase(e.FromPhase),
		To:      core.MatchPhase(e.ToPhase),
	}
}

// DirectorStatToCore converts a GORM model.DirectorStat to a core.DirectorStats.
func DirectorStatToCore(s model.DirectorStat) core.DirectorStats {
	return core.DirectorStats{
		Tick:              s.Tick,
		SimTime:           s.SimTime,
		Abstract:          s.Abstract,
		Materialized:      s.Materialized,
		PendingPromotions: s.PendingPromotions,
		Reinforced:        s.Reinforced,
		ZoneOrders:        s.ZoneOrders,
	}
}

// MatchToCore converts a GORM model.Match to a core.Match for export headers.
func MatchToCore(m *model.Match) core.Match {
	return core.Match{
		ID:          m.ID,
		Name:        m.Name,
		MapName:     m.Map.Name,
		StartTime:   m.StartTime,
		FactionA:    core.Faction(m.FactionA),
		FactionB:    core.Faction(m.FactionB),
		MaxTickets:  m.MaxTickets,
		TickRate:    m.TickRate,
		Tag:         m.Tag,
		CoreVersion: m.CoreVersion,
	}
}

// MapToCore converts a GORM model.Map to a core.CampaignMap.
func MapToCore(m *model.Map) core.CampaignMap {
	lon, lat := geo.Origin4326(m.Location)

	return core.CampaignMap{
		Name:        m.Name,
		DisplayName: m.DisplayName,
		SizeMetres:  m.SizeMetres,
		Latitude:    lat,
		Longitude:   lon,
	}
}
