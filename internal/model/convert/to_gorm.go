// Package convert provides functions to convert between GORM models and wire models
package convert

import (
	"database/sql"
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/warfront/simcore/internal/geo"
	"github.com/warfront/simcore/internal/model"
	"github.com/warfront/simcore/pkg/core"
)

// position3DToPoint converts a core.Position3D to a PostGIS geom.Point.
// Elevation rides in the separate ElevationASL column; the point itself is XY.
func position3DToPoint(p core.Position3D) geom.Point {
	coords := geom.Coordinates{XY: geom.XY{X: p.X, Y: p.Y}, Z: p.Z}
	return geom.NewPoint(coords)
}

// assistsToJSON converts an assist id list to datatypes.JSON for DB storage.
func assistsToJSON(assists []core.CombatantID) datatypes.JSON {
	if len(assists) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(assists)
	return datatypes.JSON(data)
}

// factionsToJSON converts a ticket ledger slice to datatypes.JSON for DB storage.
func factionsToJSON(factions []core.FactionTickets) datatypes.JSON {
	if len(factions) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(factions)
	return datatypes.JSON(data)
}

// CoreToMatch converts a core.Match to a GORM model.Match.
// MapID is stamped by the storage backend after the map get-or-insert.
func CoreToMatch(m core.Match) model.Match {
	return model.Match{
		Name:        m.Name,
		Tag:         m.Tag,
		StartTime:   m.StartTime,
		FactionA:    string(m.FactionA),
		FactionB:    string(m.FactionB),
		MaxTickets:  m.MaxTickets,
		TickRate:    m.TickRate,
		CoreVersion: m.CoreVersion,
	}
}

// CoreToMap converts a core.CampaignMap to a GORM model.Map.
// The origin georeference is persisted as its EPSG:3857 projection;
// latitude and longitude live only on the wire model.
func CoreToMap(m core.CampaignMap) model.Map {
	return model.Map{
		Name:        m.Name,
		DisplayName: m.DisplayName,
		SizeMetres:  m.SizeMetres,
		Latitude:    float32(m.Latitude),
		Longitude:   float32(m.Longitude),
		Location:    geo.Origin3857(m.Longitude, m.Latitude),
	}
}

// CoreToCombatant converts a core.CombatantRecord to a GORM model.Combatant.
// JoinTime and MatchID are stamped by the storage backend at insert.
func CoreToCombatant(r core.CombatantRecord) model.Combatant {
	return model.Combatant{
		SimID:       uint32(r.SimID),
		JoinTick:    r.JoinTick,
		JoinSimTime: r.JoinSimTime,
		Faction:     string(r.Faction),
		SquadID:     uint32(r.Squad),
		Role:        r.Role.String(),
		SpawnHealth: int16(r.Health),
	}
}

// CoreToCombatantState converts a core.CombatantState to a GORM model.CombatantState.
func CoreToCombatantState(s core.CombatantState) model.CombatantState {
	return model.CombatantState{
		Tick:           s.Tick,
		SimTime:        s.SimTime,
		CombatantSimID: uint32(s.SimID),
		Position:       position3DToPoint(s.Position),
		ElevationASL:   float32(s.Position.Z),
		Health:         int16(s.Health),
		Lifecycle:      uint8(s.Lifecycle),
		Tier:           string(s.Tier),
		SquadID:        uint32(s.Squad),
		Role:           s.Role.String(),
	}
}

// CoreToZone converts a core.ZoneRecord to a GORM model.Zone.
func CoreToZone(z core.ZoneRecord) model.Zone {
	return model.Zone{
		SimID:        string(z.SimID),
		Name:         z.Name,
		Position:     position3DToPoint(z.Position),
		Radius:       z.Radius,
		HomeBase:     z.HomeBase,
		InitialOwner: string(z.Owner),
	}
}

// CoreToZoneState converts a core.ZoneState to a GORM model.ZoneState.
func CoreToZoneState(s core.ZoneState) model.ZoneState {
	return model.ZoneState{
		Tick:            s.Tick,
		SimTime:         s.SimTime,
		ZoneSimID:       string(s.SimID),
		Owner:           string(s.Owner),
		State:           string(s.State),
		Progress:        float32(s.Progress),
		ProgressFaction: string(s.ProgressFaction),
	}
}

// CoreToKillEvent converts a core.KillEvent to a GORM model.KillEvent.
// A zero Killer id means no attributable attacker and maps to NULL.
func CoreToKillEvent(e core.KillEvent) model.KillEvent {
	result := model.KillEvent{
		Tick:          e.Tick,
		SimTime:       e.SimTime,
		VictimSimID:   uint32(e.Victim),
		VictimFaction: string(e.VictimFaction),
		KillerFaction: string(e.KillerFaction),
		Assists:       assistsToJSON(e.Assists),
		Distance:      float32(e.Distance),
	}

	if e.Killer != 0 {
		result.KillerSimID = sql.NullInt32{Int32: int32(e.Killer), Valid: true}
	}

	return result
}

// CoreToCaptureEvent converts a core.CaptureEvent to a GORM model.CaptureEvent.
func CoreToCaptureEvent(e core.CaptureEvent) model.CaptureEvent {
	return model.CaptureEvent{
		Tick:        e.Tick,
		SimTime:     e.SimTime,
		ZoneSimID:   string(e.Zone),
		ZoneName:    e.ZoneName,
		FromFaction: string(e.From),
		ToFaction:   string(e.To),
		State:       string(e.State),
	}
}

// CoreToTicketState converts a core.TicketSample to a GORM model.TicketState.
func CoreToTicketState(s core.TicketSample) model.TicketState {
	return model.TicketState{
		Tick:     s.Tick,
		SimTime:  s.SimTime,
		Phase:    string(s.Phase),
		Factions: factionsToJSON(s.Factions),
	}
}

// CoreToMaterializationEvent converts a core.MaterializationEvent to a GORM
// model.MaterializationEvent.
func CoreToMaterializationEvent(e core.MaterializationEvent) model.MaterializationEvent {
	return model.MaterializationEvent{
		Tick:           e.Tick,
		SimTime:        e.SimTime,
		CombatantSimID: uint32(e.Combatant),
		Faction:        string(e.Faction),
		ToTier:         string(e.To),
		Distance:       float32(e.Distance),
	}
}

// CoreToPhaseChange converts a core.PhaseChangeEvent to a GORM model.PhaseChange.
func CoreToPhaseChange(e core.PhaseChangeEvent) model.PhaseChange {
	return model.PhaseChange{
		Tick:      e.Tick,
		SimTime:   e.SimTime,
		FromPhase: string(e.From),
		ToPhase:   string(e.To),
	}
}

// CoreToDirectorStat converts a core.DirectorStats to a GORM model.DirectorStat.
func CoreToDirectorStat(s core.DirectorStats) model.DirectorStat {
	return model.DirectorStat{
		Tick:              s.Tick,
		SimTime:           s.SimTime,
		Abstract:          s.Abstract,
		Materialized:      s.Materialized,
		PendingPromotions: s.PendingPromotions,
		Reinforced:        s.Reinforced,
		ZoneOrders:        s.ZoneOrders,
	}
}
