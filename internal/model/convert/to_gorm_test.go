package convert

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warfront/simcore/internal/model"
	"github.com/warfront/simcore/pkg/core"
)

func TestPosition3DToPoint(t *testing.T) {
	pos := core.Position3D{X: 100.5, Y: 200.5, Z: 50.0}
	pt := position3DToPoint(pos)

	coord, ok := pt.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 100.5, coord.XY.X)
	assert.Equal(t, 200.5, coord.XY.Y)
	assert.Equal(t, 50.0, coord.Z)
}

func TestAssistsToJSON_Empty(t *testing.T) {
	assert.Equal(t, "[]", string(assistsToJSON(nil)))
	assert.Equal(t, "[]", string(factionsToJSON(nil)))
}

// Round-trip: Core → GORM → Core. MatchID and wall-clock stamps are backend
// concerns and stay zero here.
func TestCombatantRoundTrip(t *testing.T) {
	original := core.CombatantRecord{
		SimID:       42,
		JoinTick:    120,
		JoinSimTime: 12.0,
		Faction:     core.FactionUS,
		Squad:       7,
		Role:        core.RoleLeader,
		Health:      100,
	}

	gormObj := CoreToCombatant(original)
	roundTripped := CombatantToCore(gormObj)

	assert.Equal(t, original, roundTripped)
}

func TestCombatantStateRoundTrip(t *testing.T) {
	original := core.CombatantState{
		SimID:     9,
		Tick:      600,
		SimTime:   60.0,
		Position:  core.Position3D{X: 1000.0, Y: 2000.0, Z: 12.5},
		Health:    85,
		Lifecycle: core.LifecycleAlive,
		Tier:      core.TierMaterialized,
		Squad:     3,
		Role:      core.RoleFollower,
	}

	gormObj := CoreToCombatantState(original)
	roundTripped := CombatantStateToCore(gormObj)

	assert.Equal(t, original, roundTripped)
	assert.Equal(t, float32(12.5), gormObj.ElevationASL)
}

func TestZoneRoundTrip(t *testing.T) {
	original := core.ZoneRecord{
		SimID:    "hill_937",
		Name:     "Hill 937",
		Position: core.Position3D{X: 4200.0, Y: 3800.0, Z: 0},
		Radius:   150,
		HomeBase: false,
		Owner:    core.FactionNVA,
	}

	gormObj := CoreToZone(original)
	roundTripped := ZoneToCore(gormObj)

	assert.Equal(t, original, roundTripped)
}

func TestZoneStateRoundTrip(t *testing.T) {
	original := core.ZoneState{
		SimID:           "hill_937",
		Tick:            750,
		SimTime:         75.0,
		Owner:           core.FactionNVA,
		State:           core.CaptureContested,
		Progress:        62.5,
		ProgressFaction: core.FactionUS,
	}

	gormObj := CoreToZoneState(original)
	roundTripped := ZoneStateToCore(gormObj)

	assert.Equal(t, original, roundTripped)
}

func TestKillEventRoundTrip(t *testing.T) {
	original := core.KillEvent{
		Tick:          500,
		SimTime:       50.0,
		Victim:        9,
		Killer:        4,
		VictimFaction: core.FactionUS,
		KillerFaction: core.FactionNVA,
		Assists:       []core.CombatantID{5, 6},
		Distance:      220.5,
	}

	gormObj := CoreToKillEvent(original)
	roundTripped := KillEventToCore(gormObj)

	require.True(t, gormObj.KillerSimID.Valid)
	assert.Equal(t, int32(4), gormObj.KillerSimID.Int32)
	assert.Equal(t, original, roundTripped)
}

func TestKillEventRoundTrip_NoKiller(t *testing.T) {
	original := core.KillEvent{
		Tick:          500,
		SimTime:       50.0,
		Victim:        9,
		VictimFaction: core.FactionUS,
	}

	gormObj := CoreToKillEvent(original)
	roundTripped := KillEventToCore(gormObj)

	assert.Equal(t, sql.NullInt32{}, gormObj.KillerSimID)
	assert.Equal(t, core.CombatantID(0), roundTripped.Killer)
	assert.Equal(t, "[]", string(gormObj.Assists))
}

func TestCaptureEventRoundTrip(t *testing.T) {
	original := core.CaptureEvent{
		Tick:     800,
		SimTime:  80.0,
		Zone:     "lz_xray",
		ZoneName: "LZ X-Ray",
		From:     core.FactionNVA,
		To:       core.FactionUS,
		State:    core.CaptureControlledA,
	}

	gormObj := CoreToCaptureEvent(original)
	roundTripped := CaptureEventToCore(gormObj)

	assert.Equal(t, original, roundTripped)
}

func TestTicketStateRoundTrip(t *testing.T) {
	original := core.TicketSample{
		Tick:    900,
		SimTime: 90.0,
		Phase:   core.PhaseCombat,
		Factions: []core.FactionTickets{
			{Faction: core.FactionUS, Tickets: 450.5, Kills: 12, BleedRate: 0.5},
			{Faction: core.FactionNVA, Tickets: 390, Kills: 20},
		},
	}

	gormObj := CoreToTicketState(original)
	roundTripped := TicketStateToCore(gormObj)

	assert.Equal(t, original, roundTripped)
}

func TestMaterializationEventRoundTrip(t *testing.T) {
	original := core.MaterializationEvent{
		Tick:      300,
		SimTime:   30.0,
		Combatant: 17,
		Faction:   core.FactionVC,
		To:        core.TierMaterialized,
		Distance:  480.5,
	}

	gormObj := CoreToMaterializationEvent(original)
	roundTripped := MaterializationEventToCore(gormObj)

	assert.Equal(t, original, roundTripped)
}

func TestPhaseChangeRoundTrip(t *testing.T) {
	original := core.PhaseChangeEvent{
		Tick:    100,
		SimTime: 10.0,
		From:    core.PhaseSetup,
		To:      core.PhaseCombat,
	}

	gormObj := CoreToPhaseChange(original)
	roundTripped := PhaseChangeToCore(gormObj)

	assert.Equal(t, original, roundTripped)
}

func TestDirectorStatRoundTrip(t *testing.T) {
	original := core.DirectorStats{
		Tick:              400,
		SimTime:           40.0,
		Abstract:          120,
		Materialized:      40,
		PendingPromotions: 3,
		Reinforced:        8,
		ZoneOrders:        5,
	}

	gormObj := CoreToDirectorStat(original)
	roundTripped := DirectorStatToCore(gormObj)

	assert.Equal(t, original, roundTripped)
}

// Compile-time interface checks for CoreToX functions
var (
	_ model.Combatant            = CoreToCombatant(core.CombatantRecord{})
	_ model.CombatantState       = CoreToCombatantState(core.CombatantState{})
	_ model.Zone                 = CoreToZone(core.ZoneRecord{})
	_ model.ZoneState            = CoreToZoneState(core.ZoneState{})
	_ model.KillEvent            = CoreToKillEvent(core.KillEvent{})
	_ model.CaptureEvent         = CoreToCaptureEvent(core.CaptureEvent{})
	_ model.TicketState          = CoreToTicketState(core.TicketSample{})
	_ model.MaterializationEvent = CoreToMaterializationEvent(core.MaterializationEvent{})
	_ model.PhaseChange          = CoreToPhaseChange(core.PhaseChangeEvent{})
	_ model.DirectorStat         = CoreToDirectorStat(core.DirectorStats{})
)
