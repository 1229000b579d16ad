// internal/storage/memory/memory_test.go
package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/internal/storage"
	"github.com/warfront/simcore/pkg/core"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*Backend)(nil)

// Verify Backend implements storage.Uploadable interface
var _ storage.Uploadable = (*Backend)(nil)

func testMatch() (*core.Match, *core.CampaignMap) {
	match := &core.Match{
		Name:        "Test Match",
		StartTime:   time.Now(),
		FactionA:    core.FactionUS,
		FactionB:    core.FactionNVA,
		MaxTickets:  500,
		TickRate:    10,
		CoreVersion: "1.0.0",
	}
	campaignMap := &core.CampaignMap{
		Name:       "ia_drang",
		SizeMetres: 10240,
	}
	return match, campaignMap
}

func TestNew(t *testing.T) {
	cfg := config.MemoryConfig{
		OutputDir:      "/tmp/test",
		CompressOutput: true,
	}
	b := New(cfg)

	if b == nil {
		t.Fatal("New returned nil")
	}
	if b.cfg.OutputDir != "/tmp/test" {
		t.Errorf("expected OutputDir=/tmp/test, got %s", b.cfg.OutputDir)
	}
	if !b.cfg.CompressOutput {
		t.Error("expected CompressOutput=true")
	}
	if b.combatants == nil {
		t.Error("combatants map not initialized")
	}
	if b.zones == nil {
		t.Error("zones map not initialized")
	}
}

func TestInitAndClose(t *testing.T) {
	b := New(config.MemoryConfig{})

	if err := b.Init(); err != nil {
		t.Errorf("Init failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestStartMatch(t *testing.T) {
	b := New(config.MemoryConfig{})
	match, campaignMap := testMatch()

	// Add some data before starting
	_ = b.AddCombatant(&core.CombatantRecord{SimID: 1})
	_ = b.RecordKillEvent(&core.KillEvent{Victim: 1})

	// Start a new match - should reset collections
	if err := b.StartMatch(match, campaignMap); err != nil {
		t.Fatalf("StartMatch failed: %v", err)
	}

	if b.match != match {
		t.Error("match not set")
	}
	if b.campaignMap != campaignMap {
		t.Error("campaign map not set")
	}
	if len(b.combatants) != 0 {
		t.Error("combatants not reset")
	}
	if len(b.killEvents) != 0 {
		t.Error("kill events not reset")
	}
}

func TestAddCombatant(t *testing.T) {
	b := New(config.MemoryConfig{})

	c1 := &core.CombatantRecord{SimID: 1, Faction: core.FactionUS, Role: core.RoleLeader}
	c2 := &core.CombatantRecord{SimID: 2, Faction: core.FactionNVA}

	if err := b.AddCombatant(c1); err != nil {
		t.Fatalf("AddCombatant failed: %v", err)
	}
	if err := b.AddCombatant(c2); err != nil {
		t.Fatalf("AddCombatant failed: %v", err)
	}

	if len(b.combatants) != 2 {
		t.Errorf("expected 2 combatants, got %d", len(b.combatants))
	}
	if b.combatants[1].Combatant.Faction != core.FactionUS {
		t.Error("combatant 1 not stored correctly")
	}

	got, ok := b.GetCombatant(2)
	if !ok {
		t.Fatal("GetCombatant(2) not found")
	}
	if got.Faction != core.FactionNVA {
		t.Errorf("expected NVA, got %s", got.Faction)
	}
	if _, ok := b.GetCombatant(99); ok {
		t.Error("GetCombatant(99) should not be found")
	}
}

func TestAddZone(t *testing.T) {
	b := New(config.MemoryConfig{})

	z := &core.ZoneRecord{
		SimID:    "hill_937",
		Name:     "Hill 937",
		Position: core.Position3D{X: 4200, Y: 3800},
		Radius:   150,
	}

	if err := b.AddZone(z); err != nil {
		t.Fatalf("AddZone failed: %v", err)
	}

	got, ok := b.GetZone("hill_937")
	if !ok {
		t.Fatal("GetZone not found")
	}
	if got.Name != "Hill 937" {
		t.Errorf("expected Hill 937, got %s", got.Name)
	}
}

func TestRecordCombatantState(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.AddCombatant(&core.CombatantRecord{SimID: 1})

	state := &core.CombatantState{
		SimID:    1,
		Tick:     10,
		Position: core.Position3D{X: 100, Y: 200, Z: 5},
		Health:   100,
		Tier:     core.TierMaterialized,
	}
	if err := b.RecordCombatantState(state); err != nil {
		t.Fatalf("RecordCombatantState failed: %v", err)
	}

	if len(b.combatants[1].States) != 1 {
		t.Fatalf("expected 1 state, got %d", len(b.combatants[1].States))
	}
	if b.combatants[1].States[0].Tick != 10 {
		t.Error("state tick not stored")
	}

	// Unknown combatant is silently ignored
	if err := b.RecordCombatantState(&core.CombatantState{SimID: 99}); err != nil {
		t.Errorf("unexpected error for unknown combatant: %v", err)
	}
}

func TestRecordZoneState(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.AddZone(&core.ZoneRecord{SimID: "lz_xray"})

	state := &core.ZoneState{
		SimID:    "lz_xray",
		Tick:     50,
		Owner:    core.FactionUS,
		State:    core.CaptureControlledA,
		Progress: 100,
	}
	if err := b.RecordZoneState(state); err != nil {
		t.Fatalf("RecordZoneState failed: %v", err)
	}

	if len(b.zones["lz_xray"].States) != 1 {
		t.Fatalf("expected 1 state, got %d", len(b.zones["lz_xray"].States))
	}
	if b.zones["lz_xray"].States[0].Owner != core.FactionUS {
		t.Error("zone state owner not stored")
	}
}

func TestRecordEvents(t *testing.T) {
	b := New(config.MemoryConfig{})

	_ = b.RecordKillEvent(&core.KillEvent{Tick: 1, Victim: 2, Killer: 3})
	_ = b.RecordCaptureEvent(&core.CaptureEvent{Tick: 2, Zone: "z1"})
	_ = b.RecordTicketSample(&core.TicketSample{Tick: 3})
	_ = b.RecordMaterializationEvent(&core.MaterializationEvent{Tick: 4, Combatant: 5})
	_ = b.RecordPhaseChange(&core.PhaseChangeEvent{Tick: 5, From: core.PhaseSetup, To: core.PhaseCombat})
	_ = b.RecordDirectorStats(&core.DirectorStats{Tick: 6, Abstract: 10})

	if len(b.killEvents) != 1 {
		t.Errorf("expected 1 kill event, got %d", len(b.killEvents))
	}
	if len(b.captureEvents) != 1 {
		t.Errorf("expected 1 capture event, got %d", len(b.captureEvents))
	}
	if len(b.ticketSamples) != 1 {
		t.Errorf("expected 1 ticket sample, got %d", len(b.ticketSamples))
	}
	if len(b.materializationEvents) != 1 {
		t.Errorf("expected 1 materialization event, got %d", len(b.materializationEvents))
	}
	if len(b.phaseChanges) != 1 {
		t.Errorf("expected 1 phase change, got %d", len(b.phaseChanges))
	}
	if len(b.directorStats) != 1 {
		t.Errorf("expected 1 director stat, got %d", len(b.directorStats))
	}
}

func TestConcurrentAccess(t *testing.T) {
	b := New(config.MemoryConfig{})
	match, campaignMap := testMatch()
	_ = b.StartMatch(match, campaignMap)

	for i := 1; i <= 10; i++ {
		_ = b.AddCombatant(&core.CombatantRecord{SimID: core.CombatantID(i)})
	}

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for tick := 0; tick < 100; tick++ {
				_ = b.RecordCombatantState(&core.CombatantState{
					SimID: core.CombatantID(id),
					Tick:  uint64(tick),
				})
			}
		}(i)
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, _ = b.GetCombatant(core.CombatantID(id))
			_ = b.RecordKillEvent(&core.KillEvent{Victim: core.CombatantID(id)})
		}(i)
	}
	wg.Wait()

	for i := 1; i <= 10; i++ {
		if got := len(b.combatants[core.CombatantID(i)].States); got != 100 {
			t.Errorf("combatant %d: expected 100 states, got %d", i, got)
		}
	}
	if len(b.killEvents) != 10 {
		t.Errorf("expected 10 kill events, got %d", len(b.killEvents))
	}
}
