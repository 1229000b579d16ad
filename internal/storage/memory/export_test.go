// internal/storage/memory/export_test.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/pkg/core"
)

func populatedBackend(cfg config.MemoryConfig) *Backend {
	b := New(cfg)
	match := &core.Match{
		Name:        "Test Match",
		Tag:         "nightly",
		StartTime:   time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		FactionA:    core.FactionUS,
		FactionB:    core.FactionNVA,
		MaxTickets:  500,
		TickRate:    10,
		CoreVersion: "1.0.0",
	}
	campaignMap := &core.CampaignMap{Name: "ia_drang", SizeMetres: 10240}
	_ = b.StartMatch(match, campaignMap)

	_ = b.AddCombatant(&core.CombatantRecord{
		SimID: 1, Faction: core.FactionUS, Squad: 1, Role: core.RoleLeader,
	})
	_ = b.RecordCombatantState(&core.CombatantState{
		SimID:    1,
		Tick:     10,
		SimTime:  1.0,
		Position: core.Position3D{X: 100, Y: 200, Z: 5},
		Health:   100,
		Tier:     core.TierMaterialized,
	})
	_ = b.RecordCombatantState(&core.CombatantState{
		SimID:   1,
		Tick:    20,
		SimTime: 2.0,
		Health:  60,
	})

	_ = b.AddZone(&core.ZoneRecord{SimID: "lz_xray", Name: "LZ X-Ray", Radius: 150})
	_ = b.RecordZoneState(&core.ZoneState{
		SimID: "lz_xray", Tick: 15, Owner: core.FactionUS, State: core.CaptureControlledA,
	})

	_ = b.RecordKillEvent(&core.KillEvent{
		Tick: 20, Victim: 2, Killer: 1,
		VictimFaction: core.FactionNVA, KillerFaction: core.FactionUS,
		Assists: []core.CombatantID{3}, Distance: 120,
	})
	_ = b.RecordPhaseChange(&core.PhaseChangeEvent{
		Tick: 5, From: core.PhaseSetup, To: core.PhaseCombat,
	})
	_ = b.RecordTicketSample(&core.TicketSample{
		Tick: 10, SimTime: 1.0, Phase: core.PhaseCombat,
		Factions: []core.FactionTickets{
			{Faction: core.FactionUS, Tickets: 480},
			{Faction: core.FactionNVA, Tickets: 450},
		},
	})

	return b
}

func TestBuildExport(t *testing.T) {
	b := populatedBackend(config.MemoryConfig{})

	export := b.buildExport()

	if export.MatchName != "Test Match" {
		t.Errorf("expected MatchName=Test Match, got %s", export.MatchName)
	}
	if export.MapName != "ia_drang" {
		t.Errorf("expected MapName=ia_drang, got %s", export.MapName)
	}
	if export.FactionA != "US" || export.FactionB != "NVA" {
		t.Errorf("faction mismatch: %s vs %s", export.FactionA, export.FactionB)
	}
	if len(export.Combatants) != 1 {
		t.Fatalf("expected 1 combatant, got %d", len(export.Combatants))
	}
	if len(export.Combatants[0].Samples) != 2 {
		t.Errorf("expected 2 samples, got %d", len(export.Combatants[0].Samples))
	}
	if !strings.HasPrefix(export.Combatants[0].Track, "LINESTRING ZM") {
		t.Errorf("expected WKT track, got %q", export.Combatants[0].Track)
	}
	if export.Combatants[0].Role != "leader" {
		t.Errorf("expected role leader, got %s", export.Combatants[0].Role)
	}
	if len(export.Zones) != 1 || len(export.Zones[0].History) != 1 {
		t.Fatalf("zone history missing: %+v", export.Zones)
	}
	if len(export.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(export.Events))
	}
	// Events are tick ordered: phase change at 5 before kill at 20
	if export.Events[0][1] != "phase" {
		t.Errorf("expected phase event first, got %v", export.Events[0][1])
	}
	if export.Events[1][1] != "killed" {
		t.Errorf("expected kill event second, got %v", export.Events[1][1])
	}
	if len(export.Tickets) != 1 {
		t.Errorf("expected 1 ticket sample, got %d", len(export.Tickets))
	}
	// No victory recorded yet: duration falls back to max sample time
	if export.EndTick != 20 {
		t.Errorf("expected EndTick=20, got %d", export.EndTick)
	}
}

func TestBuildExport_CombatantOrdering(t *testing.T) {
	b := New(config.MemoryConfig{})
	match, campaignMap := testMatch()
	_ = b.StartMatch(match, campaignMap)

	for _, id := range []core.CombatantID{3, 1, 2} {
		_ = b.AddCombatant(&core.CombatantRecord{SimID: id})
	}

	export := b.buildExport()

	if len(export.Combatants) != 3 {
		t.Fatalf("expected 3 combatants, got %d", len(export.Combatants))
	}
	for i, want := range []uint32{1, 2, 3} {
		if export.Combatants[i].ID != want {
			t.Errorf("combatant %d: expected id %d, got %d", i, want, export.Combatants[i].ID)
		}
		if export.Combatants[i].Track != "" {
			t.Errorf("combatant %d: expected no track without samples, got %q", i, export.Combatants[i].Track)
		}
	}
}

func TestEndMatch_WritesExport(t *testing.T) {
	dir := t.TempDir()
	b := populatedBackend(config.MemoryConfig{OutputDir: dir})

	victory := &core.VictoryResult{
		Tick:    1200,
		SimTime: 120.0,
		Winner:  core.FactionUS,
		Reason:  core.VictoryTickets,
	}
	if err := b.EndMatch(victory); err != nil {
		t.Fatalf("EndMatch failed: %v", err)
	}

	path := b.GetExportedFilePath()
	if path == "" {
		t.Fatal("no export path recorded")
	}
	if !strings.HasSuffix(path, ".json") {
		t.Errorf("expected .json suffix, got %s", path)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("export written outside output dir: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}

	var export AfterActionExport
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("unmarshalling export: %v", err)
	}
	if export.Winner != "US" {
		t.Errorf("expected winner US, got %s", export.Winner)
	}
	if export.VictoryReason != "TICKETS" {
		t.Errorf("expected reason TICKETS, got %s", export.VictoryReason)
	}
	if export.EndTick != 1200 {
		t.Errorf("expected EndTick=1200, got %d", export.EndTick)
	}
	if export.DurationSeconds != 120.0 {
		t.Errorf("expected DurationSeconds=120, got %f", export.DurationSeconds)
	}

	meta := b.GetExportMetadata()
	if meta.MatchName != "Test Match" || meta.MapName != "ia_drang" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.Winner != core.FactionUS {
		t.Errorf("expected metadata winner US, got %s", meta.Winner)
	}
	if meta.MatchDuration != 120.0 {
		t.Errorf("expected metadata duration 120, got %f", meta.MatchDuration)
	}
}

func TestEndMatch_GzipExport(t *testing.T) {
	dir := t.TempDir()
	b := populatedBackend(config.MemoryConfig{OutputDir: dir, CompressOutput: true})

	if err := b.EndMatch(nil); err != nil {
		t.Fatalf("EndMatch failed: %v", err)
	}

	path := b.GetExportedFilePath()
	if !strings.HasSuffix(path, ".json.gz") {
		t.Fatalf("expected .json.gz suffix, got %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening export: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer gz.Close()

	var export AfterActionExport
	if err := json.NewDecoder(gz).Decode(&export); err != nil {
		t.Fatalf("decoding export: %v", err)
	}
	if export.MatchName != "Test Match" {
		t.Errorf("expected MatchName=Test Match, got %s", export.MatchName)
	}
	if export.Winner != "" {
		t.Errorf("expected no winner, got %s", export.Winner)
	}
}

func TestEndMatch_NoMatch(t *testing.T) {
	b := New(config.MemoryConfig{})

	if err := b.EndMatch(nil); err == nil {
		t.Error("expected error when no match in progress")
	}
}

func TestExportFilename_Sanitized(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	match := &core.Match{
		Name:      "Op: First Strike",
		StartTime: time.Date(2026, 2, 1, 18, 0, 0, 0, time.UTC),
	}
	_ = b.StartMatch(match, &core.CampaignMap{Name: "quang_tri"})

	if err := b.EndMatch(nil); err != nil {
		t.Fatalf("EndMatch failed: %v", err)
	}

	base := filepath.Base(b.GetExportedFilePath())
	if strings.ContainsAny(base, " :") {
		t.Errorf("filename not sanitized: %s", base)
	}
	if !strings.HasPrefix(base, "Op__First_Strike_20260201_180000") {
		t.Errorf("unexpected filename: %s", base)
	}
}
