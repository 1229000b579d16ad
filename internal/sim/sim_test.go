package sim

import (
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/pkg/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Match: config.MatchConfig{Name: "test-op", FactionA: "US", FactionB: "NVA"},
		Sim: config.SimConfig{
			TickRate:           10,
			CellSize:           50,
			MaxTickets:         300,
			SetupDuration:      0,
			MatchDuration:      600,
			OvertimeCap:        60,
			ClosenessThreshold: 25,
			DeathPenalty:       2,
			RespawnDelay:       15,
			DamageHistoryLimit: 10,
			AssistWindow:       10,
			DwellThreshold:     1,
			MaxBleedRate:       2,
			DefaultHealth:      100,
			FormationSpread:    3,
		},
		Squads: map[string]config.SizeRange{"default": {Min: 4, Max: 9}},
		Director: config.DirectorConfig{
			MaterializeRadius:   300,
			DematerializeRadius: 400,
			MaxMaterialized:     64,
			AbstractInterval:    5,
			UpdateInterval:      10,
			ReinforceCooldown:   60,
			EngagementRange:     500,
			CasualtyChance:      0,
		},
		Budget: config.BudgetConfig{
			RaycastsPerTick:  64,
			AIHighPerTick:    8,
			AIMediumPerTick:  16,
			AITimeBudget:     0.004,
			SevereMultiplier: 2,
		},
	}
}

func newSim(t *testing.T, cfg *config.Config) *Simulator {
	t.Helper()
	s, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func hillZone() config.ZoneConfig {
	return config.ZoneConfig{
		ID:           "hill937",
		Name:         "Hill 937",
		Position:     core.Position3D{X: 0, Y: 0},
		Radius:       50,
		CaptureSpeed: 10,
		BleedRate:    1,
	}
}

func ticketsOf(res core.TickResult, f core.Faction) float64 {
	for _, ft := range res.Tickets {
		if ft.Faction == f {
			return ft.Tickets
		}
	}
	return -1
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Match.FactionB = cfg.Match.FactionA
	if _, err := New(cfg, discardLogger()); err == nil {
		t.Fatal("expected a config validation error")
	}
}

func TestCreateSquad_FormationAndRoles(t *testing.T) {
	s := newSim(t, testConfig())

	id, ok := s.CreateSquad(core.FactionUS, core.Position3D{X: 100, Y: 40}, 5)
	if !ok {
		t.Fatal("CreateSquad failed")
	}
	sq, ok := s.squads.Get(id)
	if !ok {
		t.Fatal("squad not registered")
	}
	if len(sq.Members) != 5 {
		t.Fatalf("members = %d, want 5", len(sq.Members))
	}
	if sq.Leader != sq.Members[0] {
		t.Errorf("squad leader = %d, want first member %d", sq.Leader, sq.Members[0])
	}

	// Leader on the anchor, followers alternating sides at growing offsets.
	wantX := []float64{100, 103, 97, 106, 94}
	for i, m := range sq.Members {
		c, ok := s.pop.Get(m)
		if !ok {
			t.Fatalf("member %d missing from population", m)
		}
		if c.Position.X != wantX[i] || c.Position.Y != 40 {
			t.Errorf("member %d at (%v, %v), want (%v, 40)", m, c.Position.X, c.Position.Y, wantX[i])
		}
		wantRole := core.RoleFollower
		if i == 0 {
			wantRole = core.RoleLeader
		}
		if c.Role != wantRole {
			t.Errorf("member %d role = %s, want %s", m, c.Role, wantRole)
		}
	}
	if s.grid.Len() != 5 {
		t.Errorf("spatial index holds %d, want 5", s.grid.Len())
	}

	if _, ok := s.CreateSquad("ARVN", core.Position3D{}, 4); ok {
		t.Error("CreateSquad accepted a non-match faction")
	}
	if _, ok := s.CreateSquad(core.FactionUS, core.Position3D{}, 0); ok {
		t.Error("CreateSquad accepted size 0")
	}
}

func TestApplyDamage_KillPipeline(t *testing.T) {
	s := newSim(t, testConfig())

	usID, _ := s.CreateSquad(core.FactionUS, core.Position3D{X: 0, Y: 0}, 2)
	s.CreateSquad(core.FactionNVA, core.Position3D{X: 30, Y: 0}, 2)

	var (
		victim   = core.CombatantID(1) // US leader
		assister = core.CombatantID(4)
		killer   = core.CombatantID(3) // NVA leader at x=30
	)
	s.ApplyDamage(victim, assister, 30)
	s.ApplyDamage(victim, killer, 70)

	c, ok := s.pop.Get(victim)
	if !ok {
		t.Fatal("corpse destroyed before explicit despawn")
	}
	if c.Alive() || c.State != core.LifecycleRespawning {
		t.Errorf("victim state = %s, want respawning", c.State)
	}
	if s.grid.Contains(victim) {
		t.Error("dead combatant still in spatial index")
	}
	if k, _ := s.pop.Get(killer); k.Kills != 1 {
		t.Errorf("killer kills = %d, want 1", k.Kills)
	}

	// The leader fell; the surviving member takes over.
	sq, _ := s.squads.Get(usID)
	if sq.Leader != 2 {
		t.Errorf("squad leader = %d, want 2", sq.Leader)
	}
	if succ, _ := s.pop.Get(2); succ.Role != core.RoleLeader {
		t.Error("successor role not promoted")
	}

	res := s.Tick(0.1)
	if len(res.Spawns) != 4 {
		t.Errorf("spawn records delivered = %d, want 4", len(res.Spawns))
	} else if res.Spawns[0].SimID != 1 || res.Spawns[0].Role != core.RoleLeader {
		t.Errorf("first spawn = %+v, want leader 1", res.Spawns[0])
	}
	if len(res.Kills) != 1 {
		t.Fatalf("kills delivered = %d, want 1", len(res.Kills))
	}
	ev := res.Kills[0]
	if ev.Victim != victim || ev.Killer != killer {
		t.Errorf("kill event %d by %d, want %d by %d", ev.Victim, ev.Killer, victim, killer)
	}
	if ev.VictimFaction != core.FactionUS || ev.KillerFaction != core.FactionNVA {
		t.Errorf("factions = %s by %s", ev.VictimFaction, ev.KillerFaction)
	}
	if len(ev.Assists) != 1 || ev.Assists[0] != assister {
		t.Errorf("assists = %v, want [%d]", ev.Assists, assister)
	}
	if ev.Distance != 30 {
		t.Errorf("distance = %v, want 30", ev.Distance)
	}
	if got := ticketsOf(res, core.FactionUS); got != 298 {
		t.Errorf("US tickets = %v, want 298", got)
	}

	if res = s.Tick(0.1); len(res.Kills) != 0 {
		t.Error("kill event delivered twice")
	}
}

func TestSnapshot_IncludesCorpses(t *testing.T) {
	s := newSim(t, testConfig())
	s.CreateSquad(core.FactionUS, core.Position3D{X: 0, Y: 0}, 2)
	s.CreateSquad(core.FactionNVA, core.Position3D{X: 40, Y: 0}, 1)

	s.ApplyDamage(2, 3, 100)

	alive := s.AliveCounts()
	if alive[core.FactionUS] != 1 || alive[core.FactionNVA] != 1 {
		t.Errorf("alive counts = %v, want 1 per faction after the kill", alive)
	}

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot samples = %d, want 3", len(snap))
	}
	if snap[1].Lifecycle != core.LifecycleRespawning {
		t.Errorf("corpse lifecycle = %s, want respawning", snap[1].Lifecycle)
	}
	if snap[0].Tier != core.TierAbstract {
		t.Errorf("pre-director tier = %s, want abstract", snap[0].Tier)
	}
}

func TestRespawn_ReplacementJoinsSquad(t *testing.T) {
	s := newSim(t, testConfig())
	usID, _ := s.CreateSquad(core.FactionUS, core.Position3D{X: 0, Y: 0}, 2)
	s.CreateSquad(core.FactionNVA, core.Position3D{X: 500, Y: 0}, 1)

	s.ApplyDamage(2, 3, 100)

	for i := 0; i < 14; i++ {
		s.Tick(1)
	}
	sq, _ := s.squads.Get(usID)
	if len(sq.Members) != 1 {
		t.Fatalf("members before respawn = %d, want 1", len(sq.Members))
	}

	res := s.Tick(1) // delay of 15s elapses here
	if len(res.Spawns) != 1 || res.Spawns[0].SimID != 4 {
		t.Errorf("respawn spawn records = %+v, want one for id 4", res.Spawns)
	}

	sq, _ = s.squads.Get(usID)
	if len(sq.Members) != 2 {
		t.Fatalf("members after respawn = %d, want 2", len(sq.Members))
	}
	newID := sq.Members[1]
	if newID != 4 {
		t.Errorf("replacement id = %d, want fresh id 4", newID)
	}
	if _, ok := s.pop.Get(2); ok {
		t.Error("replaced corpse still in population")
	}

	c, ok := s.pop.Get(newID)
	if !ok || !c.Alive() {
		t.Fatal("replacement not alive in population")
	}
	if c.Squad != usID {
		t.Errorf("replacement squad = %d, want %d", c.Squad, usID)
	}
	if c.Position.X != 0 {
		t.Errorf("replacement x = %v, want leader anchor 0", c.Position.X)
	}
	if !s.grid.Contains(newID) {
		t.Error("replacement missing from spatial index")
	}
}

func TestRespawn_DroppedForDissolvedSquad(t *testing.T) {
	s := newSim(t, testConfig())
	s.CreateSquad(core.FactionUS, core.Position3D{X: 0, Y: 0}, 1)

	s.ApplyDamage(1, 999, 100) // no attributable killer

	if s.squads.Len() != 0 {
		t.Fatal("single-member squad not dissolved on death")
	}

	for i := 0; i < 16; i++ {
		s.Tick(1)
	}

	if s.pop.Len() != 0 {
		t.Errorf("population = %d after dropped respawn, want 0", s.pop.Len())
	}
	if s.respawns.PendingCount() != 0 {
		t.Error("dropped entry left queued")
	}
}

func TestTick_CaptureDrivesBleed(t *testing.T) {
	cfg := testConfig()
	cfg.Zones = []config.ZoneConfig{
		hillZone(),
		{ID: "firebase", Name: "Firebase", Position: core.Position3D{X: 5000}, Radius: 50, CaptureSpeed: 10, BleedRate: 1},
	}
	s := newSim(t, cfg)

	s.CreateSquad(core.FactionUS, core.Position3D{X: 0, Y: 0}, 2)

	var capture *core.CaptureEvent
	for i := 0; i < 40 && capture == nil; i++ {
		res := s.Tick(0.5)
		if len(res.Captures) > 0 {
			capture = &res.Captures[0]
		}
	}
	if capture == nil {
		t.Fatal("hill never captured")
	}
	if capture.Zone != "hill937" || capture.To != core.FactionUS {
		t.Fatalf("capture = %+v, want hill937 to US", capture)
	}
	if capture.State != core.CaptureControlledA {
		t.Errorf("capture state = %s, want faction A controlled", capture.State)
	}

	// One zone each side of the 50% line: the holder stops bleeding, the
	// other side drains at the full rate for its total deficit.
	r1 := s.Tick(0.5)
	r2 := s.Tick(0.5)
	if usA, usB := ticketsOf(r1, core.FactionUS), ticketsOf(r2, core.FactionUS); usB != usA {
		t.Errorf("US tickets still bleeding at half control: %v -> %v", usA, usB)
	}
	nvaA, nvaB := ticketsOf(r1, core.FactionNVA), ticketsOf(r2, core.FactionNVA)
	if nvaB != nvaA-1 {
		t.Errorf("NVA bleed %v -> %v, want 1 ticket per half second", nvaA, nvaB)
	}
}

func TestVictory_DeathResolvesMatchMidStream(t *testing.T) {
	cfg := testConfig()
	cfg.Sim.DeathPenalty = 300
	s := newSim(t, cfg)

	s.CreateSquad(core.FactionUS, core.Position3D{X: 0, Y: 0}, 1)
	s.CreateSquad(core.FactionNVA, core.Position3D{X: 50, Y: 0}, 1)

	s.Tick(1) // SETUP is zero-length; this enters COMBAT

	s.ApplyDamage(1, 2, 100) // the penalty drains the whole US pool

	if s.Phase() != core.PhaseEnded {
		t.Fatalf("phase = %s immediately after fatal death, want ENDED", s.Phase())
	}

	res := s.Tick(1)
	if res.Victory == nil {
		t.Fatal("victory missing from the next tick result")
	}
	if res.Victory.Winner != core.FactionNVA || res.Victory.Reason != core.VictoryTickets {
		t.Errorf("victory = %+v, want NVA on tickets", res.Victory)
	}
	if len(res.PhaseChanges) != 1 || res.PhaseChanges[0].To != core.PhaseEnded {
		t.Errorf("phase changes = %v, want the single transition to ENDED", res.PhaseChanges)
	}

	if res = s.Tick(1); res.Victory != nil {
		t.Error("victory delivered twice")
	}
}

func TestDespawn_ExplicitRemoval(t *testing.T) {
	s := newSim(t, testConfig())
	usID, _ := s.CreateSquad(core.FactionUS, core.Position3D{X: 0, Y: 0}, 3)

	s.Despawn(2)

	if _, ok := s.pop.Get(2); ok {
		t.Error("record survived Despawn")
	}
	sq, _ := s.squads.Get(usID)
	if len(sq.Members) != 2 {
		t.Errorf("members = %d, want 2", len(sq.Members))
	}
	if s.grid.Contains(2) {
		t.Error("despawned id still in spatial index")
	}

	s.Despawn(999) // unknown ids are ignored
	if s.pop.Len() != 2 {
		t.Errorf("population = %d, want 2", s.pop.Len())
	}
}

func TestTick_MaterializationAroundViewpoint(t *testing.T) {
	s := newSim(t, testConfig())
	s.CreateSquad(core.FactionUS, core.Position3D{X: 50, Y: 0}, 3)
	s.CreateSquad(core.FactionNVA, core.Position3D{X: 5000, Y: 0}, 3)
	s.SetViewpoint(core.Position3D{X: 0, Y: 0})

	res := s.Tick(0.1)
	if len(res.Transitions) != 3 {
		t.Fatalf("transitions = %d, want the 3 agents near the viewpoint", len(res.Transitions))
	}
	for _, tr := range res.Transitions {
		if tr.To != core.TierMaterialized {
			t.Errorf("transition to %s, want MATERIALIZED", tr.To)
		}
	}
	if len(res.Materialized) != 3 {
		t.Errorf("materialized transforms = %d, want 3", len(res.Materialized))
	}
	if res.Materialized[0].ID != 1 {
		t.Errorf("first transform id = %d, want join order to hold", res.Materialized[0].ID)
	}
}

func TestRestart_FullWorldReset(t *testing.T) {
	cfg := testConfig()
	cfg.Sim.SetupDuration = 5
	cfg.Zones = []config.ZoneConfig{hillZone()}
	s := newSim(t, cfg)

	s.CreateSquad(core.FactionUS, core.Position3D{X: 0, Y: 0}, 4)
	s.Tick(1)
	s.ForceEnd(core.FactionUS)

	res := s.Tick(1)
	if res.Victory == nil || res.Victory.Reason != core.VictoryForced {
		t.Fatalf("victory = %+v, want forced", res.Victory)
	}

	s.Restart()

	if s.Phase() != core.PhaseSetup {
		t.Errorf("phase = %s after restart, want SETUP", s.Phase())
	}
	if s.CurrentTick() != 0 || s.SimTime() != 0 {
		t.Error("clocks not zeroed")
	}
	if s.pop.Len() != 0 || s.squads.Len() != 0 || s.grid.Len() != 0 {
		t.Error("world state survived restart")
	}

	res = s.Tick(1)
	if got := ticketsOf(res, core.FactionUS); got != 300 {
		t.Errorf("US tickets = %v after restart, want 300", got)
	}
	var sawReset bool
	for _, pc := range res.PhaseChanges {
		if pc.From == core.PhaseEnded && pc.To == core.PhaseSetup {
			sawReset = true
		}
	}
	if !sawReset {
		t.Errorf("phase changes %v missing ENDED -> SETUP", res.PhaseChanges)
	}
	if res.Phase != core.PhaseSetup {
		t.Errorf("phase = %s one second in, want SETUP", res.Phase)
	}
	if len(res.Zones) != 1 || res.Zones[0].Owner != core.FactionNone {
		t.Error("zones not reset to authored owners")
	}
}

func TestTick_Deterministic(t *testing.T) {
	build := func() *Simulator {
		cfg := testConfig()
		cfg.Zones = []config.ZoneConfig{
			hillZone(),
			{ID: "firebase", Name: "Firebase", Position: core.Position3D{X: 800}, Radius: 60, CaptureSpeed: 5, BleedRate: 2},
		}
		cfg.Director.CasualtyChance = 0.5
		cfg.Director.AbstractInterval = 2
		cfg.Director.ReinforceCooldown = 20
		cfg.Sim.RespawnDelay = 4
		s := newSim(t, cfg)
		s.CreateSquad(core.FactionUS, core.Position3D{X: 0, Y: 0}, 6)
		s.CreateSquad(core.FactionNVA, core.Position3D{X: 350, Y: 0}, 6)
		s.SetViewpoint(core.Position3D{X: 0, Y: 0})
		return s
	}

	a, b := build(), build()
	for i := 0; i < 40; i++ {
		ra, rb := a.Tick(0.5), b.Tick(0.5)
		// The budget report carries wall-clock timings; everything else must
		// match bit for bit.
		ra.Budget, rb.Budget = core.BudgetReport{}, core.BudgetReport{}
		if !reflect.DeepEqual(ra, rb) {
			t.Fatalf("tick %d diverged:\n%+v\nvs\n%+v", i+1, ra, rb)
		}
	}
}
