package ticket

import (
	"testing"

	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/pkg/core"
)

const (
	us  = core.FactionUS
	nva = core.FactionNVA
)

func testCfg() config.SimConfig {
	return config.SimConfig{
		MaxTickets:         300,
		SetupDuration:      10,
		MatchDuration:      600,
		OvertimeCap:        60,
		ClosenessThreshold: 25,
		DeathPenalty:       2,
	}
}

// combatLedger returns a ledger already advanced into COMBAT.
func combatLedger(t *testing.T, cfg config.SimConfig) *Ledger {
	t.Helper()
	l := NewLedger(cfg, us, nva)
	out := l.Advance(cfg.SetupDuration, 0, 0, ZoneControl{})
	if l.Phase() != core.PhaseCombat {
		t.Fatalf("phase = %s, want COMBAT (out: %+v)", l.Phase(), out)
	}
	return l
}

func TestNewLedger(t *testing.T) {
	l := NewLedger(testCfg(), us, nva)
	if l.Phase() != core.PhaseSetup {
		t.Errorf("phase = %s, want SETUP", l.Phase())
	}
	if !l.Active() {
		t.Error("new ledger should be active")
	}
	if l.Tickets(us) != 300 || l.Tickets(nva) != 300 {
		t.Errorf("tickets = %f/%f, want 300/300", l.Tickets(us), l.Tickets(nva))
	}
	if l.Kills(us) != 0 || l.Kills(nva) != 0 {
		t.Error("kill counters should start at zero")
	}
}

func TestAdvance_NoBleedDuringSetup(t *testing.T) {
	l := NewLedger(testCfg(), us, nva)
	zc := ZoneControl{BleedA: 2, BleedB: 2}

	l.Advance(5, 1, 5, zc)

	if l.Phase() != core.PhaseSetup {
		t.Fatalf("phase = %s, want SETUP", l.Phase())
	}
	if l.Tickets(us) != 300 || l.Tickets(nva) != 300 {
		t.Errorf("tickets bled during setup: %f/%f", l.Tickets(us), l.Tickets(nva))
	}
}

func TestAdvance_SetupTransitionCarriesBleedRemainder(t *testing.T) {
	// Setup is 10s; a 12s advance must apply bleed for exactly the 2s of
	// COMBAT inside it.
	l := NewLedger(testCfg(), us, nva)
	zc := ZoneControl{BleedA: 1}

	out := l.Advance(12, 1, 12, zc)

	if l.Phase() != core.PhaseCombat {
		t.Fatalf("phase = %s, want COMBAT", l.Phase())
	}
	if len(out.PhaseChanges) != 1 || out.PhaseChanges[0].From != core.PhaseSetup || out.PhaseChanges[0].To != core.PhaseCombat {
		t.Fatalf("phase changes = %+v, want SETUP -> COMBAT", out.PhaseChanges)
	}
	if got := l.Tickets(us); got != 298 {
		t.Errorf("ticketsA = %f, want 298 (2s of bleed at 1/s)", got)
	}
	if got := l.PhaseElapsed(); got != 2 {
		t.Errorf("phaseElapsed = %f, want 2", got)
	}
}

func TestOnCombatantDeath_PenaltyAndKillCredit(t *testing.T) {
	// 300/300, death penalty 2, one faction-A death: A ends at 298, B's
	// kill counter increments, A's stays untouched.
	l := combatLedger(t, testCfg())

	out := l.OnCombatantDeath(us, 5, 12, ZoneControl{})

	if out.Victory != nil {
		t.Fatalf("unexpected victory: %+v", out.Victory)
	}
	if got := l.Tickets(us); got != 298 {
		t.Errorf("ticketsA = %f, want 298", got)
	}
	if got := l.Tickets(nva); got != 300 {
		t.Errorf("ticketsB = %f, want 300", got)
	}
	if l.Kills(nva) != 1 {
		t.Errorf("killsB = %d, want 1", l.Kills(nva))
	}
	if l.Kills(us) != 0 {
		t.Errorf("killsA = %d, want 0", l.Kills(us))
	}
}

func TestOnCombatantDeath_CanEndMatchMidTick(t *testing.T) {
	cfg := testCfg()
	l := combatLedger(t, cfg)
	l.AdjustTickets(us, -298, 5, 12, ZoneControl{}) // down to 2

	out := l.OnCombatantDeath(us, 6, 12.5, ZoneControl{})

	if out.Victory == nil {
		t.Fatal("death at 2 tickets with penalty 2 should end the match")
	}
	if out.Victory.Winner != nva || out.Victory.Reason != core.VictoryTickets {
		t.Errorf("victory = %+v, want NVA on tickets", out.Victory)
	}
	if l.Phase() != core.PhaseEnded {
		t.Errorf("phase = %s, want ENDED", l.Phase())
	}
	if len(out.PhaseChanges) != 1 || out.PhaseChanges[0].To != core.PhaseEnded {
		t.Errorf("phase changes = %+v, want COMBAT -> ENDED", out.PhaseChanges)
	}
}

func TestOnCombatantDeath_UnknownFactionNoop(t *testing.T) {
	l := combatLedger(t, testCfg())

	l.OnCombatantDeath(core.Faction("ARVN"), 5, 12, ZoneControl{})

	if l.Tickets(us) != 300 || l.Tickets(nva) != 300 {
		t.Error("unknown faction death mutated the ledger")
	}
	if l.Kills(us) != 0 || l.Kills(nva) != 0 {
		t.Error("unknown faction death credited a kill")
	}
}

func TestOnCombatantDeath_SetupDeductsButCannotEnd(t *testing.T) {
	cfg := testCfg()
	cfg.DeathPenalty = 300 // one death empties the pool
	l := NewLedger(cfg, us, nva)

	out := l.OnCombatantDeath(us, 1, 2, ZoneControl{})

	if out.Victory != nil {
		t.Fatalf("setup-phase death resolved victory: %+v", out.Victory)
	}
	if l.Tickets(us) != 0 {
		t.Errorf("ticketsA = %f, want 0", l.Tickets(us))
	}

	// The pending exhaustion resolves the moment COMBAT begins.
	out = l.Advance(cfg.SetupDuration, 2, 10, ZoneControl{})
	if out.Victory == nil || out.Victory.Winner != nva {
		t.Fatalf("victory = %+v, want NVA once combat starts", out.Victory)
	}
}

func TestAdvance_BleedIsStrictlyMonotonic(t *testing.T) {
	// One faction holding every zone drains the other every tick until zero.
	cfg := testCfg()
	cfg.MaxTickets = 10
	l := combatLedger(t, cfg)
	zc := ZoneControl{BleedB: 2, ControlledA: 3, ControlledB: 0, Contestable: 4}

	last := l.Tickets(nva)
	var victory *core.VictoryResult
	for i := 0; victory == nil && i < 100; i++ {
		out := l.Advance(0.5, uint64(i), float64(i)*0.5, zc)
		victory = out.Victory
		got := l.Tickets(nva)
		if got >= last {
			t.Fatalf("ticketsB did not decrease: %f -> %f", last, got)
		}
		last = got
	}
	if victory == nil {
		t.Fatal("bleed never exhausted the pool")
	}
	if victory.Winner != us || victory.Reason != core.VictoryTickets {
		t.Errorf("victory = %+v, want US on tickets", victory)
	}
}

func TestAdvance_AllZonesInstantWin(t *testing.T) {
	l := combatLedger(t, testCfg())
	zc := ZoneControl{ControlledA: 4, Contestable: 4}

	out := l.Advance(0.1, 5, 10.1, zc)

	if out.Victory == nil {
		t.Fatal("total zone control should win instantly")
	}
	if out.Victory.Winner != us || out.Victory.Reason != core.VictoryAllZones {
		t.Errorf("victory = %+v, want US on all zones", out.Victory)
	}
}

func TestAdvance_NoZonesMeansNoZoneVictory(t *testing.T) {
	l := combatLedger(t, testCfg())

	out := l.Advance(1, 5, 11, ZoneControl{})

	if out.Victory != nil {
		t.Errorf("zoneless match resolved on zones: %+v", out.Victory)
	}
}

func TestOnCombatantDeath_KillTargetVictory(t *testing.T) {
	cfg := testCfg()
	cfg.KillTarget = 3
	l := combatLedger(t, cfg)

	var victory *core.VictoryResult
	for i := 0; i < 3; i++ {
		out := l.OnCombatantDeath(nva, uint64(i), float64(i), ZoneControl{})
		if i < 2 && out.Victory != nil {
			t.Fatalf("victory after %d kills, want 3", i+1)
		}
		victory = out.Victory
	}

	if victory == nil {
		t.Fatal("kill target reached without victory")
	}
	if victory.Winner != us || victory.Reason != core.VictoryKillTarget {
		t.Errorf("victory = %+v, want US on kill target", victory)
	}
}

func TestVictoryPriority_KillTargetBeforeTickets(t *testing.T) {
	// Setup-phase deaths push faction B past the kill target for A while
	// also emptying B's pool. When COMBAT opens, the kill target must win
	// the priority race over ticket exhaustion.
	cfg := testCfg()
	cfg.KillTarget = 3
	cfg.DeathPenalty = 100
	l := NewLedger(cfg, us, nva)
	for i := 0; i < 3; i++ {
		l.OnCombatantDeath(nva, uint64(i), float64(i), ZoneControl{})
	}
	if l.Tickets(nva) != 0 {
		t.Fatalf("ticketsB = %f, want 0", l.Tickets(nva))
	}

	out := l.Advance(cfg.SetupDuration, 5, 10, ZoneControl{})

	if out.Victory == nil {
		t.Fatal("no victory at combat start")
	}
	if out.Victory.Reason != core.VictoryKillTarget {
		t.Errorf("reason = %s, want kill target to outrank tickets", out.Victory.Reason)
	}
	if out.Victory.Winner != us {
		t.Errorf("winner = %s, want US", out.Victory.Winner)
	}
}

func TestAdvance_TimeLimitLeaderWins(t *testing.T) {
	cfg := testCfg()
	l := combatLedger(t, cfg)
	l.AdjustTickets(nva, -50, 1, 11, ZoneControl{}) // gap 50, over the 25 threshold

	out := l.Advance(cfg.MatchDuration, 100, 610, ZoneControl{})

	if out.Victory == nil {
		t.Fatal("time limit did not resolve")
	}
	if out.Victory.Winner != us || out.Victory.Reason != core.VictoryTimeLimit {
		t.Errorf("victory = %+v, want US on time limit", out.Victory)
	}
	if l.Phase() != core.PhaseEnded {
		t.Errorf("phase = %s, want ENDED", l.Phase())
	}
}

func TestAdvance_CloseGapExtendsIntoOvertime(t *testing.T) {
	cfg := testCfg()
	l := combatLedger(t, cfg)
	l.AdjustTickets(nva, -10, 1, 11, ZoneControl{}) // gap 10, inside threshold

	out := l.Advance(cfg.MatchDuration, 100, 610, ZoneControl{})

	if out.Victory != nil {
		t.Fatalf("close match ended at time limit: %+v", out.Victory)
	}
	if l.Phase() != core.PhaseOvertime {
		t.Fatalf("phase = %s, want OVERTIME", l.Phase())
	}
	if len(out.PhaseChanges) != 1 || out.PhaseChanges[0].To != core.PhaseOvertime {
		t.Errorf("phase changes = %+v, want COMBAT -> OVERTIME", out.PhaseChanges)
	}
}

func TestAdvance_OvertimeEndsWhenGapOpens(t *testing.T) {
	cfg := testCfg()
	l := combatLedger(t, cfg)
	l.AdjustTickets(nva, -10, 1, 11, ZoneControl{})
	l.Advance(cfg.MatchDuration, 100, 610, ZoneControl{})
	if l.Phase() != core.PhaseOvertime {
		t.Fatal("setup failed to reach overtime")
	}

	// B bleeds 2/s; the gap reaches 25 after 7.5s of overtime.
	zc := ZoneControl{BleedB: 2, ControlledA: 3, Contestable: 4}
	var victory *core.VictoryResult
	for i := 0; victory == nil && i < 20; i++ {
		victory = l.Advance(0.5, uint64(101+i), 610+float64(i)*0.5, zc).Victory
	}

	if victory == nil {
		t.Fatal("overtime never resolved on the widening gap")
	}
	if victory.Winner != us || victory.Reason != core.VictoryOvertime {
		t.Errorf("victory = %+v, want US in overtime", victory)
	}
}

func TestAdvance_OvertimeCapDeclaresLeader(t *testing.T) {
	cfg := testCfg()
	l := combatLedger(t, cfg)
	l.AdjustTickets(nva, -10, 1, 11, ZoneControl{})
	l.Advance(cfg.MatchDuration, 100, 610, ZoneControl{})

	// No bleed, gap stays at 10: the cap expires and the leader takes it.
	out := l.Advance(cfg.OvertimeCap, 200, 670, ZoneControl{})

	if out.Victory == nil {
		t.Fatal("overtime cap did not resolve")
	}
	if out.Victory.Winner != us || out.Victory.Reason != core.VictoryOvertime {
		t.Errorf("victory = %+v, want US at the cap", out.Victory)
	}
}

func TestAdvance_OvertimeCapTieIsDraw(t *testing.T) {
	cfg := testCfg()
	l := combatLedger(t, cfg)
	l.Advance(cfg.MatchDuration, 100, 610, ZoneControl{}) // gap 0, straight to overtime

	out := l.Advance(cfg.OvertimeCap, 200, 670, ZoneControl{})

	if out.Victory == nil {
		t.Fatal("overtime cap did not resolve")
	}
	if out.Victory.Winner != core.FactionNone {
		t.Errorf("winner = %q, want draw", out.Victory.Winner)
	}
}

func TestForceEnd(t *testing.T) {
	l := combatLedger(t, testCfg())

	out := l.ForceEnd(nva, 7, 15)

	if out.Victory == nil || out.Victory.Winner != nva || out.Victory.Reason != core.VictoryForced {
		t.Fatalf("victory = %+v, want forced NVA win", out.Victory)
	}
	if l.Phase() != core.PhaseEnded {
		t.Errorf("phase = %s, want ENDED", l.Phase())
	}
	if again := l.ForceEnd(us, 8, 16); again.Victory != nil {
		t.Errorf("second ForceEnd produced a result: %+v", again.Victory)
	}
	if l.Victory().Winner != nva {
		t.Errorf("recorded winner = %s, want the first ForceEnd kept", l.Victory().Winner)
	}
}

func TestEndedLedgerIsImmutable(t *testing.T) {
	l := combatLedger(t, testCfg())
	l.ForceEnd(us, 7, 15)

	l.Advance(100, 8, 115, ZoneControl{BleedA: 5, BleedB: 5})
	l.OnCombatantDeath(us, 9, 116, ZoneControl{})
	l.AdjustTickets(nva, -100, 10, 117, ZoneControl{})

	if l.Tickets(us) != 300 || l.Tickets(nva) != 300 {
		t.Errorf("ended ledger mutated: %f/%f", l.Tickets(us), l.Tickets(nva))
	}
	if l.Kills(us) != 0 || l.Kills(nva) != 0 {
		t.Error("ended ledger credited kills")
	}
}

func TestAdjustTickets(t *testing.T) {
	l := combatLedger(t, testCfg())

	l.AdjustTickets(us, 50, 1, 11, ZoneControl{})
	if got := l.Tickets(us); got != 350 {
		t.Errorf("tickets after +50 = %f, want 350", got)
	}

	l.AdjustTickets(us, -400, 2, 12, ZoneControl{})
	if got := l.Tickets(us); got != 0 {
		t.Errorf("tickets after -400 = %f, want clamped 0", got)
	}
	if l.Phase() != core.PhaseEnded {
		t.Errorf("phase = %s, want ENDED after draining to zero", l.Phase())
	}

	fresh := combatLedger(t, testCfg())
	fresh.AdjustTickets(core.Faction("ARVN"), 100, 1, 11, ZoneControl{})
	if fresh.Tickets(us) != 300 || fresh.Tickets(nva) != 300 {
		t.Error("unknown faction adjust mutated the ledger")
	}
}

func TestRestart(t *testing.T) {
	cfg := testCfg()
	l := combatLedger(t, cfg)
	l.OnCombatantDeath(us, 5, 12, ZoneControl{})
	l.ForceEnd(nva, 6, 13)

	out := l.Restart(0, 0)

	if l.Phase() != core.PhaseSetup {
		t.Errorf("phase = %s, want SETUP", l.Phase())
	}
	if l.Tickets(us) != 300 || l.Tickets(nva) != 300 {
		t.Errorf("tickets = %f/%f, want full pools", l.Tickets(us), l.Tickets(nva))
	}
	if l.Kills(us) != 0 || l.Kills(nva) != 0 {
		t.Error("kill counters survived restart")
	}
	if l.Victory() != nil {
		t.Errorf("victory survived restart: %+v", l.Victory())
	}
	if l.Elapsed() != 0 {
		t.Errorf("elapsed = %f, want 0", l.Elapsed())
	}
	if len(out.PhaseChanges) != 1 || out.PhaseChanges[0].From != core.PhaseEnded || out.PhaseChanges[0].To != core.PhaseSetup {
		t.Errorf("phase changes = %+v, want ENDED -> SETUP", out.PhaseChanges)
	}

	// The restarted ledger runs a full match again.
	l.Advance(cfg.SetupDuration, 1, 10, ZoneControl{})
	if l.Phase() != core.PhaseCombat {
		t.Errorf("phase after restart+setup = %s, want COMBAT", l.Phase())
	}
}

func TestSnapshotAndSample(t *testing.T) {
	l := combatLedger(t, testCfg())
	l.Advance(2, 5, 12, ZoneControl{BleedA: 0.5, BleedB: 1.5})

	snap := l.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot entries = %d, want 2", len(snap))
	}
	if snap[0].Faction != us || snap[0].Tickets != 299 || snap[0].BleedRate != 0.5 {
		t.Errorf("snapshot[0] = %+v", snap[0])
	}
	if snap[1].Faction != nva || snap[1].Tickets != 297 || snap[1].BleedRate != 1.5 {
		t.Errorf("snapshot[1] = %+v", snap[1])
	}

	sample := l.Sample(5, 12)
	if sample.Tick != 5 || sample.Phase != core.PhaseCombat || len(sample.Factions) != 2 {
		t.Errorf("sample = %+v", sample)
	}
}
