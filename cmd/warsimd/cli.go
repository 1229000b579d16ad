package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/internal/database"
	"github.com/warfront/simcore/internal/geo"
	"github.com/warfront/simcore/internal/model"
	"github.com/warfront/simcore/internal/model/convert"
	"github.com/warfront/simcore/internal/storage/memory"
	"github.com/warfront/simcore/pkg/core"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// cliLogger builds a console-only logger for the one-shot subcommands.
func cliLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// runExport rebuilds after-action JSON files from recorded database matches.
// Output is byte-compatible with what the memory backend writes at EndMatch.
func runExport(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("export requires at least one match id")
	}

	zlog := cliLogger()
	dbManager := database.NewManager(cfg.DB, zlog)
	if err := dbManager.Connect(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbManager.Close()

	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid match id %q: %w", arg, err)
		}
		path, err := exportMatch(dbManager.DB, uint(id))
		if err != nil {
			return fmt.Errorf("failed to export match %d: %w", id, err)
		}
		zlog.Info().Int("match", id).Str("file", path).Msg("Match exported")
	}
	return nil
}

// exportMatch loads one match with all recorded rows and writes the gzipped
// after-action JSON to the working directory. Returns the written filename.
func exportMatch(db *gorm.DB, id uint) (string, error) {
	var m model.Match
	if err := db.First(&m, id).Error; err != nil {
		return "", fmt.Errorf("match not found: %w", err)
	}
	var campaignMap model.Map
	if err := db.First(&campaignMap, m.MapID).Error; err != nil {
		return "", fmt.Errorf("map not found: %w", err)
	}
	rec := convert.MatchToCore(&m)
	campaign := convert.MapToCore(&campaignMap)

	export := memory.AfterActionExport{
		CoreVersion:     rec.CoreVersion,
		MatchName:       rec.Name,
		Tag:             rec.Tag,
		MapName:         campaign.Name,
		MapSizeMetres:   campaign.SizeMetres,
		FactionA:        string(rec.FactionA),
		FactionB:        string(rec.FactionB),
		TickRate:        rec.TickRate,
		MaxTickets:      rec.MaxTickets,
		EndTick:         m.EndTick,
		DurationSeconds: m.DurationSeconds,
		VictoryReason:   m.VictoryReason,
		Combatants:      make([]memory.CombatantJSON, 0),
		Zones:           make([]memory.ZoneJSON, 0),
		Events:          make([][]any, 0),
		Tickets:         make([][]any, 0),
	}
	if m.Winner.Valid {
		export.Winner = m.Winner.String
	}

	var combatants []model.Combatant
	if err := db.Where("match_id = ?", id).Order("sim_id").Find(&combatants).Error; err != nil {
		return "", fmt.Errorf("failed to load combatants: %w", err)
	}
	var combatantStates []model.CombatantState
	if err := db.Where("match_id = ?", id).Order("tick").Find(&combatantStates).Error; err != nil {
		return "", fmt.Errorf("failed to load combatant states: %w", err)
	}
	tracks := make(map[uint32][][]any, len(combatants))
	positions := make(map[uint32][]core.Position3D, len(combatants))
	times := make(map[uint32][]float64, len(combatants))
	for _, s := range combatantStates {
		state := convert.CombatantStateToCore(s)
		tracks[s.CombatantSimID] = append(tracks[s.CombatantSimID],
			memory.EncodeCombatantSample(state))
		positions[s.CombatantSimID] = append(positions[s.CombatantSimID], state.Position)
		times[s.CombatantSimID] = append(times[s.CombatantSimID], state.SimTime)
	}
	for _, c := range combatants {
		rec := convert.CombatantToCore(c)
		samples := tracks[c.SimID]
		if samples == nil {
			samples = make([][]any, 0)
		}
		cj := memory.CombatantJSON{
			ID:       uint32(rec.SimID),
			Faction:  string(rec.Faction),
			Squad:    uint32(rec.Squad),
			Role:     rec.Role.String(),
			JoinTick: rec.JoinTick,
			Samples:  samples,
		}
		if ls, err := geo.TrackZM(positions[c.SimID], times[c.SimID]); err == nil {
			cj.Track = ls.AsText()
		}
		export.Combatants = append(export.Combatants, cj)
	}

	var zones []model.Zone
	if err := db.Where("match_id = ?", id).Order("sim_id").Find(&zones).Error; err != nil {
		return "", fmt.Errorf("failed to load zones: %w", err)
	}
	var zoneStates []model.ZoneState
	if err := db.Where("match_id = ?", id).Order("tick").Find(&zoneStates).Error; err != nil {
		return "", fmt.Errorf("failed to load zone states: %w", err)
	}
	histories := make(map[string][][]any, len(zones))
	for _, s := range zoneStates {
		histories[s.ZoneSimID] = append(histories[s.ZoneSimID],
			memory.EncodeZoneSample(convert.ZoneStateToCore(s)))
	}
	for _, z := range zones {
		rec := convert.ZoneToCore(z)
		history := histories[z.SimID]
		if history == nil {
			history = make([][]any, 0)
		}
		export.Zones = append(export.Zones, memory.ZoneJSON{
			ID:           string(rec.SimID),
			Name:         rec.Name,
			Position:     []float64{rec.Position.X, rec.Position.Y, rec.Position.Z},
			Radius:       rec.Radius,
			HomeBase:     rec.HomeBase,
			InitialOwner: string(rec.Owner),
			History:      history,
		})
	}

	var kills []model.KillEvent
	if err := db.Where("match_id = ?", id).Order("tick").Find(&kills).Error; err != nil {
		return "", fmt.Errorf("failed to load kill events: %w", err)
	}
	for _, e := range kills {
		export.Events = append(export.Events, memory.EncodeKillEvent(convert.KillEventToCore(e)))
	}
	var captures []model.CaptureEvent
	if err := db.Where("match_id = ?", id).Order("tick").Find(&captures).Error; err != nil {
		return "", fmt.Errorf("failed to load capture events: %w", err)
	}
	for _, e := range captures {
		export.Events = append(export.Events, memory.EncodeCaptureEvent(convert.CaptureEventToCore(e)))
	}
	var phases []model.PhaseChange
	if err := db.Where("match_id = ?", id).Order("tick").Find(&phases).Error; err != nil {
		return "", fmt.Errorf("failed to load phase changes: %w", err)
	}
	for _, e := range phases {
		export.Events = append(export.Events, memory.EncodePhaseChange(convert.PhaseChangeToCore(e)))
	}
	var transitions []model.MaterializationEvent
	if err := db.Where("match_id = ?", id).Order("tick").Find(&transitions).Error; err != nil {
		return "", fmt.Errorf("failed to load materialization events: %w", err)
	}
	for _, e := range transitions {
		export.Events = append(export.Events, memory.EncodeMaterialization(convert.MaterializationEventToCore(e)))
	}
	sort.SliceStable(export.Events, func(i, j int) bool {
		return export.Events[i][0].(uint64) < export.Events[j][0].(uint64)
	})

	var tickets []model.TicketState
	if err := db.Where("match_id = ?", id).Order("tick").Find(&tickets).Error; err != nil {
		return "", fmt.Errorf("failed to load ticket states: %w", err)
	}
	for _, s := range tickets {
		export.Tickets = append(export.Tickets, memory.EncodeTicketSample(convert.TicketStateToCore(s)))
	}

	data, err := json.Marshal(export)
	if err != nil {
		return "", fmt.Errorf("failed to marshal export: %w", err)
	}

	matchName := strings.ReplaceAll(m.Name, " ", "_")
	matchName = strings.ReplaceAll(matchName, ":", "_")
	filename := fmt.Sprintf("%s_%s.json.gz", matchName, m.StartTime.Format("20060102_150405"))

	f, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filename, err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	defer gz.Close()
	if _, err := gz.Write(data); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return filename, nil
}

// runReduce thins recorded combatant tracks down to one sample every five
// seconds of sim time, then reclaims the space. Zone states, events and
// ticket samples are untouched.
func runReduce(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("reduce requires at least one match id")
	}

	zlog := cliLogger()
	dbManager := database.NewManager(cfg.DB, zlog)
	if err := dbManager.Connect(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbManager.Close()
	db := dbManager.DB

	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid match id %q: %w", arg, err)
		}

		var m model.Match
		if err := db.First(&m, id).Error; err != nil {
			return fmt.Errorf("match %d not found: %w", id, err)
		}

		// Tracks are sampled once a second, so surviving ticks must be
		// multiples of the tick rate as well as of the thinning window.
		factor := uint64(math.Round(m.TickRate)) * 5
		if factor == 0 {
			factor = 5
		}
		res := db.Where("match_id = ? AND tick % ? != 0", id, factor).Delete(&model.CombatantState{})
		if res.Error != nil {
			return fmt.Errorf("failed to reduce match %d: %w", id, res.Error)
		}
		zlog.Info().Int("match", id).Int64("removed", res.RowsAffected).
			Uint64("keepEvery", factor).Msg("Combatant states thinned")
	}

	vacuum := "VACUUM;"
	if db.Dialector.Name() == "postgres" {
		vacuum = "VACUUM ANALYZE combatant_states;"
	}
	if err := db.Exec(vacuum).Error; err != nil {
		zlog.Warn().Err(err).Msg("Vacuum after reduce failed")
	}
	return nil
}

// runMigrateBackups moves matches recorded into local SQLite fallback files
// over to Postgres. Each backup file is processed in one transaction and
// renamed with a .migrated suffix on success, so a rerun skips it.
func runMigrateBackups(cfg *config.Config) error {
	zlog := cliLogger()

	manager := database.NewManager(cfg.DB, zlog)
	postgresDB, err := manager.GetPostgresDB()
	if err != nil {
		return fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if conn, err := postgresDB.DB(); err == nil {
		defer conn.Close()
	}
	if err := postgresDB.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate Postgres schema: %w", err)
	}

	paths, err := database.GetBackupDBPaths(filepath.Dir(cfg.DB.SQLitePath))
	if err != nil {
		return fmt.Errorf("failed to scan for backup databases: %w", err)
	}
	if len(paths) == 0 {
		zlog.Info().Msg("No backup databases found")
		return nil
	}

	var migrated []string
	for _, path := range paths {
		zlog.Info().Str("path", path).Msg("Migrating backup database")

		sqliteDB, err := manager.GetSqliteDB(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		err = migrateBackup(sqliteDB, postgresDB, zlog)
		if conn, connErr := sqliteDB.DB(); connErr == nil {
			conn.Close()
		}
		if err != nil {
			return fmt.Errorf("failed to migrate %s: %w", path, err)
		}

		if err := os.Rename(path, path+".migrated"); err != nil {
			zlog.Warn().Err(err).Str("path", path).Msg("Could not rename migrated backup")
		}
		migrated = append(migrated, path)
	}

	zlog.Info().Strs("files", migrated).
		Msg("Backups migrated, delete the .migrated files once verified")
	return nil
}

// migrateBackup copies every match in src into dst inside one transaction.
func migrateBackup(src, dst *gorm.DB, zlog zerolog.Logger) error {
	var matches []model.Match
	if err := src.Find(&matches).Error; err != nil {
		return fmt.Errorf("failed to load matches: %w", err)
	}
	if len(matches) == 0 {
		zlog.Warn().Msg("Backup contains no matches")
		return nil
	}

	tx := dst.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	for _, m := range matches {
		if err := migrateMatch(src, tx, m, zlog); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit().Error
}

// migrateMatch recreates one match and all its rows under a fresh match id.
// Child rows key into the match by (MatchID, SimID) composites, so restamping
// MatchID is enough to keep every relation intact; the autoincrement row ids
// are dropped and reassigned by Postgres.
func migrateMatch(src, tx *gorm.DB, m model.Match, zlog zerolog.Logger) error {
	oldID := m.ID

	var campaignMap model.Map
	if err := src.First(&campaignMap, m.MapID).Error; err != nil {
		return fmt.Errorf("map %d: %w", m.MapID, err)
	}
	campaignMap.Model = gorm.Model{}
	if _, err := campaignMap.GetOrInsert(tx); err != nil {
		return fmt.Errorf("map %q: %w", campaignMap.Name, err)
	}

	m.Model = gorm.Model{}
	m.MapID = campaignMap.ID
	if err := tx.Create(&m).Error; err != nil {
		return fmt.Errorf("match %q: %w", m.Name, err)
	}
	newID := m.ID
	zlog.Info().Uint("oldID", oldID).Uint("newID", newID).Str("name", m.Name).
		Msg("Migrating match")

	if err := copyMatchRows(src, tx, oldID, "combatants", func(rows []model.Combatant) {
		for i := range rows {
			rows[i].MatchID = newID
		}
	}); err != nil {
		return err
	}
	if err := copyMatchRows(src, tx, oldID, "combatant_states", func(rows []model.CombatantState) {
		for i := range rows {
			rows[i].MatchID = newID
		}
	}); err != nil {
		return err
	}
	if err := copyMatchRows(src, tx, oldID, "zones", func(rows []model.Zone) {
		for i := range rows {
			rows[i].MatchID = newID
		}
	}); err != nil {
		return err
	}
	if err := copyMatchRows(src, tx, oldID, "zone_states", func(rows []model.ZoneState) {
		for i := range rows {
			rows[i].MatchID = newID
		}
	}); err != nil {
		return err
	}
	if err := copyMatchRows(src, tx, oldID, "kill_events", func(rows []model.KillEvent) {
		for i := range rows {
			rows[i].MatchID = newID
		}
	}); err != nil {
		return err
	}
	if err := copyMatchRows(src, tx, oldID, "capture_events", func(rows []model.CaptureEvent) {
		for i := range rows {
			rows[i].MatchID = newID
		}
	}); err != nil {
		return err
	}
	if err := copyMatchRows(src, tx, oldID, "ticket_states", func(rows []model.TicketState) {
		for i := range rows {
			rows[i].MatchID = newID
		}
	}); err != nil {
		return err
	}
	if err := copyMatchRows(src, tx, oldID, "materialization_events", func(rows []model.MaterializationEvent) {
		for i := range rows {
			rows[i].MatchID = newID
		}
	}); err != nil {
		return err
	}
	if err := copyMatchRows(src, tx, oldID, "phase_changes", func(rows []model.PhaseChange) {
		for i := range rows {
			rows[i].MatchID = newID
		}
	}); err != nil {
		return err
	}
	if err := copyMatchRows(src, tx, oldID, "director_stats", func(rows []model.DirectorStat) {
		for i := range rows {
			rows[i].MatchID = newID
		}
	}); err != nil {
		return err
	}
	return copyMatchRows(src, tx, oldID, "core_performances", func(rows []model.CorePerformance) {
		for i := range rows {
			rows[i].MatchID = newID
		}
	})
}

// copyMatchRows loads one table's rows for a match from src and inserts them
// into tx after restamping. Omitting id lets tables with an autoincrement key
// take fresh ids; tables keyed purely by composites have no id column and are
// unaffected.
func copyMatchRows[T any](src, tx *gorm.DB, oldID uint, table string, restamp func([]T)) error {
	var rows []T
	if err := src.Where("match_id = ?", oldID).Find(&rows).Error; err != nil {
		return fmt.Errorf("%s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil
	}
	restamp(rows)
	if err := tx.Omit("id").Create(&rows).Error; err != nil {
		return fmt.Errorf("%s: %w", table, err)
	}
	return nil
}
