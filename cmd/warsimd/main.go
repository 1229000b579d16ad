// warsimd drives the headless battle simulation core. It loads the match
// definition from warsim.cfg.json, runs the fixed-step tick loop at the
// configured rate, and records the run through the selected storage backend.
// Subcommands operate on existing recordings: "export" rebuilds after-action
// JSON from the database, "reduce" thins old per-tick state rows, and
// "migrate" moves SQLite fallback recordings into Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/warfront/simcore/internal/api"
	"github.com/warfront/simcore/internal/cache"
	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/internal/database"
	"github.com/warfront/simcore/internal/dispatcher"
	"github.com/warfront/simcore/internal/influx"
	"github.com/warfront/simcore/internal/logging"
	"github.com/warfront/simcore/internal/match"
	"github.com/warfront/simcore/internal/model"
	"github.com/warfront/simcore/internal/model/convert"
	"github.com/warfront/simcore/internal/monitor"
	"github.com/warfront/simcore/internal/scenario"
	"github.com/warfront/simcore/internal/sim"
	"github.com/warfront/simcore/internal/storage"
	"github.com/warfront/simcore/internal/worker"
	"github.com/warfront/simcore/pkg/core"

	"github.com/Graylog2/go-gelf/gelf"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Populated at build time via -ldflags "-X main.Version=... -X main.BuildDate=...".
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

func main() {
	configDir := flag.String("config", ".", "directory containing warsim.cfg.json")
	scenarioPath := flag.String("scenario", "", "path to a scenario script driving the match")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("warsimd %s (built %s)\n", Version, BuildDate)
		return
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warsimd: failed to load config: %v\n", err)
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "":
		err = run(cfg, *scenarioPath)
	case "export":
		err = runExport(cfg, flag.Args()[1:])
	case "reduce":
		err = runReduce(cfg, flag.Args()[1:])
	case "migrate":
		err = runMigrateBackups(cfg)
	default:
		fmt.Fprintf(os.Stderr, "warsimd: unknown command %q (expected export, reduce or migrate)\n", flag.Arg(0))
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warsimd: %v\n", err)
		os.Exit(1)
	}
}

// run executes one full match: wire the recording pipeline, drive the tick
// loop until victory or interrupt, then drain, finalize and upload.
func run(cfg *config.Config, scenarioPath string) error {
	sessionStart := time.Now()

	if err := os.MkdirAll(cfg.LogsDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logPath := logging.LogFilePath(cfg.LogsDir, "warsimd", sessionStart)
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	matchContext := match.NewContext()

	// Declared before the slog provider closure so the provider picks the
	// monitor up once it exists.
	var monitorService *monitor.Service

	zlog := setupZerolog(cfg, logFile, matchContext)

	slogManager := logging.NewSlogManager()
	slogManager.Setup(logFile, cfg.LogLevel, func() []slog.Attr {
		attrs := make([]slog.Attr, 0, 3)
		if m := matchContext.GetMatch(); m != nil && m.ID != 0 {
			attrs = append(attrs,
				slog.String("match", m.Name),
				slog.Uint64("matchId", uint64(m.ID)))
		}
		if monitorService != nil {
			attrs = append(attrs, slog.Bool("statusMonitorActive", monitorService.IsRunning()))
		}
		return attrs
	})
	logger := slogManager.Logger()
	logger.Info("Starting warsimd", "version", Version, "buildDate", BuildDate, "logFile", logPath)

	combatantCache := cache.NewCombatantCache()
	zoneCache := cache.NewZoneCache()

	disp, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	var dbManager *database.Manager
	var gormDB *gorm.DB
	if cfg.Storage.Type == "gorm" {
		dbManager = database.NewManager(cfg.DB, zlog)
		if err := dbManager.Connect(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := dbManager.Setup(); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		defer dbManager.Close()
		gormDB = dbManager.DB
	}

	workerDeps := worker.Dependencies{
		CombatantCache: combatantCache,
		ZoneCache:      zoneCache,
		LogManager:     slogManager,
	}
	backend, err := createStorageBackend(cfg, gormDB, workerDeps, matchContext)
	if err != nil {
		return fmt.Errorf("failed to create %s storage backend: %w", cfg.Storage.Type, err)
	}

	workerManager := worker.NewManager(workerDeps, backend)
	if backend != nil {
		if err := backend.Init(); err != nil {
			return fmt.Errorf("failed to initialize %s storage backend: %w", cfg.Storage.Type, err)
		}
		defer backend.Close()
		workerManager.RegisterHandlers(disp)
	} else {
		logger.Warn("Storage disabled, this run will not be recorded")
	}

	// An in-memory sqlite run only survives on disk through periodic dumps.
	// Writes are held during the VACUUM so it does not contend with a batch
	// insert; the queues keep buffering in the meantime.
	if dbManager != nil && dbManager.ShouldSaveLocal && dbManager.SqliteFilePath != "" {
		pauser, _ := backend.(interface {
			PauseWrites()
			ResumeWrites()
		})
		go func() {
			for {
				time.Sleep(3 * time.Minute)
				if pauser != nil {
					pauser.PauseWrites()
				}
				if err := dbManager.DumpMemoryToDisk(); err != nil {
					logger.Error("Failed to dump in-memory database to disk", "error", err)
				}
				if pauser != nil {
					pauser.ResumeWrites()
				}
			}
		}()
	}

	var influxManager *influx.Manager
	if cfg.Influx.Enabled {
		backupPath := filepath.Join(cfg.LogsDir,
			fmt.Sprintf("influx_backup_%s.gz", sessionStart.Format("20060102_150405")))
		influxManager = influx.NewManager(cfg.Influx, zlog, backupPath)
		if err := influxManager.Connect(); err != nil {
			logger.Warn("InfluxDB connection failed, telemetry disabled", "error", err)
			influxManager = nil
		} else {
			defer influxManager.Close()
		}
	}

	monitorService = monitor.NewService(monitor.Dependencies{
		DB:            gormDB,
		LogManager:    slogManager,
		MatchContext:  matchContext,
		WorkerManager: workerManager,
		Influx:        influxManager,
		StatusDir:     cfg.LogsDir,
	})
	if gormDB != nil && gormDB.Dialector.Name() == "postgres" {
		if err := monitorService.ValidateHypertables(map[string][]string{
			"combatant_states": {"match_id", "combatant_sim_id"},
			"zone_states":      {"match_id", "zone_sim_id"},
			"ticket_states":    {"match_id"},
		}); err != nil {
			logger.Warn("TimescaleDB hypertable setup failed, continuing on plain tables", "error", err)
		}
	}
	monitorService.Start()
	defer monitorService.Stop()

	apiClient := api.New(cfg.API.ServerURL, cfg.API.APIKey)
	if err := apiClient.Healthcheck(); err != nil {
		logger.Warn("Results server is offline, upload will be skipped", "error", err)
		apiClient = nil
	} else {
		logger.Info("Results server is online", "url", cfg.API.ServerURL)
	}

	simulator, err := sim.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build simulation: %w", err)
	}

	var player *scenario.Player
	if scenarioPath != "" {
		commands, err := scenario.ParseFile(scenarioPath)
		if err != nil {
			return fmt.Errorf("failed to load scenario: %w", err)
		}
		player = scenario.NewPlayer(commands)
		logger.Info("Scenario loaded", "path", scenarioPath, "commands", len(commands))
	}

	coreMatch := core.Match{
		Name:        cfg.Match.Name,
		MapName:     cfg.Map.Name,
		StartTime:   sessionStart,
		FactionA:    core.Faction(cfg.Match.FactionA),
		FactionB:    core.Faction(cfg.Match.FactionB),
		MaxTickets:  cfg.Sim.MaxTickets,
		TickRate:    cfg.Sim.TickRate,
		Tag:         cfg.Match.Tag,
		CoreVersion: Version,
	}
	campaignMap := core.CampaignMap{
		Name:        cfg.Map.Name,
		DisplayName: cfg.Map.DisplayName,
		SizeMetres:  cfg.Map.SizeMetres,
		Latitude:    cfg.Map.Latitude,
		Longitude:   cfg.Map.Longitude,
	}

	// Prime the context so log hooks and the status monitor see the match
	// immediately. The gorm backend replaces this with the DB-backed row
	// (real primary key) inside StartMatch.
	gormMatch := convert.CoreToMatch(coreMatch)
	gormMap := convert.CoreToMap(campaignMap)
	matchContext.SetMatch(&gormMatch, &gormMap)

	if backend != nil {
		if err := backend.StartMatch(&coreMatch, &campaignMap); err != nil {
			return fmt.Errorf("failed to start match recording: %w", err)
		}
		workerManager.PublishZoneRegistrations(simulator.Zones())
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	dt := 1.0 / cfg.Sim.TickRate
	sampleEvery := uint64(math.Round(cfg.Sim.TickRate))
	if sampleEvery == 0 {
		sampleEvery = 1
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / cfg.Sim.TickRate))
	defer ticker.Stop()

	// The tick loop logs at TRACE through a burst sampler so a stall shows
	// up in the session log without it growing by thirty lines a second.
	tickLog := zlog.Sample(&zerolog.BurstSampler{
		Burst:       5,
		Period:      10 * time.Second,
		NextSampler: &zerolog.BasicSampler{N: 100},
	})

	logger.Info("Simulation starting",
		"match", cfg.Match.Name,
		"map", cfg.Map.Name,
		"tickRate", cfg.Sim.TickRate,
		"maxTickets", cfg.Sim.MaxTickets)

	var victory *core.VictoryResult

loop:
	for {
		select {
		case <-interrupt:
			logger.Warn("Interrupt received, shutting down")
			break loop
		case <-ticker.C:
			if player != nil && player.Apply(simulator.CurrentTick(), simulator) {
				logger.Info("Scenario requested end of run")
				break loop
			}

			start := time.Now()
			res := simulator.Tick(dt)
			workerManager.PublishTickResult(&res)

			if res.Tick%sampleEvery == 0 {
				workerManager.PublishCombatantStates(simulator.Snapshot())
				workerManager.PublishZoneStatuses(res.Tick, res.SimTime, res.Zones)
				workerManager.PublishTicketSample(simulator.Sample())
				writeTicketTelemetry(logger, influxManager, matchContext, &res)
			}

			tickLog.Trace().
				Uint64("tick", res.Tick).
				Str("phase", string(res.Phase)).
				Int("materialized", len(res.Materialized)).
				Dur("elapsed", time.Since(start)).
				Msg("Tick complete")

			if res.Victory != nil {
				victory = res.Victory
				logger.Info("Match decided",
					"winner", string(victory.Winner),
					"reason", string(victory.Reason),
					"tick", victory.Tick)
				break loop
			}
		}
	}

	if player != nil && player.Remaining() > 0 {
		logger.Warn("Run ended with scenario commands unplayed", "remaining", player.Remaining())
	}

	// An interrupted or scenario-ended run may still have been forced to a
	// result through the admin surface.
	if victory == nil {
		victory = simulator.Victory()
	}

	// Final samples regardless of cadence so the recording ends on the
	// closing state.
	workerManager.PublishCombatantStates(simulator.Snapshot())
	workerManager.PublishTicketSample(simulator.Sample())

	if backend != nil {
		if !waitForDrain(workerManager, 5*time.Second) {
			logger.Warn("Timed out waiting for write buffers to drain, recording may be incomplete")
		}
		if err := backend.EndMatch(victory); err != nil {
			logger.Error("Failed to finalize match recording", "error", err)
		} else if apiClient != nil {
			uploadExport(logger, apiClient, backend)
		}
	}

	combatantCache.Lock()
	logger.Debug("Combatants cached", "numCombatantsCached", len(combatantCache.Combatants))
	combatantCache.Unlock()

	logger.Info("Simulation finished",
		"ticks", simulator.CurrentTick(),
		"simTime", simulator.SimTime(),
		"survivors", simulator.AliveCounts())
	return nil
}

// setupZerolog configures the global level and builds the session logger
// writing to stdout, the session file and, when enabled, Graylog.
func setupZerolog(cfg *config.Config, logFile io.Writer, matchContext *match.Context) zerolog.Logger {
	switch strings.ToUpper(cfg.LogLevel) {
	case "TRACE":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "INFO":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }

	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339},
		zerolog.ConsoleWriter{Out: logFile, TimeFormat: time.RFC3339, NoColor: true},
	}
	var gelfErr error
	if cfg.Graylog.Enabled {
		gelfWriter, err := gelf.NewWriter(cfg.Graylog.Address)
		if err != nil {
			gelfErr = err
		} else {
			writers = append(writers, gelfWriter)
		}
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Logger().
		Hook(zerolog.HookFunc(func(e *zerolog.Event, level zerolog.Level, message string) {
			if m := matchContext.GetMatch(); m != nil && m.ID != 0 {
				e.Str("match", m.Name).Uint("matchId", m.ID)
			}
		}))

	if gelfErr != nil {
		logger.Warn().Err(gelfErr).Str("address", cfg.Graylog.Address).
			Msg("Graylog connection failed, continuing without GELF output")
	}
	return logger
}

// waitForDrain polls the publish buffers until they empty or the timeout
// elapses. Returns true when everything was flushed.
func waitForDrain(m *worker.Manager, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.BufferLengths() == (model.BufferLengths{}) {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return m.BufferLengths() == (model.BufferLengths{})
}

// writeTicketTelemetry pushes the once-a-second ticket and zone ownership
// points to the match_data bucket.
func writeTicketTelemetry(logger *slog.Logger, mgr *influx.Manager, matchContext *match.Context, res *core.TickResult) {
	if mgr == nil {
		return
	}

	matchName, matchID := "", ""
	if m := matchContext.GetMatch(); m != nil {
		matchName = m.Name
		matchID = fmt.Sprintf("%d", m.ID)
	}
	now := time.Now()

	for _, ft := range res.Tickets {
		p := influxdb2.NewPointWithMeasurement("tickets").
			AddTag("match_name", matchName).
			AddTag("match_id", matchID).
			AddTag("faction", string(ft.Faction)).
			AddField("tickets", ft.Tickets).
			AddField("kills", int64(ft.Kills)).
			AddField("bleed_rate", ft.BleedRate).
			SetTime(now)
		if err := mgr.WritePoint(context.Background(), influx.BucketMatchData, p); err != nil {
			logger.Debug("Error writing ticket telemetry to InfluxDB", "error", err)
		}
	}

	owned := make(map[core.Faction]int)
	contested := 0
	for _, z := range res.Zones {
		if z.State == core.CaptureContested {
			contested++
		}
		if z.Owner != core.FactionNone {
			owned[z.Owner]++
		}
	}
	p := influxdb2.NewPointWithMeasurement("zones").
		AddTag("match_name", matchName).
		AddTag("match_id", matchID).
		AddField("contested", int64(contested)).
		SetTime(now)
	for faction, count := range owned {
		p.AddField("owned_"+strings.ToLower(string(faction)), int64(count))
	}
	if err := mgr.WritePoint(context.Background(), influx.BucketMatchData, p); err != nil {
		logger.Debug("Error writing zone telemetry to InfluxDB", "error", err)
	}
}

// uploadExport sends the finished recording to the results server when the
// backend produced an uploadable file.
func uploadExport(logger *slog.Logger, client *api.Client, backend storage.Backend) {
	up, ok := backend.(storage.Uploadable)
	if !ok {
		return
	}
	path := up.GetExportedFilePath()
	if path == "" {
		return
	}
	meta := up.GetExportMetadata()
	if err := client.Upload(path, meta); err != nil {
		logger.Error("Failed to upload recording", "path", path, "error", err)
		return
	}
	logger.Info("Recording uploaded", "path", path, "match", meta.MatchName)
}
