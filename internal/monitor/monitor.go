// Package monitor samples recorder health once a second: dispatcher buffer
// depths, storage write queue depths, the last DB write duration, and process
// runtime stats. Samples land in a status file, the core_performances table,
// and InfluxDB.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"gorm.io/gorm"

	"github.com/warfront/simcore/internal/influx"
	"github.com/warfront/simcore/internal/logging"
	"github.com/warfront/simcore/internal/match"
	"github.com/warfront/simcore/internal/model"
	"github.com/warfront/simcore/internal/worker"
)

// Dependencies holds all dependencies for the monitor service. DB and Influx
// may be nil; the corresponding sinks are skipped.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	MatchContext  *match.Context
	WorkerManager *worker.Manager
	Influx        *influx.Manager
	StatusDir     string
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current recorder status sections and the
// matching performance row.
func (s *Service) GetProgramStatus(
	rawBuffers bool,
	writeQueues bool,
	lastWrite bool,
) (output []string, perfModel model.CorePerformance) {
	currentMatch := s.deps.MatchContext.GetMatch()

	buffersObj := s.deps.WorkerManager.BufferLengths()
	writeQueuesObj := s.deps.WorkerManager.DBQueueLengths()

	perfModel = model.CorePerformance{
		Time:                time.Now(),
		MatchID:             currentMatch.ID,
		Match:               *currentMatch,
		BufferLengths:       buffersObj,
		WriteQueueLengths:   writeQueuesObj,
		LastWriteDurationMs: float32(s.deps.WorkerManager.GetLastDBWriteDuration().Milliseconds()),
	}

	if rawBuffers {
		rawBuffersStr, err := json.MarshalIndent(buffersObj, "", "  ")
		if err != nil {
			rawBuffersStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		output = append(output, string(rawBuffersStr))
	}
	if writeQueues {
		writeQueuesStr, err := json.MarshalIndent(writeQueuesObj, "", "  ")
		if err != nil {
			writeQueuesStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		output = append(output, string(writeQueuesStr))
	}
	if lastWrite {
		lastWriteStr, err := json.MarshalIndent(perfModel.LastWriteDurationMs, "", "  ")
		if err != nil {
			lastWriteStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		output = append(output, string(lastWriteStr))
	}

	return output, perfModel
}

// RuntimeStatus reports goroutine count and heap usage as a status section.
func (s *Service) RuntimeStatus() string {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := map[string]any{
		"goroutines":  runtime.NumGoroutine(),
		"heapAllocMB": mem.HeapAlloc / 1024 / 1024,
		"heapSysMB":   mem.HeapSys / 1024 / 1024,
		"numGC":       mem.NumGC,
	}
	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "%s"}`, err)
	}
	return string(out)
}

// ValidateHypertables validates and creates TimescaleDB hypertables for the
// given tables. Map values are the segmentby columns for compression.
func (s *Service) ValidateHypertables(tables map[string][]string) error {
	functionName := "validateHypertables"

	all := []any{}
	s.deps.DB.Exec(`SELECT x.* FROM timescaledb_information.hypertables`).Scan(&all)
	for _, row := range all {
		s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`hypertable row: %v`, row), "DEBUG")
	}

	for table := range tables {
		hypertable := any(nil)
		s.deps.DB.Exec(`SELECT x.* FROM timescaledb_information.hypertables WHERE hypertable_name = ?`, table).Scan(&hypertable)
		if hypertable != nil {
			s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Table %s is already configured`, table), "INFO")
			continue
		}

		queryCreateHypertable := fmt.Sprintf(`
				SELECT create_hypertable('%s', 'time', chunk_time_interval => interval '1 day', if_not_exists => true);
			`, table)
		err := s.deps.DB.Exec(queryCreateHypertable).Error
		if err != nil {
			s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Failed to create hypertable for %s. Err: %s`, table, err), "ERROR")
			return err
		}
		s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Created hypertable for %s`, table), "INFO")

		queryCompressHypertable := fmt.Sprintf(`
				ALTER TABLE %s SET (
					timescaledb.compress,
					timescaledb.compress_segmentby = ?);
			`, table)
		err = s.deps.DB.Exec(
			queryCompressHypertable,
			strings.Join(tables[table], ","),
		).Error
		if err != nil {
			s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Failed to enable compression for %s. Err: %s`, table, err), "ERROR")
			return err
		}
		s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Enabled hypertable compression for %s`, table), "INFO")

		queryCompressAfterHypertable := fmt.Sprintf(`
				SELECT add_compression_policy(
					'%s',
					compress_after => interval '14 day');
			`, table)
		err = s.deps.DB.Exec(queryCompressAfterHypertable).Error
		if err != nil {
			s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Failed to set compress_after for %s. Err: %s`, table, err), "ERROR")
			return err
		}
		s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Set compress_after for %s`, table), "INFO")
	}
	return nil
}

// writeInfluxPoints ships one performance sample to the telemetry bucket.
func (s *Service) writeInfluxPoints(perfModel model.CorePerformance) {
	if s.deps.Influx == nil {
		return
	}

	logger := s.deps.LogManager.Logger()
	now := time.Now()
	matchID := fmt.Sprintf("%d", perfModel.MatchID)

	p := influxdb2.NewPointWithMeasurement("sim_buffer_lengths").
		AddTag("match_name", perfModel.Match.Name).
		AddTag("match_id", matchID).
		AddField("combatant_states", perfModel.BufferLengths.CombatantStates).
		AddField("zone_states", perfModel.BufferLengths.ZoneStates).
		AddField("kill_events", perfModel.BufferLengths.KillEvents).
		AddField("capture_events", perfModel.BufferLengths.CaptureEvents).
		AddField("ticket_states", perfModel.BufferLengths.TicketStates).
		AddField("materialization_events", perfModel.BufferLengths.MaterializationEvents).
		AddField("phase_changes", perfModel.BufferLengths.PhaseChanges).
		AddField("director_stats", perfModel.BufferLengths.DirectorStats).
		AddField("dropped_events", s.deps.WorkerManager.DroppedEvents()).
		SetTime(now)

	if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketCorePerformance, p); err != nil {
		logger.Error("Error writing buffer lengths to InfluxDB", "error", err)
	}

	p = influxdb2.NewPointWithMeasurement("db_queue_lengths").
		AddTag("match_name", perfModel.Match.Name).
		AddTag("match_id", matchID).
		AddField("combatants", perfModel.WriteQueueLengths.Combatants).
		AddField("zones", perfModel.WriteQueueLengths.Zones).
		AddField("combatant_states", perfModel.WriteQueueLengths.CombatantStates).
		AddField("zone_states", perfModel.WriteQueueLengths.ZoneStates).
		AddField("kill_events", perfModel.WriteQueueLengths.KillEvents).
		AddField("capture_events", perfModel.WriteQueueLengths.CaptureEvents).
		AddField("ticket_states", perfModel.WriteQueueLengths.TicketStates).
		AddField("materialization_events", perfModel.WriteQueueLengths.MaterializationEvents).
		AddField("phase_changes", perfModel.WriteQueueLengths.PhaseChanges).
		AddField("director_stats", perfModel.WriteQueueLengths.DirectorStats).
		SetTime(now)

	if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketCorePerformance, p); err != nil {
		logger.Error("Error writing queue lengths to InfluxDB", "error", err)
	}

	p = influxdb2.NewPointWithMeasurement("db_lastwrite_duration_ms").
		AddTag("match_name", perfModel.Match.Name).
		AddTag("match_id", matchID).
		AddField("value", perfModel.LastWriteDurationMs).
		SetTime(now)

	if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketCorePerformance, p); err != nil {
		logger.Error("Error writing write duration to InfluxDB", "error", err)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	p = influxdb2.NewPointWithMeasurement("core_runtime").
		AddTag("match_name", perfModel.Match.Name).
		AddTag("match_id", matchID).
		AddField("goroutines", runtime.NumGoroutine()).
		AddField("heap_alloc_mb", int64(mem.HeapAlloc/1024/1024)).
		AddField("heap_sys_mb", int64(mem.HeapSys/1024/1024)).
		AddField("num_gc", int64(mem.NumGC)).
		SetTime(now)

	if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketCorePerformance, p); err != nil {
		logger.Error("Error writing runtime stats to InfluxDB", "error", err)
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor")

		statusFile, err := os.Create(filepath.Join(s.deps.StatusDir, "status.txt"))
		if err != nil {
			logger.Error("Error creating status file", "error", err)
		}
		defer statusFile.Close()

		for {
			select {
			case <-s.stopChan:
				return
			default:
				time.Sleep(1000 * time.Millisecond)

				currentMatch := s.deps.MatchContext.GetMatch()
				if currentMatch.ID == 0 {
					continue
				}

				statusStr, perfModel := s.GetProgramStatus(true, true, true)

				if statusFile != nil {
					statusFile.Truncate(0)
					statusFile.Seek(0, 0)
					for _, line := range statusStr {
						statusFile.WriteString(line + "\n")
					}
					statusFile.WriteString(s.RuntimeStatus() + "\n")
				}

				if s.deps.DB != nil {
					err = s.deps.DB.Create(&perfModel).Error
					if err != nil {
						logger.Error("Error writing perf model to database", "error", err)
					}
				}

				s.writeInfluxPoints(perfModel)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
