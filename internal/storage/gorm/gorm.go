// Package gormstorage implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine. It works
// against Postgres or SQLite; with no DB injected it runs queue-only,
// which is what the unit tests use.
package gormstorage

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/warfront/simcore/internal/cache"
	"github.com/warfront/simcore/internal/logging"
	"github.com/warfront/simcore/internal/match"
	"github.com/warfront/simcore/internal/model"
	"github.com/warfront/simcore/internal/model/convert"
	"github.com/warfront/simcore/internal/queue"
	"github.com/warfront/simcore/pkg/core"
)

// Dependencies holds all dependencies for the GORM storage backend.
// The DB is connected and migrated by the database manager before
// it is handed in here; a nil DB puts the backend in queue-only mode.
type Dependencies struct {
	DB             *gorm.DB
	CombatantCache *cache.CombatantCache
	ZoneCache      *cache.ZoneCache
	LogManager     *logging.SlogManager
	MatchContext   *match.Context
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Combatants            *queue.Queue[model.Combatant]
	CombatantStates       *queue.Queue[model.CombatantState]
	Zones                 *queue.Queue[model.Zone]
	ZoneStates            *queue.Queue[model.ZoneState]
	KillEvents            *queue.Queue[model.KillEvent]
	CaptureEvents         *queue.Queue[model.CaptureEvent]
	TicketStates          *queue.Queue[model.TicketState]
	MaterializationEvents *queue.Queue[model.MaterializationEvent]
	PhaseChanges          *queue.Queue[model.PhaseChange]
	DirectorStats         *queue.Queue[model.DirectorStat]
}

func newQueues() *queues {
	return &queues{
		Combatants:            queue.New[model.Combatant](),
		CombatantStates:       queue.New[model.CombatantState](),
		Zones:                 queue.New[model.Zone](),
		ZoneStates:            queue.New[model.ZoneState](),
		KillEvents:            queue.New[model.KillEvent](),
		CaptureEvents:         queue.New[model.CaptureEvent](),
		TicketStates:          queue.New[model.TicketState](),
		MaterializationEvents: queue.New[model.MaterializationEvent](),
		PhaseChanges:          queue.New[model.PhaseChange](),
		DirectorStats:         queue.New[model.DirectorStat](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps           Dependencies
	queues         *queues
	matchID        atomic.Uint64
	stopChan       chan struct{}
	dbReady        bool
	paused         atomic.Bool
	lastWriteNanos atomic.Int64
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{
		deps: deps,
	}
}

// Init creates the internal queues and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})
	b.dbReady = b.deps.DB != nil

	b.startDBWriters()
	return nil
}

// Close stops the DB writer goroutine and flushes whatever the queues
// still hold.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
	}
	if b.dbReady {
		b.drainAll()
	}
	return nil
}

// StartMatch performs the map get-or-insert and the match create, then
// resets the per-match caches and primes the match context for logging.
func (b *Backend) StartMatch(coreMatch *core.Match, campaignMap *core.CampaignMap) error {
	b.deps.CombatantCache.Reset()
	b.deps.ZoneCache.Reset()

	gormMatch := convert.CoreToMatch(*coreMatch)
	gormMap := convert.CoreToMap(*campaignMap)

	if b.deps.DB == nil {
		b.matchID.Store(0)
		b.deps.MatchContext.SetMatch(&gormMatch, &gormMap)
		return nil
	}

	if _, err := gormMap.GetOrInsert(b.deps.DB); err != nil {
		return fmt.Errorf("failed to get or insert map %s: %w", gormMap.Name, err)
	}

	gormMatch.Map = gormMap
	if err := b.deps.DB.Create(&gormMatch).Error; err != nil {
		return fmt.Errorf("failed to insert new match: %w", err)
	}

	// Assign the DB-generated ID back so the caller sees it
	coreMatch.ID = gormMatch.ID

	// Store match ID for the DB writer goroutine
	b.matchID.Store(uint64(gormMatch.ID))

	b.deps.MatchContext.SetMatch(&gormMatch, &gormMap)
	b.deps.LogManager.WriteLog("StartMatch",
		fmt.Sprintf("Match %q started with id %d", gormMatch.Name, gormMatch.ID), "INFO")
	return nil
}

// SetMatchID overrides the match ID the DB writer stamps onto queued rows.
func (b *Backend) SetMatchID(id uint) {
	b.matchID.Store(uint64(id))
}

// EndMatch flushes the queues and writes the outcome columns onto the
// match row. A nil victory leaves the row open, which marks a match
// that was cut short without a result.
func (b *Backend) EndMatch(victory *core.VictoryResult) error {
	if b.deps.DB == nil {
		return nil
	}

	matchID := uint(b.matchID.Load())
	if matchID == 0 {
		return nil
	}

	b.drainAll()

	if victory == nil {
		return nil
	}

	updates := map[string]interface{}{
		"winner":           sql.NullString{String: string(victory.Winner), Valid: true},
		"victory_reason":   string(victory.Reason),
		"end_tick":         victory.Tick,
		"duration_seconds": victory.SimTime,
	}
	if err := b.deps.DB.Model(&model.Match{}).Where("id = ?", matchID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to finalize match %d: %w", matchID, err)
	}

	b.deps.LogManager.WriteLog("EndMatch",
		fmt.Sprintf("Match %d ended, winner %q (%s)", matchID, victory.Winner, victory.Reason), "INFO")
	return nil
}

// AddCombatant converts a core combatant record and pushes it to the
// write queue. The join wall-clock time is stamped here because the wire
// types only carry tick time.
func (b *Backend) AddCombatant(r *core.CombatantRecord) error {
	gormObj := convert.CoreToCombatant(*r)
	gormObj.JoinTime = time.Now()
	b.queues.Combatants.Push(gormObj)
	return nil
}

// AddZone inserts a zone synchronously (not queued) because zones are
// low-volume and need immediate row IDs for the ZoneCache. A failed
// insert is re-queued so the writer retries it with the next batch.
func (b *Backend) AddZone(z *core.ZoneRecord) error {
	gormObj := convert.CoreToZone(*z)

	if b.deps.DB == nil {
		b.queues.Zones.Push(gormObj)
		return nil
	}

	gormObj.MatchID = uint(b.matchID.Load())
	if err := b.deps.DB.Create(&gormObj).Error; err != nil {
		b.queues.Zones.Push(gormObj)
		return fmt.Errorf("failed to insert zone %s: %w", z.SimID, err)
	}
	b.deps.ZoneCache.Set(z.SimID, gormObj.ID)
	return nil
}

// RecordCombatantState converts and queues a combatant state.
func (b *Backend) RecordCombatantState(s *core.CombatantState) error {
	gormObj := convert.CoreToCombatantState(*s)
	gormObj.Time = time.Now()
	b.queues.CombatantStates.Push(gormObj)
	return nil
}

// RecordZoneState converts and queues a zone state.
func (b *Backend) RecordZoneState(s *core.ZoneState) error {
	gormObj := convert.CoreToZoneState(*s)
	gormObj.Time = time.Now()
	b.queues.ZoneStates.Push(gormObj)
	return nil
}

// RecordKillEvent converts and queues a kill event.
func (b *Backend) RecordKillEvent(e *core.KillEvent) error {
	gormObj := convert.CoreToKillEvent(*e)
	gormObj.Time = time.Now()
	b.queues.KillEvents.Push(gormObj)
	return nil
}

// RecordCaptureEvent converts and queues a capture event.
func (b *Backend) RecordCaptureEvent(e *core.CaptureEvent) error {
	gormObj := convert.CoreToCaptureEvent(*e)
	gormObj.Time = time.Now()
	b.queues.CaptureEvents.Push(gormObj)
	return nil
}

// RecordTicketSample converts and queues a ticket ledger sample.
func (b *Backend) RecordTicketSample(s *core.TicketSample) error {
	gormObj := convert.CoreToTicketState(*s)
	gormObj.Time = time.Now()
	b.queues.TicketStates.Push(gormObj)
	return nil
}

// RecordMaterializationEvent converts and queues a tier transition.
func (b *Backend) RecordMaterializationEvent(e *core.MaterializationEvent) error {
	gormObj := convert.CoreToMaterializationEvent(*e)
	gormObj.Time = time.Now()
	b.queues.MaterializationEvents.Push(gormObj)
	return nil
}

// RecordPhaseChange converts and queues a phase change.
func (b *Backend) RecordPhaseChange(e *core.PhaseChangeEvent) error {
	gormObj := convert.CoreToPhaseChange(*e)
	gormObj.Time = time.Now()
	b.queues.PhaseChanges.Push(gormObj)
	return nil
}

// RecordDirectorStats converts and queues a director census.
func (b *Backend) RecordDirectorStats(s *core.DirectorStats) error {
	gormObj := convert.CoreToDirectorStat(*s)
	gormObj.Time = time.Now()
	b.queues.DirectorStats.Push(gormObj)
	return nil
}

// GetCombatantBySimID looks up a registered combatant in the cache.
func (b *Backend) GetCombatantBySimID(id core.CombatantID) (core.CombatantRecord, bool) {
	return b.deps.CombatantCache.Get(id)
}

// GetZoneRowID looks up the DB row id of a registered zone.
func (b *Backend) GetZoneRowID(id core.ZoneID) (uint, bool) {
	return b.deps.ZoneCache.Get(id)
}

// PauseWrites holds the background writer between cycles so the database
// file can be vacuumed or copied without concurrent inserts. Queues keep
// accepting data while paused.
func (b *Backend) PauseWrites() {
	b.paused.Store(true)
}

// ResumeWrites lifts a PauseWrites suspension.
func (b *Backend) ResumeWrites() {
	b.paused.Store(false)
}

// GetLastDBWriteDuration returns how long the previous write cycle took.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWriteNanos.Load())
}

// QueueLengths reports the current depth of each write queue.
func (b *Backend) QueueLengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{
		Combatants:            uint16(b.queues.Combatants.Len()),
		CombatantStates:       uint16(b.queues.CombatantStates.Len()),
		Zones:                 uint16(b.queues.Zones.Len()),
		ZoneStates:            uint16(b.queues.ZoneStates.Len()),
		KillEvents:            uint16(b.queues.KillEvents.Len()),
		CaptureEvents:         uint16(b.queues.CaptureEvents.Len()),
		TicketStates:          uint16(b.queues.TicketStates.Len()),
		MaterializationEvents: uint16(b.queues.MaterializationEvents.Len()),
		PhaseChanges:          uint16(b.queues.PhaseChanges.Len()),
		DirectorStats:         uint16(b.queues.DirectorStats.Len()),
	}
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string), prepare func([]T), onSuccess func([]T)) {
	if q.Empty() {
		return
	}

	tx := db.Begin()
	items := q.GetAndEmpty()
	if prepare != nil {
		prepare(items)
	}
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Push(items...)
		return
	}

	tx.Commit()
	if onSuccess != nil {
		onSuccess(items)
	}
}

// drainAll runs one write cycle: every queue is drained into the DB with
// the current match ID stamped on. Also used by EndMatch for the final
// flush, so a concurrent writer pass seeing empty queues is fine.
func (b *Backend) drainAll() {
	log := b.deps.LogManager.WriteLog

	// Read matchID once per write cycle
	matchID := uint(b.matchID.Load())

	start := time.Now()

	stampCombatants := func(items []model.Combatant) {
		for i := range items {
			items[i].MatchID = matchID
		}
	}
	stampCombatantStates := func(items []model.CombatantState) {
		for i := range items {
			items[i].MatchID = matchID
		}
	}
	stampZones := func(items []model.Zone) {
		for i := range items {
			items[i].MatchID = matchID
		}
	}
	stampZoneStates := func(items []model.ZoneState) {
		for i := range items {
			items[i].MatchID = matchID
		}
	}
	stampKillEvents := func(items []model.KillEvent) {
		for i := range items {
			items[i].MatchID = matchID
		}
	}
	stampCaptureEvents := func(items []model.CaptureEvent) {
		for i := range items {
			items[i].MatchID = matchID
		}
	}
	stampTicketStates := func(items []model.TicketState) {
		for i := range items {
			items[i].MatchID = matchID
		}
	}
	stampMaterializationEvents := func(items []model.MaterializationEvent) {
		for i := range items {
			items[i].MatchID = matchID
		}
	}
	stampPhaseChanges := func(items []model.PhaseChange) {
		for i := range items {
			items[i].MatchID = matchID
		}
	}
	stampDirectorStats := func(items []model.DirectorStat) {
		for i := range items {
			items[i].MatchID = matchID
		}
	}

	// Entities first so states land after their owners
	writeQueue(b.deps.DB, b.queues.Combatants, "combatants", log, stampCombatants, nil)
	writeQueue(b.deps.DB, b.queues.Zones, "zones", log, stampZones, func(items []model.Zone) {
		for _, zone := range items {
			if zone.ID != 0 {
				b.deps.ZoneCache.Set(core.ZoneID(zone.SimID), zone.ID)
			}
		}
	})

	// State updates
	writeQueue(b.deps.DB, b.queues.CombatantStates, "combatant states", log, stampCombatantStates, nil)
	writeQueue(b.deps.DB, b.queues.ZoneStates, "zone states", log, stampZoneStates, nil)

	// Events
	writeQueue(b.deps.DB, b.queues.KillEvents, "kill events", log, stampKillEvents, nil)
	writeQueue(b.deps.DB, b.queues.CaptureEvents, "capture events", log, stampCaptureEvents, nil)
	writeQueue(b.deps.DB, b.queues.TicketStates, "ticket states", log, stampTicketStates, nil)
	writeQueue(b.deps.DB, b.queues.MaterializationEvents, "materialization events", log, stampMaterializationEvents, nil)
	writeQueue(b.deps.DB, b.queues.PhaseChanges, "phase changes", log, stampPhaseChanges, nil)
	writeQueue(b.deps.DB, b.queues.DirectorStats, "director stats", log, stampDirectorStats, nil)

	b.lastWriteNanos.Store(int64(time.Since(start)))
}

// startDBWriters starts the background goroutine that periodically drains
// queues into the DB.
func (b *Backend) startDBWriters() {
	go func() {
		for {
			select {
			case <-b.stopChan:
				return
			default:
			}

			if !b.dbReady || b.paused.Load() {
				time.Sleep(1 * time.Second)
				continue
			}

			b.drainAll()
			time.Sleep(2 * time.Second)
		}
	}()
}
