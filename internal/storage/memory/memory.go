// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/pkg/core"
)

// CombatantEntry groups a combatant with all its time-series samples
type CombatantEntry struct {
	Combatant core.CombatantRecord
	States    []core.CombatantState
}

// ZoneEntry groups a zone with its capture history
type ZoneEntry struct {
	Zone   core.ZoneRecord
	States []core.ZoneState
}

// Backend stores match data in memory and exports to JSON
type Backend struct {
	cfg         config.MemoryConfig
	match       *core.Match
	campaignMap *core.CampaignMap
	victory     *core.VictoryResult

	combatants map[core.CombatantID]*CombatantEntry // keyed by sim id
	zones      map[core.ZoneID]*ZoneEntry           // keyed by authored id

	killEvents            []core.KillEvent
	captureEvents         []core.CaptureEvent
	ticketSamples         []core.TicketSample
	materializationEvents []core.MaterializationEvent
	phaseChanges          []core.PhaseChangeEvent
	directorStats         []core.DirectorStats

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:        cfg,
		combatants: make(map[core.CombatantID]*CombatantEntry),
		zones:      make(map[core.ZoneID]*ZoneEntry),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartMatch begins recording a new match
func (b *Backend) StartMatch(match *core.Match, campaignMap *core.CampaignMap) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.match = match
	b.campaignMap = campaignMap
	b.victory = nil

	// Reset all collections
	b.combatants = make(map[core.CombatantID]*CombatantEntry)
	b.zones = make(map[core.ZoneID]*ZoneEntry)
	b.killEvents = nil
	b.captureEvents = nil
	b.ticketSamples = nil
	b.materializationEvents = nil
	b.phaseChanges = nil
	b.directorStats = nil

	return nil
}

// EndMatch finalizes and exports the match data
func (b *Backend) EndMatch(victory *core.VictoryResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.victory = victory
	return b.exportJSON()
}

// AddCombatant registers a new combatant
func (b *Backend) AddCombatant(r *core.CombatantRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.combatants[r.SimID] = &CombatantEntry{
		Combatant: *r,
		States:    make([]core.CombatantState, 0),
	}
	return nil
}

// AddZone registers a new capture zone
func (b *Backend) AddZone(z *core.ZoneRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.zones[z.SimID] = &ZoneEntry{
		Zone:   *z,
		States: make([]core.ZoneState, 0),
	}
	return nil
}

// GetCombatant looks up a combatant by its sim id
func (b *Backend) GetCombatant(id core.CombatantID) (*core.CombatantRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if entry, ok := b.combatants[id]; ok {
		return &entry.Combatant, true
	}
	return nil, false
}

// GetZone looks up a zone by its authored id
func (b *Backend) GetZone(id core.ZoneID) (*core.ZoneRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if entry, ok := b.zones[id]; ok {
		return &entry.Zone, true
	}
	return nil, false
}

// RecordCombatantState records a combatant state sample
func (b *Backend) RecordCombatantState(s *core.CombatantState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry, ok := b.combatants[s.SimID]; ok {
		entry.States = append(entry.States, *s)
	}
	return nil // silently ignore if combatant not registered
}

// RecordZoneState records a zone state sample
func (b *Backend) RecordZoneState(s *core.ZoneState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry, ok := b.zones[s.SimID]; ok {
		entry.States = append(entry.States, *s)
	}
	return nil
}

// RecordKillEvent records a kill event
func (b *Backend) RecordKillEvent(e *core.KillEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.killEvents = append(b.killEvents, *e)
	return nil
}

// RecordCaptureEvent records a capture event
func (b *Backend) RecordCaptureEvent(e *core.CaptureEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.captureEvents = append(b.captureEvents, *e)
	return nil
}

// RecordTicketSample records a ticket ledger snapshot
func (b *Backend) RecordTicketSample(s *core.TicketSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ticketSamples = append(b.ticketSamples, *s)
	return nil
}

// RecordMaterializationEvent records a fidelity tier transition
func (b *Backend) RecordMaterializationEvent(e *core.MaterializationEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.materializationEvents = append(b.materializationEvents, *e)
	return nil
}

// RecordPhaseChange records a match phase transition
func (b *Backend) RecordPhaseChange(e *core.PhaseChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.phaseChanges = append(b.phaseChanges, *e)
	return nil
}

// RecordDirectorStats records a director population summary
func (b *Backend) RecordDirectorStats(s *core.DirectorStats) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.directorStats = append(b.directorStats, *s)
	return nil
}
