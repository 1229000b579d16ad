// internal/storage/storage.go
package storage

import "github.com/warfront/simcore/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Match management
	StartMatch(match *core.Match, campaignMap *core.CampaignMap) error
	EndMatch(victory *core.VictoryResult) error

	// Entity registration
	AddCombatant(r *core.CombatantRecord) error
	AddZone(z *core.ZoneRecord) error

	// State recording
	RecordCombatantState(s *core.CombatantState) error
	RecordZoneState(s *core.ZoneState) error

	// Event recording
	RecordKillEvent(e *core.KillEvent) error
	RecordCaptureEvent(e *core.CaptureEvent) error
	RecordTicketSample(s *core.TicketSample) error
	RecordMaterializationEvent(e *core.MaterializationEvent) error
	RecordPhaseChange(e *core.PhaseChangeEvent) error
	RecordDirectorStats(s *core.DirectorStats) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to a results server.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
