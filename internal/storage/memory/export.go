// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/warfront/simcore/internal/geo"
	"github.com/warfront/simcore/pkg/core"
)

// AfterActionExport is the root JSON structure consumed by replay tooling.
type AfterActionExport struct {
	CoreVersion     string          `json:"coreVersion"`
	MatchName       string          `json:"matchName"`
	Tag             string          `json:"tag,omitempty"`
	MapName         string          `json:"mapName"`
	MapSizeMetres   float64         `json:"mapSizeMetres"`
	FactionA        string          `json:"factionA"`
	FactionB        string          `json:"factionB"`
	TickRate        float64         `json:"tickRate"`
	MaxTickets      float64         `json:"maxTickets"`
	EndTick         uint64          `json:"endTick"`
	DurationSeconds float64         `json:"durationSeconds"`
	Winner          string          `json:"winner,omitempty"`
	VictoryReason   string          `json:"victoryReason,omitempty"`
	Combatants      []CombatantJSON `json:"combatants"`
	Zones           []ZoneJSON      `json:"zones"`
	Events          [][]any         `json:"events"`
	Tickets         [][]any         `json:"tickets"`
}

// CombatantJSON represents one combatant with its sampled track. Track is
// the same trace as a WKT LINESTRING ZM (sim time in M) for GIS consumers;
// absent when fewer than two samples were recorded.
type CombatantJSON struct {
	ID       uint32  `json:"id"`
	Faction  string  `json:"faction"`
	Squad    uint32  `json:"squad"`
	Role     string  `json:"role"`
	JoinTick uint64  `json:"joinTick"`
	Samples  [][]any `json:"samples"`
	Track    string  `json:"track,omitempty"`
}

// ZoneJSON represents one capture zone with its ownership history.
type ZoneJSON struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Position     []float64 `json:"position"`
	Radius       float64   `json:"radius"`
	HomeBase     bool      `json:"homeBase"`
	InitialOwner string    `json:"initialOwner,omitempty"`
	History      [][]any   `json:"history"`
}

// exportJSON writes the match data to a JSON file, gzipped when configured.
// Caller holds the write lock.
func (b *Backend) exportJSON() error {
	if b.match == nil {
		return fmt.Errorf("no match in progress")
	}

	export := b.buildExport()

	// Build filename
	matchName := strings.ReplaceAll(b.match.Name, " ", "_")
	matchName = strings.ReplaceAll(matchName, ":", "_")
	timestamp := b.match.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", matchName, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", matchName, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() AfterActionExport {
	export := AfterActionExport{
		CoreVersion:   b.match.CoreVersion,
		MatchName:     b.match.Name,
		Tag:           b.match.Tag,
		FactionA:      string(b.match.FactionA),
		FactionB:      string(b.match.FactionB),
		TickRate:      b.match.TickRate,
		MaxTickets:    b.match.MaxTickets,
		Combatants:    make([]CombatantJSON, 0, len(b.combatants)),
		Zones:         make([]ZoneJSON, 0, len(b.zones)),
		Events:        make([][]any, 0),
		Tickets:       make([][]any, 0, len(b.ticketSamples)),
	}
	if b.campaignMap != nil {
		export.MapName = b.campaignMap.Name
		export.MapSizeMetres = b.campaignMap.SizeMetres
	}

	var maxTick uint64
	var maxSimTime float64

	// Convert combatants in sim id order so exports are reproducible
	ids := make([]core.CombatantID, 0, len(b.combatants))
	for id := range b.combatants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		entry := b.combatants[id]
		cj := CombatantJSON{
			ID:       uint32(entry.Combatant.SimID),
			Faction:  string(entry.Combatant.Faction),
			Squad:    uint32(entry.Combatant.Squad),
			Role:     entry.Combatant.Role.String(),
			JoinTick: entry.Combatant.JoinTick,
			Samples:  make([][]any, 0, len(entry.States)),
		}

		positions := make([]core.Position3D, 0, len(entry.States))
		times := make([]float64, 0, len(entry.States))
		for _, state := range entry.States {
			cj.Samples = append(cj.Samples, EncodeCombatantSample(state))
			positions = append(positions, state.Position)
			times = append(times, state.SimTime)
			if state.Tick > maxTick {
				maxTick = state.Tick
			}
			if state.SimTime > maxSimTime {
				maxSimTime = state.SimTime
			}
		}
		if ls, err := geo.TrackZM(positions, times); err == nil {
			cj.Track = ls.AsText()
		}

		export.Combatants = append(export.Combatants, cj)
	}

	// Convert zones in authored id order
	zoneIDs := make([]core.ZoneID, 0, len(b.zones))
	for id := range b.zones {
		zoneIDs = append(zoneIDs, id)
	}
	sort.Slice(zoneIDs, func(i, j int) bool { return zoneIDs[i] < zoneIDs[j] })

	for _, id := range zoneIDs {
		entry := b.zones[id]
		zj := ZoneJSON{
			ID:           string(entry.Zone.SimID),
			Name:         entry.Zone.Name,
			Position:     []float64{entry.Zone.Position.X, entry.Zone.Position.Y, entry.Zone.Position.Z},
			Radius:       entry.Zone.Radius,
			HomeBase:     entry.Zone.HomeBase,
			InitialOwner: string(entry.Zone.Owner),
			History:      make([][]any, 0, len(entry.States)),
		}

		for _, state := range entry.States {
			zj.History = append(zj.History, EncodeZoneSample(state))
			if state.Tick > maxTick {
				maxTick = state.Tick
			}
		}

		export.Zones = append(export.Zones, zj)
	}

	for _, evt := range b.killEvents {
		export.Events = append(export.Events, EncodeKillEvent(evt))
	}
	for _, evt := range b.captureEvents {
		export.Events = append(export.Events, EncodeCaptureEvent(evt))
	}
	for _, evt := range b.phaseChanges {
		export.Events = append(export.Events, EncodePhaseChange(evt))
	}
	for _, evt := range b.materializationEvents {
		export.Events = append(export.Events, EncodeMaterialization(evt))
	}

	// Order the merged categories on tick, preserving within-tick record order
	sort.SliceStable(export.Events, func(i, j int) bool {
		return export.Events[i][0].(uint64) < export.Events[j][0].(uint64)
	})

	for _, sample := range b.ticketSamples {
		export.Tickets = append(export.Tickets, EncodeTicketSample(sample))
		if sample.Tick > maxTick {
			maxTick = sample.Tick
		}
		if sample.SimTime > maxSimTime {
			maxSimTime = sample.SimTime
		}
	}

	export.EndTick = maxTick
	export.DurationSeconds = maxSimTime

	if b.victory != nil {
		export.Winner = string(b.victory.Winner)
		export.VictoryReason = string(b.victory.Reason)
		export.EndTick = b.victory.Tick
		export.DurationSeconds = b.victory.SimTime
	}

	return export
}

// The encode helpers flatten wire structs into the compact arrays the replay
// tooling reads. The DB export command reuses them so both storage paths
// produce byte-compatible files.

// EncodeCombatantSample encodes one track sample:
// [tick, [x,y,z], health, lifecycle, tier].
func EncodeCombatantSample(s core.CombatantState) []any {
	return []any{
		s.Tick,
		[]float64{s.Position.X, s.Position.Y, s.Position.Z},
		s.Health,
		uint8(s.Lifecycle),
		string(s.Tier),
	}
}

// EncodeZoneSample encodes one ownership sample:
// [tick, owner, state, progress, progressFaction].
func EncodeZoneSample(s core.ZoneState) []any {
	return []any{
		s.Tick,
		string(s.Owner),
		string(s.State),
		s.Progress,
		string(s.ProgressFaction),
	}
}

// EncodeKillEvent encodes [tick, "killed", victimId, [killerId, distance], assists].
func EncodeKillEvent(e core.KillEvent) []any {
	assists := make([]uint32, 0, len(e.Assists))
	for _, a := range e.Assists {
		assists = append(assists, uint32(a))
	}
	return []any{
		e.Tick,
		"killed",
		uint32(e.Victim),
		[]any{uint32(e.Killer), e.Distance},
		assists,
	}
}

// EncodeCaptureEvent encodes [tick, "captured", zoneId, from, to, state].
func EncodeCaptureEvent(e core.CaptureEvent) []any {
	return []any{
		e.Tick,
		"captured",
		string(e.Zone),
		string(e.From),
		string(e.To),
		string(e.State),
	}
}

// EncodePhaseChange encodes [tick, "phase", from, to].
func EncodePhaseChange(e core.PhaseChangeEvent) []any {
	return []any{
		e.Tick,
		"phase",
		string(e.From),
		string(e.To),
	}
}

// EncodeMaterialization encodes [tick, "materialized", combatantId, faction, toTier].
func EncodeMaterialization(e core.MaterializationEvent) []any {
	return []any{
		e.Tick,
		"materialized",
		uint32(e.Combatant),
		string(e.Faction),
		string(e.To),
	}
}

// EncodeTicketSample encodes [tick, phase, [[faction, tickets, kills, bleedRate], ...]].
func EncodeTicketSample(s core.TicketSample) []any {
	factions := make([][]any, 0, len(s.Factions))
	for _, f := range s.Factions {
		factions = append(factions, []any{
			string(f.Faction),
			f.Tickets,
			f.Kills,
			f.BleedRate,
		})
	}
	return []any{
		s.Tick,
		string(s.Phase),
		factions,
	}
}

func (b *Backend) writeJSON(path string, data AfterActionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func (b *Backend) writeGzipJSON(path string, data AfterActionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}

// GetExportedFilePath returns the path of the most recent export.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata returns upload metadata for the most recent export.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta := core.UploadMetadata{}
	if b.match != nil {
		meta.MatchName = b.match.Name
		meta.Tag = b.match.Tag
	}
	if b.campaignMap != nil {
		meta.MapName = b.campaignMap.Name
	}
	if b.victory != nil {
		meta.MatchDuration = b.victory.SimTime
		meta.Winner = b.victory.Winner
	}
	return meta
}
