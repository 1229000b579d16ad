// pkg/core/match.go
package core

import "time"

// CampaignMap describes the terrain a match is fought on. Latitude and
// Longitude georeference the map origin for GIS export.
type CampaignMap struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName"`
	SizeMetres  float64 `json:"sizeMetres"` // edge length of the square play area
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Match is the recorded metadata of one simulation run.
type Match struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	MapName     string    `json:"mapName"`
	StartTime   time.Time `json:"startTime"`
	FactionA    Faction   `json:"factionA"`
	FactionB    Faction   `json:"factionB"`
	MaxTickets  float64   `json:"maxTickets"`
	TickRate    float64   `json:"tickRate"` // ticks per second the host drives
	Tag         string    `json:"tag"`
	CoreVersion string    `json:"coreVersion"`
}

// UploadMetadata accompanies an after-action export posted to a results server.
type UploadMetadata struct {
	MatchName     string
	MapName       string
	MatchDuration float64 // seconds
	Winner        Faction
	Tag           string
}
