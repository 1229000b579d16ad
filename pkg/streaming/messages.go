package streaming

import (
	"encoding/json"

	"github.com/warfront/simcore/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartMatch           = "start_match"
	TypeEndMatch             = "end_match"
	TypeAddCombatant         = "add_combatant"
	TypeAddZone              = "add_zone"
	TypeCombatantState       = "combatant_state"
	TypeZoneState            = "zone_state"
	TypeKillEvent            = "kill_event"
	TypeCaptureEvent         = "capture_event"
	TypeTicketSample         = "ticket_sample"
	TypeMaterializationEvent = "materialization_event"
	TypePhaseChange          = "phase_change"
	TypeDirectorStats        = "director_stats"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartMatchPayload carries match and map data.
type StartMatchPayload struct {
	Match *core.Match       `json:"match"`
	Map   *core.CampaignMap `json:"map"`
}

// EndMatchPayload carries the final result alongside the match id.
type EndMatchPayload struct {
	MatchID uint                `json:"matchId"`
	Victory *core.VictoryResult `json:"victory,omitempty"`
}
