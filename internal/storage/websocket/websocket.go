package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/warfront/simcore/pkg/core"
	"github.com/warfront/simcore/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL   string
	Token string
}

// Backend streams match data over WebSocket to a live viewer server.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn    *connection
	cfg     Config
	matchID atomic.Uint64
}

// New creates a new WebSocket storage backend.
func New(cfg Config) *Backend {
	return &Backend{
		conn: newConnection(slog.Default()),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Token)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// sendEnvelopeAndWait marshals the payload and waits for a server ack.
func (b *Backend) sendEnvelopeAndWait(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return b.conn.sendAndWait(data, msgType, ackTimeout)
}

// StartMatch sends match and map data and waits for server ack.
func (b *Backend) StartMatch(match *core.Match, campaignMap *core.CampaignMap) error {
	data, err := marshalEnvelope(streaming.TypeStartMatch, streaming.StartMatchPayload{Match: match, Map: campaignMap})
	if err != nil {
		return err
	}

	b.matchID.Store(uint64(match.ID))

	// Cache for reconnect replay.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartMatch, ackTimeout)
}

// EndMatch sends the final result and waits for server ack.
func (b *Backend) EndMatch(victory *core.VictoryResult) error {
	err := b.sendEnvelopeAndWait(streaming.TypeEndMatch, streaming.EndMatchPayload{
		MatchID: uint(b.matchID.Load()),
		Victory: victory,
	})

	// Clear cached state regardless of error.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()
	b.matchID.Store(0)

	return err
}

func (b *Backend) AddCombatant(r *core.CombatantRecord) error {
	return b.sendEnvelope(streaming.TypeAddCombatant, r)
}

func (b *Backend) AddZone(z *core.ZoneRecord) error {
	return b.sendEnvelope(streaming.TypeAddZone, z)
}

func (b *Backend) RecordCombatantState(s *core.CombatantState) error {
	return b.sendEnvelope(streaming.TypeCombatantState, s)
}

func (b *Backend) RecordZoneState(s *core.ZoneState) error {
	return b.sendEnvelope(streaming.TypeZoneState, s)
}

func (b *Backend) RecordKillEvent(e *core.KillEvent) error {
	return b.sendEnvelope(streaming.TypeKillEvent, e)
}

func (b *Backend) RecordCaptureEvent(e *core.CaptureEvent) error {
	return b.sendEnvelope(streaming.TypeCaptureEvent, e)
}

func (b *Backend) RecordTicketSample(s *core.TicketSample) error {
	return b.sendEnvelope(streaming.TypeTicketSample, s)
}

func (b *Backend) RecordMaterializationEvent(e *core.MaterializationEvent) error {
	return b.sendEnvelope(streaming.TypeMaterializationEvent, e)
}

func (b *Backend) RecordPhaseChange(e *core.PhaseChangeEvent) error {
	return b.sendEnvelope(streaming.TypePhaseChange, e)
}

func (b *Backend) RecordDirectorStats(s *core.DirectorStats) error {
	return b.sendEnvelope(streaming.TypeDirectorStats, s)
}
