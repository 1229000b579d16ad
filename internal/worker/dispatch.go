package worker

import (
	"fmt"
	"time"

	"github.com/warfront/simcore/internal/dispatcher"
	"github.com/warfront/simcore/internal/model"
	"github.com/warfront/simcore/pkg/core"
)

// Dispatcher topics. Registration topics are handled synchronously so the
// caches are populated before any state referencing the entity arrives.
const (
	topicNewCombatant   = ":NEW:COMBATANT:"
	topicNewZone        = ":NEW:ZONE:"
	topicCombatantState = ":COMBATANT:STATE:"
	topicZoneState      = ":ZONE:STATE:"
	topicKill           = ":KILL:"
	topicCapture        = ":CAPTURE:"
	topicTickets        = ":TICKETS:"
	topicMaterialize    = ":MATERIALIZE:"
	topicPhase          = ":PHASE:"
	topicDirector       = ":DIRECTOR:"
)

// RegisterHandlers registers all event handlers with the dispatcher and
// keeps a reference to it for the Publish helpers.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	m.dispatcher = d

	// Entity registration - sync (need to cache before states arrive)
	d.Register(topicNewCombatant, m.handleNewCombatant, dispatcher.Logged())
	d.Register(topicNewZone, m.handleNewZone, dispatcher.Logged())

	// High-volume state updates - buffered
	d.Register(topicCombatantState, m.handleCombatantState, dispatcher.Buffered(10000), dispatcher.Logged())
	d.Register(topicZoneState, m.handleZoneState, dispatcher.Buffered(2000), dispatcher.Logged())

	// Combat events - buffered, blocking. State samples can be dropped under
	// pressure, a lost kill or capture falsifies the after-action record.
	d.Register(topicKill, m.handleKillEvent, dispatcher.Buffered(2000), dispatcher.Blocking(), dispatcher.Logged())
	d.Register(topicCapture, m.handleCaptureEvent, dispatcher.Buffered(500), dispatcher.Blocking(), dispatcher.Logged())

	// Ledger and director telemetry - buffered
	d.Register(topicTickets, m.handleTicketSample, dispatcher.Buffered(1000), dispatcher.Logged())
	d.Register(topicMaterialize, m.handleMaterializationEvent, dispatcher.Buffered(2000), dispatcher.Logged())
	d.Register(topicPhase, m.handlePhaseChange, dispatcher.Buffered(100), dispatcher.Logged())
	d.Register(topicDirector, m.handleDirectorStats, dispatcher.Buffered(500), dispatcher.Logged())
}

func (m *Manager) handleNewCombatant(e dispatcher.Event) (any, error) {
	rec, ok := e.Payload.(*core.CombatantRecord)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, topicNewCombatant)
	}

	// Always cache for state handler lookups
	m.deps.CombatantCache.Add(*rec)

	if err := m.backend.AddCombatant(rec); err != nil {
		return nil, fmt.Errorf("failed to register combatant %d: %w", rec.SimID, err)
	}
	return nil, nil
}

func (m *Manager) handleNewZone(e dispatcher.Event) (any, error) {
	rec, ok := e.Payload.(*core.ZoneRecord)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, topicNewZone)
	}

	// Mark the zone as known before the backend runs; a DB backend
	// overwrites the row id once the insert lands.
	m.deps.ZoneCache.Set(rec.SimID, 0)

	if err := m.backend.AddZone(rec); err != nil {
		return nil, fmt.Errorf("failed to register zone %s: %w", rec.SimID, err)
	}
	return nil, nil
}

func (m *Manager) handleCombatantState(e dispatcher.Event) (any, error) {
	s, ok := e.Payload.(*core.CombatantState)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, topicCombatantState)
	}

	// Validate the combatant exists; fill squad from the registration
	// record when the sampler left it empty
	rec, ok := m.deps.CombatantCache.Get(s.SimID)
	if !ok {
		return nil, ErrTooEarlyForStateAssociation
	}
	if s.Squad == 0 {
		s.Squad = rec.Squad
	}

	if err := m.backend.RecordCombatantState(s); err != nil {
		return nil, fmt.Errorf("failed to record combatant state: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleZoneState(e dispatcher.Event) (any, error) {
	s, ok := e.Payload.(*core.ZoneState)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, topicZoneState)
	}

	if _, ok := m.deps.ZoneCache.Get(s.SimID); !ok {
		return nil, ErrTooEarlyForStateAssociation
	}

	if err := m.backend.RecordZoneState(s); err != nil {
		return nil, fmt.Errorf("failed to record zone state: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleKillEvent(e dispatcher.Event) (any, error) {
	ev, ok := e.Payload.(*core.KillEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, topicKill)
	}
	if err := m.backend.RecordKillEvent(ev); err != nil {
		return nil, fmt.Errorf("failed to record kill event: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleCaptureEvent(e dispatcher.Event) (any, error) {
	ev, ok := e.Payload.(*core.CaptureEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, topicCapture)
	}
	if err := m.backend.RecordCaptureEvent(ev); err != nil {
		return nil, fmt.Errorf("failed to record capture event: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleTicketSample(e dispatcher.Event) (any, error) {
	s, ok := e.Payload.(*core.TicketSample)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, topicTickets)
	}
	if err := m.backend.RecordTicketSample(s); err != nil {
		return nil, fmt.Errorf("failed to record ticket sample: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleMaterializationEvent(e dispatcher.Event) (any, error) {
	ev, ok := e.Payload.(*core.MaterializationEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, topicMaterialize)
	}
	if err := m.backend.RecordMaterializationEvent(ev); err != nil {
		return nil, fmt.Errorf("failed to record materialization event: %w", err)
	}
	return nil, nil
}

func (m *Manager) handlePhaseChange(e dispatcher.Event) (any, error) {
	ev, ok := e.Payload.(*core.PhaseChangeEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, topicPhase)
	}
	if err := m.backend.RecordPhaseChange(ev); err != nil {
		return nil, fmt.Errorf("failed to record phase change: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleDirectorStats(e dispatcher.Event) (any, error) {
	s, ok := e.Payload.(*core.DirectorStats)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, topicDirector)
	}
	if err := m.backend.RecordDirectorStats(s); err != nil {
		return nil, fmt.Errorf("failed to record director stats: %w", err)
	}
	return nil, nil
}

// publish dispatches one event, logging failures instead of propagating
// them: a dropped sample must not abort the tick that produced it.
func (m *Manager) publish(topic string, payload any) {
	if m.dispatcher == nil {
		return
	}

	_, err := m.dispatcher.Dispatch(dispatcher.Event{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		m.dropped.Inc()
		m.deps.LogManager.WriteLog(topic, err.Error(), "WARN")
	}
}

// PublishTickResult fans one tick's output onto the dispatcher topics.
// Spawns go first so the registrations land before anything that
// references them.
func (m *Manager) PublishTickResult(res *core.TickResult) {
	if res == nil {
		return
	}

	for i := range res.Spawns {
		m.publish(topicNewCombatant, &res.Spawns[i])
	}
	for i := range res.Kills {
		m.publish(topicKill, &res.Kills[i])
	}
	for i := range res.Captures {
		m.publish(topicCapture, &res.Captures[i])
	}
	for i := range res.Transitions {
		m.publish(topicMaterialize, &res.Transitions[i])
	}
	for i := range res.PhaseChanges {
		m.publish(topicPhase, &res.PhaseChanges[i])
	}
	if res.Director != nil {
		m.publish(topicDirector, res.Director)
	}
}

// PublishZoneRegistrations registers every zone with the recorder.
// Called once at match start, before any zone states are published.
func (m *Manager) PublishZoneRegistrations(zones []core.ZoneStatus) {
	for _, z := range zones {
		m.publish(topicNewZone, &core.ZoneRecord{
			SimID:    z.Zone,
			Name:     z.Name,
			Position: z.Position,
			Radius:   z.Radius,
			HomeBase: z.HomeBase,
			Owner:    z.Owner,
		})
	}
}

// PublishCombatantStates forwards one recording-cadence snapshot.
func (m *Manager) PublishCombatantStates(states []core.CombatantState) {
	for i := range states {
		m.publish(topicCombatantState, &states[i])
	}
}

// PublishZoneStatuses samples every zone's outbound view as zone states.
func (m *Manager) PublishZoneStatuses(tick uint64, simTime float64, zones []core.ZoneStatus) {
	for _, z := range zones {
		m.publish(topicZoneState, &core.ZoneState{
			SimID:           z.Zone,
			Tick:            tick,
			SimTime:         simTime,
			Owner:           z.Owner,
			State:           z.State,
			Progress:        z.Progress,
			ProgressFaction: z.ProgressFaction,
		})
	}
}

// PublishTicketSample forwards one ticket ledger sample.
func (m *Manager) PublishTicketSample(s core.TicketSample) {
	m.publish(topicTickets, &s)
}

// BufferLengths reports the dispatcher queue depth of each buffered topic.
func (m *Manager) BufferLengths() model.BufferLengths {
	if m.dispatcher == nil {
		return model.BufferLengths{}
	}
	return model.BufferLengths{
		CombatantStates:       uint16(m.dispatcher.QueueLength(topicCombatantState)),
		ZoneStates:            uint16(m.dispatcher.QueueLength(topicZoneState)),
		KillEvents:            uint16(m.dispatcher.QueueLength(topicKill)),
		CaptureEvents:         uint16(m.dispatcher.QueueLength(topicCapture)),
		TicketStates:          uint16(m.dispatcher.QueueLength(topicTickets)),
		MaterializationEvents: uint16(m.dispatcher.QueueLength(topicMaterialize)),
		PhaseChanges:          uint16(m.dispatcher.QueueLength(topicPhase)),
		DirectorStats:         uint16(m.dispatcher.QueueLength(topicDirector)),
	}
}
