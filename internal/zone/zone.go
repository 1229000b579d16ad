// Package zone implements the capture state machine and the ticket-bleed
// calculation. The transition input is per-faction occupant counts plus
// elapsed time; the machine itself never queries the world.
package zone

import (
	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/pkg/core"
)

// Zone is one contestable (or fixed home-base) map position.
type Zone struct {
	ID           core.ZoneID
	Name         string
	Position     core.Position3D
	Radius       float64
	CaptureSpeed float64
	BleedRate    float64
	HomeBase     bool

	Owner    core.Faction
	State    core.CaptureState
	Progress float64 // 0..100, clamped

	// ProgressFaction says whose capture effort the meter currently holds.
	ProgressFaction core.Faction

	dwellFaction core.Faction
	dwellTime    float64
}

// Occupancy is the per-tick transition input for one zone.
type Occupancy struct {
	CountA int
	CountB int
}

// Manager owns the zone arena. Zones are keyed by their config-authored id
// with O(1) existence checks; iteration is config order.
type Manager struct {
	factionA core.Faction
	factionB core.Faction
	dwell    float64

	zones map[core.ZoneID]*Zone
	order []core.ZoneID
}

// NewManager builds the zone arena from configuration. Config validation has
// already run; owners are guaranteed to be match factions.
func NewManager(factionA, factionB core.Faction, dwellThreshold float64, configs []config.ZoneConfig) *Manager {
	m := &Manager{
		factionA: factionA,
		factionB: factionB,
		dwell:    dwellThreshold,
	}
	m.Reset(configs)
	return m
}

// Reset rebuilds the arena to its config-authored initial state. Used on
// match restart.
func (m *Manager) Reset(configs []config.ZoneConfig) {
	m.zones = make(map[core.ZoneID]*Zone, len(configs))
	m.order = m.order[:0]
	for _, zc := range configs {
		z := &Zone{
			ID:           core.ZoneID(zc.ID),
			Name:         zc.Name,
			Position:     zc.Position,
			Radius:       zc.Radius,
			CaptureSpeed: zc.CaptureSpeed,
			BleedRate:    zc.BleedRate,
			HomeBase:     zc.HomeBase,
			Owner:        core.Faction(zc.Owner),
		}
		if z.Owner != core.FactionNone {
			z.Progress = 100
			z.ProgressFaction = z.Owner
		}
		z.State = m.derivedState(z)
		m.zones[z.ID] = z
		m.order = append(m.order, z.ID)
	}
}

// Get returns a zone by id.
func (m *Manager) Get(id core.ZoneID) (*Zone, bool) {
	z, ok := m.zones[id]
	return z, ok
}

// IDs returns zone ids in config order. The returned slice is shared; callers
// must not mutate it.
func (m *Manager) IDs() []core.ZoneID {
	return m.order
}

// Len returns the number of zones.
func (m *Manager) Len() int {
	return len(m.zones)
}

func (m *Manager) controlledState(f core.Faction) core.CaptureState {
	if f == m.factionA {
		return core.CaptureControlledA
	}
	return core.CaptureControlledB
}

func (m *Manager) derivedState(z *Zone) core.CaptureState {
	if z.Owner != core.FactionNone {
		return m.controlledState(z.Owner)
	}
	return core.CaptureNeutral
}

// Advance runs one tick of the state machine for a single zone and returns
// the ownership changes it produced. Unknown ids are a no-op.
func (m *Manager) Advance(id core.ZoneID, occ Occupancy, dt float64, tick uint64, simTime float64) []core.CaptureEvent {
	z, ok := m.zones[id]
	if !ok {
		return nil
	}
	// Home bases are exempt from all transitions; occupancy is ignored.
	if z.HomeBase {
		return nil
	}

	net := occ.CountA - occ.CountB

	// Equal presence on both sides freezes progress and contests the zone
	// without touching the owner.
	if occ.CountA > 0 && occ.CountB > 0 && net == 0 {
		z.resetDwell()
		z.State = core.CaptureContested
		return nil
	}

	// Empty zone: progress freezes where it is.
	if net == 0 {
		z.resetDwell()
		z.State = m.derivedState(z)
		return nil
	}

	capturing := m.factionA
	strength := net
	if net < 0 {
		capturing = m.factionB
		strength = -net
	}

	// The dwell timer gates first progress: the advantage must hold
	// continuously before any accrual, so a drive-through never captures.
	if z.dwellFaction != capturing {
		z.dwellFaction = capturing
		z.dwellTime = 0
	}
	avail := dt
	if z.dwellTime < m.dwell {
		need := m.dwell - z.dwellTime
		z.dwellTime += dt
		if dt <= need {
			z.State = m.derivedState(z)
			return nil
		}
		avail = dt - need
	}

	events := m.accrue(z, capturing, float64(strength)*z.CaptureSpeed*avail, tick, simTime)
	z.State = m.derivedState(z)
	return events
}

// accrue applies capture effort in progress units. Effort first drains any
// opposing progress, neutralising the owner at zero, then builds the
// capturing faction's own meter within the same tick.
func (m *Manager) accrue(z *Zone, capturing core.Faction, effort float64, tick uint64, simTime float64) []core.CaptureEvent {
	var events []core.CaptureEvent

	if z.ProgressFaction != capturing && z.Progress > 0 {
		if effort < z.Progress {
			z.Progress -= effort
			return nil
		}
		effort -= z.Progress
		z.Progress = 0
		if z.Owner != core.FactionNone {
			events = append(events, core.CaptureEvent{
				Tick:     tick,
				SimTime:  simTime,
				Zone:     z.ID,
				ZoneName: z.Name,
				From:     z.Owner,
				State:    core.CaptureNeutral,
			})
			z.Owner = core.FactionNone
		}
	}

	z.ProgressFaction = capturing
	z.Progress += effort
	if z.Progress >= 100 {
		z.Progress = 100
		if z.Owner != capturing {
			from := z.Owner
			z.Owner = capturing
			events = append(events, core.CaptureEvent{
				Tick:     tick,
				SimTime:  simTime,
				Zone:     z.ID,
				ZoneName: z.Name,
				From:     from,
				To:       capturing,
				State:    m.controlledState(capturing),
			})
		}
	}
	return events
}

func (z *Zone) resetDwell() {
	z.dwellFaction = core.FactionNone
	z.dwellTime = 0
}

// BleedRates computes each faction's ticket drain in tickets per second from
// relative zone control. Control is weighted by per-zone bleed rate, so a
// high-value zone is worth more of the 50% line than a minor one. A faction
// below half control bleeds proportionally to its deficit, doubled; total
// enemy control therefore yields exactly maxBleed, and a 50/50 split yields
// zero for both sides.
func (m *Manager) BleedRates(maxBleed float64) (bleedA, bleedB float64) {
	var totalW, weightA, weightB float64
	for _, id := range m.order {
		z := m.zones[id]
		if z.HomeBase {
			continue
		}
		totalW += z.BleedRate
		switch z.Owner {
		case m.factionA:
			weightA += z.BleedRate
		case m.factionB:
			weightB += z.BleedRate
		}
	}
	if totalW == 0 {
		return 0, 0
	}

	ratioA := weightA / totalW
	ratioB := weightB / totalW
	if ratioA < 0.5 {
		bleedA = 2 * (0.5 - ratioA) * maxBleed
	}
	if ratioB < 0.5 {
		bleedB = 2 * (0.5 - ratioB) * maxBleed
	}
	return bleedA, bleedB
}

// ControlledCount returns how many non-home zones a faction owns, for the
// all-zones victory check.
func (m *Manager) ControlledCount(f core.Faction) int {
	n := 0
	for _, id := range m.order {
		z := m.zones[id]
		if !z.HomeBase && z.Owner == f {
			n++
		}
	}
	return n
}

// ContestableCount returns the number of non-home zones.
func (m *Manager) ContestableCount() int {
	n := 0
	for _, id := range m.order {
		if !m.zones[id].HomeBase {
			n++
		}
	}
	return n
}

// Statuses returns the outbound view of every zone in config order.
func (m *Manager) Statuses() []core.ZoneStatus {
	out := make([]core.ZoneStatus, 0, len(m.order))
	for _, id := range m.order {
		z := m.zones[id]
		out = append(out, core.ZoneStatus{
			Zone:            z.ID,
			Name:            z.Name,
			Position:        z.Position,
			Radius:          z.Radius,
			Owner:           z.Owner,
			State:           z.State,
			Progress:        z.Progress,
			ProgressFaction: z.ProgressFaction,
			HomeBase:        z.HomeBase,
		})
	}
	return out
}
