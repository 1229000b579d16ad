package combatant

import (
	"github.com/warfront/simcore/pkg/core"
)

// Factory builds combatant records. It carries construction defaults only;
// id allocation and ownership live in the Population.
type Factory struct {
	defaultHealth int
	damageLimit   int
}

// NewFactory creates a factory with the configured default health and damage
// history bound.
func NewFactory(defaultHealth, damageLimit int) *Factory {
	return &Factory{
		defaultHealth: defaultHealth,
		damageLimit:   damageLimit,
	}
}

// Option overrides a default on a newly built combatant.
type Option func(*Combatant)

// WithRole sets the squad role.
func WithRole(role core.Role) Option {
	return func(c *Combatant) { c.Role = role }
}

// WithHealth overrides the starting health.
func WithHealth(health int) Option {
	return func(c *Combatant) { c.Health = health }
}

// WithSquad assigns the combatant to a squad at build time.
func WithSquad(id core.SquadID) Option {
	return func(c *Combatant) { c.Squad = id }
}

// New builds a combatant record for the given faction and position.
func (f *Factory) New(id core.CombatantID, faction core.Faction, pos core.Position3D, opts ...Option) *Combatant {
	c := &Combatant{
		ID:          id,
		Faction:     faction,
		Position:    pos,
		Health:      f.defaultHealth,
		State:       core.LifecycleAlive,
		Role:        core.RoleFollower,
		damageLimit: f.damageLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
