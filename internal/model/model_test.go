package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"Map", &Map{}, "maps"},
		{"Match", &Match{}, "matches"},
		{"Combatant", &Combatant{}, "combatants"},
		{"CombatantState", &CombatantState{}, "combatant_states"},
		{"Zone", &Zone{}, "zones"},
		{"ZoneState", &ZoneState{}, "zone_states"},
		{"KillEvent", &KillEvent{}, "kill_events"},
		{"CaptureEvent", &CaptureEvent{}, "capture_events"},
		{"TicketState", &TicketState{}, "ticket_states"},
		{"MaterializationEvent", &MaterializationEvent{}, "materialization_events"},
		{"PhaseChange", &PhaseChange{}, "phase_changes"},
		{"DirectorStat", &DirectorStat{}, "director_stats"},
		{"CorePerformance", &CorePerformance{}, "core_performances"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModels_AllNamed(t *testing.T) {
	// Every migrated model must pin its table name explicitly so the schema
	// survives a change of gorm naming strategy.
	for _, m := range DatabaseModels {
		named, ok := m.(interface{ TableName() string })
		assert.True(t, ok, "%T has no TableName", m)
		if ok {
			assert.NotEmpty(t, named.TableName())
		}
	}
}
