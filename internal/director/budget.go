package director

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/warfront/simcore/internal/config"
	"github.com/warfront/simcore/pkg/core"
)

// Budget enforces the per-tick compute allowances: a raycast pool and tiered
// AI update slots. Excess demand is denied and counted, never queued and
// never an error. Counters reset at the top of each tick; OTel counters
// accumulate across the match (no-op unless a meter provider is installed).
type Budget struct {
	raycastsPerTick int
	aiHighPerTick   int
	aiMediumPerTick int
	aiTimeBudget    float64
	severeMult      float64

	raycastsUsed   uint32
	raycastsDenied uint32
	aiHigh         uint32
	aiMedium       uint32
	aiDeferred     uint32
	elapsed        float64
	exceeded       bool
	severe         bool

	denied   metric.Int64Counter
	deferred metric.Int64Counter
	overruns metric.Int64Counter
}

// NewBudget builds the scheduler from configuration.
func NewBudget(cfg config.BudgetConfig) (*Budget, error) {
	b := &Budget{
		raycastsPerTick: cfg.RaycastsPerTick,
		aiHighPerTick:   cfg.AIHighPerTick,
		aiMediumPerTick: cfg.AIMediumPerTick,
		aiTimeBudget:    cfg.AITimeBudget,
		severeMult:      cfg.SevereMultiplier,
	}

	m := meter()
	var err error

	b.denied, err = m.Int64Counter(
		"director.raycasts.denied",
		metric.WithDescription("Raycast requests denied by the per-tick budget"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating raycast denial counter: %w", err)
	}

	b.deferred, err = m.Int64Counter(
		"director.ai.deferred",
		metric.WithDescription("AI updates deferred to a later tick"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating AI deferral counter: %w", err)
	}

	b.overruns, err = m.Int64Counter(
		"director.ai.overruns",
		metric.WithDescription("Ticks whose AI work exceeded the time budget"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating overrun counter: %w", err)
	}

	return b, nil
}

// BeginTick resets the per-tick counters.
func (b *Budget) BeginTick() {
	b.raycastsUsed = 0
	b.raycastsDenied = 0
	b.aiHigh = 0
	b.aiMedium = 0
	b.aiDeferred = 0
	b.elapsed = 0
	b.exceeded = false
	b.severe = false
}

// RequestRaycast claims one line-of-sight ray. A denial means the caller
// skips the check this tick; it is never retried within the tick.
func (b *Budget) RequestRaycast() bool {
	if int(b.raycastsUsed) >= b.raycastsPerTick {
		b.raycastsDenied++
		b.denied.Add(context.Background(), 1)
		return false
	}
	b.raycastsUsed++
	return true
}

// RequestAIHigh claims a high-priority full update slot.
func (b *Budget) RequestAIHigh() bool {
	if int(b.aiHigh) >= b.aiHighPerTick {
		b.aiDeferred++
		b.deferred.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("tier", "high")))
		return false
	}
	b.aiHigh++
	return true
}

// RequestAIMedium claims a medium-priority update slot.
func (b *Budget) RequestAIMedium() bool {
	if int(b.aiMedium) >= b.aiMediumPerTick {
		b.aiDeferred++
		b.deferred.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("tier", "medium")))
		return false
	}
	b.aiMedium++
	return true
}

// ObserveAITime records the seconds of AI/director work the tick actually
// took. Overruns are diagnostic counters, not errors, and never abort the
// tick.
func (b *Budget) ObserveAITime(seconds float64) {
	b.elapsed = seconds
	if b.aiTimeBudget <= 0 || seconds <= b.aiTimeBudget {
		return
	}
	b.exceeded = true
	b.severe = seconds > b.aiTimeBudget*b.severeMult
	b.overruns.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("severe", b.severe)))
}

// Report returns the tick's budget counters for the tick result.
func (b *Budget) Report() core.BudgetReport {
	return core.BudgetReport{
		RaycastsUsed:    b.raycastsUsed,
		RaycastsDenied:  b.raycastsDenied,
		AIHighRuns:      b.aiHigh,
		AIMediumRuns:    b.aiMedium,
		AIDeferred:      b.aiDeferred,
		BudgetExceeded:  b.exceeded,
		SevereOverrun:   b.severe,
		DirectorElapsed: b.elapsed,
	}
}
