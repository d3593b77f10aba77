package funnels

import (
	"context"
	"fmt"
	"strings"

	"veilytics/internal/events"
	"veilytics/internal/query"
	"veilytics/internal/rollup"
)

// StepResult is the per-step outcome of a funnel evaluation.
type StepResult struct {
	Index          int     `json:"index"`
	Label          string  `json:"label"`
	Sessions       int64   `json:"sessions"`
	ConversionRate float64 `json:"conversionRate"`
}

// Evaluator matches session activity from stored rollups against funnel
// definitions.
type Evaluator struct {
	engine *query.Engine
}

func NewEvaluator(engine *query.Engine) *Evaluator {
	return &Evaluator{engine: engine}
}

// Evaluate scans every session observed in the period once. Per session it
// runs a small state machine: state is the last matched step index, and the
// machine advances whenever the next event in timestamp order satisfies the
// following step's predicate. Unrelated events in between are skipped, not
// disqualifying. The result counts, for each step, the sessions whose
// highest reached index is at least that step; conversion rates are relative
// to step 0.
func (e *Evaluator) Evaluate(ctx context.Context, funnel *Funnel, period query.Period) ([]StepResult, error) {
	steps, err := funnel.Steps()
	if err != nil {
		return nil, err
	}

	merged, err := e.engine.MergedRollup(ctx, funnel.SiteID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions for funnel: %w", err)
	}

	reached := make([]int64, len(steps))
	for _, trace := range merged.Sessions {
		highest := highestStepReached(steps, trace)
		for i := 0; i <= highest; i++ {
			reached[i]++
		}
	}

	results := make([]StepResult, len(steps))
	for i, step := range steps {
		label := step.Label
		if label == "" {
			label = step.Match
		}
		results[i] = StepResult{Index: i, Label: label, Sessions: reached[i]}
		if reached[0] > 0 {
			results[i].ConversionRate = float64(reached[i]) / float64(reached[0]) * 100
		}
	}
	return results, nil
}

// highestStepReached returns the highest contiguous step index the session
// satisfied in order, or -1 when it never matched step 0. Trace steps are
// already sorted by timestamp.
func highestStepReached(steps []Step, trace *rollup.SessionTrace) int {
	state := -1
	for _, ev := range trace.Steps {
		if state+1 >= len(steps) {
			break
		}
		if stepMatches(steps[state+1], ev) {
			state++
		}
	}
	return state
}

func stepMatches(step Step, ev rollup.Step) bool {
	switch step.Type {
	case StepPage:
		if ev.Kind != events.KindPageview {
			return false
		}
		if strings.HasSuffix(step.Match, "/*") {
			return strings.HasPrefix(ev.Path, strings.TrimSuffix(step.Match, "*"))
		}
		return ev.Path == step.Match
	case StepEvent:
		return ev.Kind == events.KindCustom && ev.Name == step.Match
	}
	return false
}
