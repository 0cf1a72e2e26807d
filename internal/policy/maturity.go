package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"swarmcore/internal/logging"
)

// MaturityThresholds configures the pattern maturity state machine.
type MaturityThresholds struct {
	MinFeedback          int     // below this decayed total, state stays candidate
	MinHelpful           float64 // decayed helpful needed for proven
	MaxHarmfulRatio      float64 // decayed harmful/total ceiling for proven
	DeprecationThreshold float64 // decayed harmful/total floor for deprecated

	MinInversionObservations int     // raw (non-decayed) observation floor for inversion
	InversionFailureRate     float64 // raw failure-rate floor for inversion
}

// DefaultMaturityThresholds returns the default threshold values.
func DefaultMaturityThresholds() MaturityThresholds {
	return MaturityThresholds{
		MinFeedback: 3, MinHelpful: 5, MaxHarmfulRatio: 0.15, DeprecationThreshold: 0.30,
		MinInversionObservations: 3, InversionFailureRate: 0.60,
	}
}

// PatternEngine tracks decomposition pattern maturity and emits automatic
// anti-pattern inversions.
type PatternEngine struct {
	store      Store
	halfLife   time.Duration
	thresholds MaturityThresholds
}

// NewPatternEngine constructs a PatternEngine backed by store.
func NewPatternEngine(store Store, halfLife time.Duration, thresholds MaturityThresholds) *PatternEngine {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &PatternEngine{store: store, halfLife: halfLife, thresholds: thresholds}
}

// decayedCounts decays a pattern's running helpful/harmful totals. Only
// aggregate counts are tracked, not per-observation timestamps, so both
// totals are decayed as a whole using the time since the pattern's last
// update as the age.
func (e *PatternEngine) decayedCounts(p *Pattern, now time.Time) (helpful, harmful float64) {
	age := now.Sub(p.UpdatedAt)
	helpful = decayedWeight(float64(p.SuccessCount), age, e.halfLife)
	harmful = decayedWeight(float64(p.FailureCount), age, e.halfLife)
	return
}

// EnsurePattern returns the pattern stored under id, creating it with kind
// KindPattern and the given content if it does not yet exist. Callers that
// record observations against a pattern id they mint themselves (rather
// than one submitted through mandate voting) use this first so
// RecordObservation always has something to record against.
func (e *PatternEngine) EnsurePattern(ctx context.Context, id, content string) (*Pattern, error) {
	existing, err := e.store.GetPattern(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	now := time.Now()
	p := &Pattern{ID: id, Content: content, Kind: KindPattern, CreatedAt: now, UpdatedAt: now}
	if err := e.store.StorePattern(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RecordObservation records a helpful/harmful observation against pattern,
// re-evaluates its maturity, and returns the updated maturity record plus
// an InversionResult if the automatic anti-pattern threshold is crossed.
func (e *PatternEngine) RecordObservation(ctx context.Context, patternID string, helpful bool, exampleCellID string) (*PatternMaturity, *InversionResult, error) {
	pattern, err := e.store.GetPattern(ctx, patternID)
	if err != nil {
		return nil, nil, err
	}
	if pattern == nil {
		return nil, nil, fmt.Errorf("pattern %s not found", patternID)
	}

	if helpful {
		pattern.SuccessCount++
	} else {
		pattern.FailureCount++
	}
	if exampleCellID != "" {
		pattern.ExampleCells = append(pattern.ExampleCells, exampleCellID)
		if len(pattern.ExampleCells) > maxExampleCells {
			pattern.ExampleCells = pattern.ExampleCells[len(pattern.ExampleCells)-maxExampleCells:]
		}
	}
	pattern.UpdatedAt = time.Now()
	if err := e.store.StorePattern(ctx, pattern); err != nil {
		return nil, nil, err
	}

	maturity, err := e.evaluate(ctx, pattern)
	if err != nil {
		return nil, nil, err
	}

	var inversion *InversionResult
	if pattern.Kind == KindPattern && e.shouldInvertPattern(pattern) {
		inversion, err = e.invert(ctx, pattern)
		if err != nil {
			return maturity, nil, err
		}
	}
	return maturity, inversion, nil
}

func (e *PatternEngine) evaluate(ctx context.Context, p *Pattern) (*PatternMaturity, error) {
	maturity, err := e.store.GetMaturity(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if maturity == nil {
		maturity = &PatternMaturity{PatternID: p.ID, State: StateCandidate}
	}

	now := time.Now()
	helpful, harmful := e.decayedCounts(p, now)
	total := helpful + harmful
	maturity.HelpfulCount = int(helpful)
	maturity.HarmfulCount = int(harmful)
	maturity.LastValidated = now

	var harmfulRatio float64
	if total > 0 {
		harmfulRatio = harmful / total
	}

	// Counts updated moments ago have decayed by a negligible amount;
	// compare with a small tolerance so they meet integer thresholds.
	const eps = 1e-9
	newState := StateCandidate
	switch {
	case total < float64(e.thresholds.MinFeedback)-eps:
		newState = StateCandidate
	case harmfulRatio >= e.thresholds.DeprecationThreshold:
		newState = StateDeprecated
	case helpful >= e.thresholds.MinHelpful-eps && harmfulRatio <= e.thresholds.MaxHarmfulRatio:
		newState = StateProven
	default:
		newState = StateEstablished
	}

	if newState != maturity.State {
		logging.Policy("pattern %s maturity transitioned %s -> %s", p.ID, maturity.State, newState)
	}

	if newState == StateProven && maturity.PromotedAt == nil {
		t := now
		maturity.PromotedAt = &t
	}
	if newState == StateDeprecated && maturity.DeprecatedAt == nil {
		t := now
		maturity.DeprecatedAt = &t
	}
	maturity.State = newState

	if err := e.store.StoreMaturity(ctx, maturity); err != nil {
		return nil, err
	}
	return maturity, nil
}

// shouldInvertPattern reports whether p (raw, non-decayed counts) has
// crossed the automatic anti-pattern inversion threshold. A pattern already
// of kind anti_pattern never inverts again.
func (e *PatternEngine) shouldInvertPattern(p *Pattern) bool {
	if p.Kind == KindAntiPattern {
		return false
	}
	total := p.SuccessCount + p.FailureCount
	if total < e.thresholds.MinInversionObservations {
		return false
	}
	failureRate := float64(p.FailureCount) / float64(total)
	return failureRate >= e.thresholds.InversionFailureRate
}

var avoidPrefixes = []string{"AVOID:", "DO NOT:", "NEVER:"}

// invert derives a non-destructive anti_pattern-kind copy of p, prefixing
// its content with "AVOID:" (after stripping any pre-existing negative
// directive prefix) and recording the failure statistics as the reason.
func (e *PatternEngine) invert(ctx context.Context, p *Pattern) (*InversionResult, error) {
	content := strings.TrimSpace(p.Content)
	for _, prefix := range avoidPrefixes {
		if strings.HasPrefix(content, prefix) {
			content = strings.TrimSpace(strings.TrimPrefix(content, prefix))
			break
		}
	}
	content = "AVOID: " + content

	total := p.SuccessCount + p.FailureCount
	failureRate := float64(p.FailureCount) / float64(total)

	anti := &Pattern{
		ID:           "anti-" + p.ID,
		Content:      content,
		Kind:         KindAntiPattern,
		IsNegative:   true,
		SuccessCount: p.SuccessCount,
		FailureCount: p.FailureCount,
		Tags:         append([]string(nil), p.Tags...),
		ExampleCells: append([]string(nil), p.ExampleCells...),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		Reason:       fmt.Sprintf("%d/%d (%.0f%%)", p.FailureCount, total, failureRate*100),
	}
	if err := e.store.StorePattern(ctx, anti); err != nil {
		return nil, err
	}
	logging.Policy("pattern %s inverted to anti-pattern %s: %s", p.ID, anti.ID, anti.Reason)
	return &InversionResult{Original: p, Inverted: anti}, nil
}
