package engine

import (
	"context"
	"fmt"

	"github.com/t77yq/rpm-engine/internal/model"
	"github.com/t77yq/rpm-engine/internal/rules"
)

// evaluateThreshold compares the latest reading against the rule's bounds in
// declaration order; the first satisfied bound decides the severity.
func (e *Engine) evaluateThreshold(ctx context.Context, p *pass, rule model.ThresholdRule) (*model.PendingAlert, error) {
	if o, ok := rules.ThresholdOverride(rule.ID); ok && o == rules.OverrideDailyDelta {
		return e.evaluateDailyDelta(ctx, p, rule)
	}

	latest, err := p.reads.Latest(ctx, rule.VitalType)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest %s: %w", rule.VitalType, err)
	}
	if latest == nil {
		e.skipped(p, rule, "no reading")
		return nil, nil
	}

	for _, bound := range rule.Bounds {
		if !bound.Operator.Holds(latest.Value, bound.Value) {
			continue
		}
		evidence := model.Evidence{
			"vital_type":  string(rule.VitalType),
			"value":       latest.Value,
			"unit":        latest.Unit,
			"recorded_at": latest.RecordedAt,
			"operator":    string(bound.Operator),
			"threshold":   bound.Value,
		}
		return &model.PendingAlert{
			PatientID: p.patientID,
			Severity:  bound.Severity,
			RuleID:    rule.ID,
			RuleName:  rule.Name,
			Title:     bound.Label,
			Description: fmt.Sprintf("%s of %s is %s %s",
				rule.VitalType.DisplayName(),
				withUnit(latest.Value, latest.Unit),
				operatorPhrase(bound.Operator),
				withUnit(bound.Value, latest.Unit)),
			Evidence: evidence,
		}, nil
	}
	return nil, nil
}

// evaluateDailyDelta treats the single bound as a change over the last day:
// latest minus the earliest reading of the window. Without a baseline the rule
// does not fire.
func (e *Engine) evaluateDailyDelta(ctx context.Context, p *pass, rule model.ThresholdRule) (*model.PendingAlert, error) {
	latest, err := p.reads.Latest(ctx, rule.VitalType)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest %s: %w", rule.VitalType, err)
	}
	if latest == nil {
		e.skipped(p, rule, "no reading")
		return nil, nil
	}

	baseline, err := p.reads.EarliestSince(ctx, rule.VitalType, rules.DailyDeltaLookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s baseline: %w", rule.VitalType, err)
	}
	if baseline == nil {
		e.skipped(p, rule, "no baseline in lookback window")
		return nil, nil
	}

	delta := latest.Value - baseline.Value
	bound := rule.Bounds[0]
	if !bound.Operator.Holds(delta, bound.Value) {
		return nil, nil
	}

	return &model.PendingAlert{
		PatientID: p.patientID,
		Severity:  bound.Severity,
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Title:     bound.Label,
		Description: fmt.Sprintf("%s changed by %s in %d day(s) (%s to %s)",
			rule.VitalType.DisplayName(),
			withUnit(delta, latest.Unit),
			rules.DailyDeltaLookbackDays,
			withUnit(baseline.Value, baseline.Unit),
			withUnit(latest.Value, latest.Unit)),
		Evidence: model.Evidence{
			"vital_type":    string(rule.VitalType),
			"delta":         round2(delta),
			"unit":          latest.Unit,
			"lookback_days": rules.DailyDeltaLookbackDays,
			"operator":      string(bound.Operator),
			"threshold":     bound.Value,
			"baseline":      readingEvidence(*baseline),
			"latest":        readingEvidence(*latest),
		},
	}, nil
}
