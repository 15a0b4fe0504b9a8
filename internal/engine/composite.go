package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/t77yq/rpm-engine/internal/model"
	"github.com/t77yq/rpm-engine/internal/rules"
)

type conditionResult struct {
	met      bool
	evidence map[string]interface{}
}

// evaluateComposite scores every condition independently and fires when at
// least MinConditionsMet of them hold. A condition without enough data counts
// as not met rather than skipping the rule.
func (e *Engine) evaluateComposite(ctx context.Context, p *pass, rule model.CompositeRule) (*model.PendingAlert, error) {
	evidence := model.Evidence{}
	var metLabels []string

	for i, cond := range rule.Conditions {
		var (
			res conditionResult
			err error
		)
		if o, ok := rules.ConditionOverride(rule.ID, i); ok && o == rules.OverrideMissedMedications {
			res, err = e.missedMedications(ctx, p)
		} else {
			res, err = e.deltaCondition(ctx, p, cond)
		}
		if err != nil {
			return nil, fmt.Errorf("condition %s: %w", cond.Key, err)
		}
		if !res.met {
			continue
		}
		metLabels = append(metLabels, cond.Label)
		evidence[cond.Key] = res.evidence
	}

	if len(metLabels) < rule.MinConditionsMet {
		return nil, nil
	}

	evidence[rules.EvidenceConditionsMet] = len(metLabels)
	evidence[rules.EvidenceConditionsTotal] = len(rule.Conditions)

	return &model.PendingAlert{
		PatientID:   p.patientID,
		Severity:    rule.Severity,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Title:       fmt.Sprintf("%s: %d/%d conditions met", rule.Name, len(metLabels), len(rule.Conditions)),
		Description: strings.Join(metLabels, "; "),
		Evidence:    evidence,
	}, nil
}

// deltaCondition holds when latest minus the earliest reading of the lookback
// window satisfies the condition's operator
func (e *Engine) deltaCondition(ctx context.Context, p *pass, cond model.Condition) (conditionResult, error) {
	latest, err := p.reads.Latest(ctx, cond.VitalType)
	if err != nil {
		return conditionResult{}, fmt.Errorf("failed to get latest %s: %w", cond.VitalType, err)
	}
	baseline, err := p.reads.EarliestSince(ctx, cond.VitalType, cond.Lookback())
	if err != nil {
		return conditionResult{}, fmt.Errorf("failed to get %s baseline: %w", cond.VitalType, err)
	}
	if latest == nil || baseline == nil {
		return conditionResult{}, nil
	}

	delta := latest.Value - baseline.Value
	if !cond.Operator.Holds(delta, cond.Value) {
		return conditionResult{}, nil
	}
	return conditionResult{
		met: true,
		evidence: map[string]interface{}{
			"vital_type":    string(cond.VitalType),
			"delta":         round2(delta),
			"change":        formatSigned(delta),
			"unit":          latest.Unit,
			"baseline":      baseline.Value,
			"latest":        latest.Value,
			"lookback_days": cond.Lookback(),
		},
	}, nil
}

func (e *Engine) missedMedications(ctx context.Context, p *pass) (conditionResult, error) {
	n, err := p.reads.MissedMedicationCount(ctx, rules.MissedDoseLookbackDays)
	if err != nil {
		return conditionResult{}, fmt.Errorf("failed to count missed medications: %w", err)
	}
	if n < rules.MissedDoseThreshold {
		return conditionResult{}, nil
	}
	return conditionResult{
		met: true,
		evidence: map[string]interface{}{
			"missed_doses":  n,
			"lookback_days": rules.MissedDoseLookbackDays,
		},
	}, nil
}
