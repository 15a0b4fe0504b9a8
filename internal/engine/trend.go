package engine

import (
	"context"
	"fmt"

	"github.com/t77yq/rpm-engine/internal/model"
)

// evaluateTrend fires when the last ConsecutiveCount readings are strictly
// monotonic in the rule's direction. A tie or a single reversal anywhere in the
// window suppresses the alert.
func (e *Engine) evaluateTrend(ctx context.Context, p *pass, rule model.TrendRule) (*model.PendingAlert, error) {
	recent, err := p.reads.Recent(ctx, rule.VitalType, rule.ConsecutiveCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent %s: %w", rule.VitalType, err)
	}
	if len(recent) < rule.ConsecutiveCount {
		e.skipped(p, rule, fmt.Sprintf("%d of %d readings", len(recent), rule.ConsecutiveCount))
		return nil, nil
	}

	// recent is newest first
	chronological := make([]model.VitalReading, rule.ConsecutiveCount)
	for i := range chronological {
		chronological[i] = recent[rule.ConsecutiveCount-1-i]
	}

	if !strictlyMonotonic(chronological, rule.Direction) {
		return nil, nil
	}

	first := chronological[0]
	last := chronological[len(chronological)-1]

	readings := make([]map[string]interface{}, 0, len(chronological))
	for _, r := range chronological {
		readings = append(readings, readingEvidence(r))
	}

	verb := "rose"
	if rule.Direction == model.DirectionFalling {
		verb = "fell"
	}

	return &model.PendingAlert{
		PatientID: p.patientID,
		Severity:  rule.Severity,
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Title:     rule.Name,
		Description: fmt.Sprintf("%s %s across %d consecutive readings, from %s to %s",
			rule.VitalType.DisplayName(),
			verb,
			len(chronological),
			withUnit(first.Value, first.Unit),
			withUnit(last.Value, last.Unit)),
		Evidence: model.Evidence{
			"vital_type":  string(rule.VitalType),
			"direction":   string(rule.Direction),
			"count":       len(chronological),
			"first_value": first.Value,
			"last_value":  last.Value,
			"unit":        last.Unit,
			"readings":    readings,
		},
	}, nil
}

func strictlyMonotonic(readings []model.VitalReading, direction model.Direction) bool {
	for i := 1; i < len(readings); i++ {
		prev, cur := readings[i-1].Value, readings[i].Value
		switch direction {
		case model.DirectionRising:
			if !(cur > prev) {
				return false
			}
		case model.DirectionFalling:
			if !(cur < prev) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
