package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ActiveAlertChecker reports whether a non-terminal alert already exists for a
// patient and rule.
type ActiveAlertChecker interface {
	HasActiveAlert(ctx context.Context, patientID, ruleID string) (bool, error)
}

// gate is the deduplication check every family runs before touching a rule.
// It is advisory: two concurrent passes for the same patient may both pass it.
type gate struct {
	checker ActiveAlertChecker
	logger  *zap.Logger
}

// suppressed reports whether the rule must be skipped for the patient
func (g gate) suppressed(ctx context.Context, patientID, ruleID string) (bool, error) {
	active, err := g.checker.HasActiveAlert(ctx, patientID, ruleID)
	if err != nil {
		return false, fmt.Errorf("failed to check active alerts: %w", err)
	}
	if active {
		g.logger.Debug("Rule suppressed by active alert",
			zap.String("patient_id", patientID),
			zap.String("rule_id", ruleID))
	}
	return active, nil
}
