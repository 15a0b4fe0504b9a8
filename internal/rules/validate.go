package rules

import (
	"fmt"

	"github.com/t77yq/rpm-engine/internal/model"
)

const (
	// MaxLookbackDays caps composite condition windows
	MaxLookbackDays = 365

	// EvidenceConditionsMet and EvidenceConditionsTotal are written next to
	// the condition keys in composite alert evidence
	EvidenceConditionsMet   = "conditions_met"
	EvidenceConditionsTotal = "conditions_total"
)

// Validate checks a rule set once at load time so that evaluation never has
// to deal with malformed definitions.
func Validate(set model.RuleSet) error {
	seen := make(map[string]struct{})
	for _, r := range set.All() {
		if r.RuleID() == "" {
			return fmt.Errorf("%w: %s rule without id", ErrInvalidRule, r.Kind())
		}
		if _, dup := seen[r.RuleID()]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, r.RuleID())
		}
		seen[r.RuleID()] = struct{}{}
	}

	for _, r := range set.Threshold {
		if err := validateThreshold(r); err != nil {
			return err
		}
	}
	for _, r := range set.Trend {
		if err := validateTrend(r); err != nil {
			return err
		}
	}
	for _, r := range set.Composite {
		if err := validateComposite(r); err != nil {
			return err
		}
	}
	return validateOverrides(set)
}

// validateOverrides checks that every rule named in the override tables has
// the kind its override needs. A set without such a rule is fine.
func validateOverrides(set model.RuleSet) error {
	for id, o := range thresholdOverrides {
		r, ok := set.Find(id)
		if !ok {
			continue
		}
		if _, ok := r.(model.ThresholdRule); !ok {
			return fmt.Errorf("%w: rule %s: %s override needs a threshold rule, got %s",
				ErrInvalidRule, id, o, r.Kind())
		}
	}

	for id, byIndex := range conditionOverrides {
		r, ok := set.Find(id)
		if !ok {
			continue
		}
		c, ok := r.(model.CompositeRule)
		if !ok {
			return fmt.Errorf("%w: rule %s: condition overrides need a composite rule, got %s",
				ErrInvalidRule, id, r.Kind())
		}
		for i, o := range byIndex {
			if i >= len(c.Conditions) {
				return fmt.Errorf("%w: rule %s: %s override targets condition %d, rule has %d",
					ErrInvalidRule, id, o, i, len(c.Conditions))
			}
		}
	}
	return nil
}

func validateThreshold(r model.ThresholdRule) error {
	if !r.VitalType.Valid() {
		return fmt.Errorf("%w: rule %s: unknown vital type %q", ErrInvalidRule, r.ID, r.VitalType)
	}
	if len(r.Bounds) == 0 {
		return fmt.Errorf("%w: rule %s: no bounds", ErrInvalidRule, r.ID)
	}
	for i, b := range r.Bounds {
		if !b.Operator.Valid() {
			return fmt.Errorf("%w: rule %s: bound %d: unknown operator %q", ErrInvalidRule, r.ID, i, b.Operator)
		}
		if !b.Severity.Valid() {
			return fmt.Errorf("%w: rule %s: bound %d: unknown severity %q", ErrInvalidRule, r.ID, i, b.Severity)
		}
	}

	if o, ok := ThresholdOverride(r.ID); ok {
		switch o {
		case OverrideDailyDelta:
			if len(r.Bounds) != 1 {
				return fmt.Errorf("%w: rule %s: %s override expects exactly one bound, got %d",
					ErrInvalidRule, r.ID, o, len(r.Bounds))
			}
		default:
			return fmt.Errorf("%w: rule %s: override %q does not apply to threshold rules", ErrInvalidRule, r.ID, o)
		}
	}
	return nil
}

func validateTrend(r model.TrendRule) error {
	if !r.VitalType.Valid() {
		return fmt.Errorf("%w: rule %s: unknown vital type %q", ErrInvalidRule, r.ID, r.VitalType)
	}
	if r.ConsecutiveCount < 2 {
		return fmt.Errorf("%w: rule %s: consecutive count must be at least 2, got %d",
			ErrInvalidRule, r.ID, r.ConsecutiveCount)
	}
	if r.Direction != model.DirectionRising && r.Direction != model.DirectionFalling {
		return fmt.Errorf("%w: rule %s: unknown direction %q", ErrInvalidRule, r.ID, r.Direction)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("%w: rule %s: unknown severity %q", ErrInvalidRule, r.ID, r.Severity)
	}
	return nil
}

func validateComposite(r model.CompositeRule) error {
	if len(r.Conditions) == 0 {
		return fmt.Errorf("%w: rule %s: no conditions", ErrInvalidRule, r.ID)
	}
	if r.MinConditionsMet < 1 || r.MinConditionsMet > len(r.Conditions) {
		return fmt.Errorf("%w: rule %s: min conditions met %d outside 1..%d",
			ErrInvalidRule, r.ID, r.MinConditionsMet, len(r.Conditions))
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("%w: rule %s: unknown severity %q", ErrInvalidRule, r.ID, r.Severity)
	}

	keys := make(map[string]struct{}, len(r.Conditions))
	for i, c := range r.Conditions {
		if c.Key == "" {
			return fmt.Errorf("%w: rule %s: condition %d has no key", ErrInvalidRule, r.ID, i)
		}
		if c.Key == EvidenceConditionsMet || c.Key == EvidenceConditionsTotal {
			return fmt.Errorf("%w: rule %s: condition key %q is reserved", ErrInvalidRule, r.ID, c.Key)
		}
		if _, dup := keys[c.Key]; dup {
			return fmt.Errorf("%w: rule %s: duplicate condition key %q", ErrInvalidRule, r.ID, c.Key)
		}
		keys[c.Key] = struct{}{}

		if o, ok := ConditionOverride(r.ID, i); ok {
			if o != OverrideMissedMedications {
				return fmt.Errorf("%w: rule %s: override %q does not apply to composite conditions", ErrInvalidRule, r.ID, o)
			}
			continue
		}
		if !c.VitalType.Valid() {
			return fmt.Errorf("%w: rule %s: condition %q: unknown vital type %q", ErrInvalidRule, r.ID, c.Key, c.VitalType)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("%w: rule %s: condition %q: unknown operator %q", ErrInvalidRule, r.ID, c.Key, c.Operator)
		}
		if c.LookbackDays < 0 || c.LookbackDays > MaxLookbackDays {
			return fmt.Errorf("%w: rule %s: condition %q: lookback %d outside 0..%d",
				ErrInvalidRule, r.ID, c.Key, c.LookbackDays, MaxLookbackDays)
		}
	}
	return nil
}
