package model

// RuleKind tags the variant of a rule definition
type RuleKind string

const (
	RuleKindThreshold RuleKind = "threshold"
	RuleKindTrend     RuleKind = "trend"
	RuleKindComposite RuleKind = "composite"
)

// Operator is a comparison applied to a measured value
type Operator string

const (
	OperatorGT  Operator = "gt"
	OperatorLT  Operator = "lt"
	OperatorGTE Operator = "gte"
	OperatorLTE Operator = "lte"
)

// Valid reports whether o is a known operator
func (o Operator) Valid() bool {
	switch o {
	case OperatorGT, OperatorLT, OperatorGTE, OperatorLTE:
		return true
	}
	return false
}

// Holds reports whether actual satisfies the operator against threshold.
// Unknown operators never hold.
func (o Operator) Holds(actual, threshold float64) bool {
	switch o {
	case OperatorGT:
		return actual > threshold
	case OperatorLT:
		return actual < threshold
	case OperatorGTE:
		return actual >= threshold
	case OperatorLTE:
		return actual <= threshold
	}
	return false
}

// Symbol returns the mathematical form of the operator for alert text
func (o Operator) Symbol() string {
	switch o {
	case OperatorGT:
		return ">"
	case OperatorLT:
		return "<"
	case OperatorGTE:
		return "≥"
	case OperatorLTE:
		return "≤"
	}
	return string(o)
}

// Direction is the required monotonic direction of a trend
type Direction string

const (
	DirectionRising  Direction = "rising"
	DirectionFalling Direction = "falling"
)

// DefaultLookbackDays applies to composite conditions that leave the lookback unset
const DefaultLookbackDays = 3

// Rule is the closed set of rule definitions: ThresholdRule, TrendRule and
// CompositeRule. Evaluation dispatches on the concrete type.
type Rule interface {
	RuleID() string
	RuleName() string
	Kind() RuleKind
	isRule()
}

// Bound is one severity band of a threshold rule
type Bound struct {
	Operator Operator      `json:"operator" yaml:"operator"`
	Value    float64       `json:"value" yaml:"value"`
	Severity AlertSeverity `json:"severity" yaml:"severity"`
	Label    string        `json:"label" yaml:"label"`
}

// ThresholdRule fires when the latest reading crosses one of its bounds.
// Bounds are ordered most-severe-first and the first match wins.
type ThresholdRule struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	VitalType VitalType `json:"vital_type" yaml:"vital_type"`
	Bounds    []Bound   `json:"bounds" yaml:"bounds"`
}

func (r ThresholdRule) RuleID() string   { return r.ID }
func (r ThresholdRule) RuleName() string { return r.Name }
func (r ThresholdRule) Kind() RuleKind   { return RuleKindThreshold }
func (ThresholdRule) isRule()            {}

// TrendRule fires when the most recent ConsecutiveCount readings are strictly
// monotonic in Direction.
type TrendRule struct {
	ID               string        `json:"id" yaml:"id"`
	Name             string        `json:"name" yaml:"name"`
	VitalType        VitalType     `json:"vital_type" yaml:"vital_type"`
	ConsecutiveCount int           `json:"consecutive_count" yaml:"consecutive_count"`
	Direction        Direction     `json:"direction" yaml:"direction"`
	Severity         AlertSeverity `json:"severity" yaml:"severity"`
}

func (r TrendRule) RuleID() string   { return r.ID }
func (r TrendRule) RuleName() string { return r.Name }
func (r TrendRule) Kind() RuleKind   { return RuleKindTrend }
func (TrendRule) isRule()            {}

// Condition is one independently evaluated signal of a composite rule. A
// generic condition compares the delta of VitalType over LookbackDays.
type Condition struct {
	Key          string    `json:"key" yaml:"key"`
	Label        string    `json:"label" yaml:"label"`
	VitalType    VitalType `json:"vital_type,omitempty" yaml:"vital_type,omitempty"`
	Operator     Operator  `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value        float64   `json:"value,omitempty" yaml:"value,omitempty"`
	LookbackDays int       `json:"lookback_days,omitempty" yaml:"lookback_days,omitempty"`
}

// Lookback returns LookbackDays or the default when unset
func (c Condition) Lookback() int {
	if c.LookbackDays <= 0 {
		return DefaultLookbackDays
	}
	return c.LookbackDays
}

// CompositeRule fires when at least MinConditionsMet conditions hold in the
// same evaluation pass.
type CompositeRule struct {
	ID               string        `json:"id" yaml:"id"`
	Name             string        `json:"name" yaml:"name"`
	Conditions       []Condition   `json:"conditions" yaml:"conditions"`
	MinConditionsMet int           `json:"min_conditions_met" yaml:"min_conditions_met"`
	Severity         AlertSeverity `json:"severity" yaml:"severity"`
}

func (r CompositeRule) RuleID() string   { return r.ID }
func (r CompositeRule) RuleName() string { return r.Name }
func (r CompositeRule) Kind() RuleKind   { return RuleKindComposite }
func (CompositeRule) isRule()            {}

// RuleSet groups rule definitions by family
type RuleSet struct {
	Threshold []ThresholdRule `json:"threshold" yaml:"threshold"`
	Trend     []TrendRule     `json:"trend" yaml:"trend"`
	Composite []CompositeRule `json:"composite" yaml:"composite"`
}

// All returns every rule in the set, family by family
func (s RuleSet) All() []Rule {
	rules := make([]Rule, 0, len(s.Threshold)+len(s.Trend)+len(s.Composite))
	for _, r := range s.Threshold {
		rules = append(rules, r)
	}
	for _, r := range s.Trend {
		rules = append(rules, r)
	}
	for _, r := range s.Composite {
		rules = append(rules, r)
	}
	return rules
}

// Find returns the rule with the given id
func (s RuleSet) Find(id string) (Rule, bool) {
	for _, r := range s.All() {
		if r.RuleID() == id {
			return r, true
		}
	}
	return nil, false
}
