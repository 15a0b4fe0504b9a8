package rules

// Override names a non-generic evaluation behaviour selected by rule identity.
//
// The table below is the only place special cases are declared. The engine
// maps each Override to its implementation; Validate checks that the rules
// they point at have the shape the override expects.
type Override string

const (
	// OverrideDailyDelta compares the single bound against latest minus the
	// earliest reading of the last 24 hours instead of the latest value
	OverrideDailyDelta Override = "daily_delta"

	// OverrideMissedMedications replaces a composite condition with
	// "at least MissedDoseThreshold missed doses in MissedDoseLookbackDays"
	OverrideMissedMedications Override = "missed_medications"
)

const (
	MissedDoseThreshold    = 2
	MissedDoseLookbackDays = 3
	DailyDeltaLookbackDays = 1
)

var thresholdOverrides = map[string]Override{
	WeightGainRuleID: OverrideDailyDelta,
}

// conditionOverrides is keyed by rule id, then by condition index
var conditionOverrides = map[string]map[int]Override{
	MedNonAdherenceBPRuleID: {0: OverrideMissedMedications},
}

// ThresholdOverride returns the override registered for a threshold rule
func ThresholdOverride(ruleID string) (Override, bool) {
	o, ok := thresholdOverrides[ruleID]
	return o, ok
}

// ConditionOverride returns the override registered for the i-th condition of
// a composite rule
func ConditionOverride(ruleID string, i int) (Override, bool) {
	byIndex, ok := conditionOverrides[ruleID]
	if !ok {
		return "", false
	}
	o, ok := byIndex[i]
	return o, ok
}
