package rules

import "github.com/t77yq/rpm-engine/internal/model"

// Rule ids that the engine special-cases by identity.
const (
	// WeightGainRuleID marks the threshold rule whose single bound is a 1-day delta
	WeightGainRuleID = "weight-gain"

	// MedNonAdherenceBPRuleID marks the composite rule whose first condition is
	// the missed-medication count instead of a vital delta
	MedNonAdherenceBPRuleID = "med-nonadherence-bp"

	// CHFDecompensationRuleID is the weight/BP/HR composite
	CHFDecompensationRuleID = "chf-decompensation"
)

// Default returns the built-in rule definitions
func Default() model.RuleSet {
	return model.RuleSet{
		Threshold: defaultThresholdRules(),
		Trend:     defaultTrendRules(),
		Composite: defaultCompositeRules(),
	}
}

func defaultThresholdRules() []model.ThresholdRule {
	return []model.ThresholdRule{
		{
			ID:        "bp-systolic-high",
			Name:      "High systolic blood pressure",
			VitalType: model.VitalBPSystolic,
			Bounds: []model.Bound{
				{Operator: model.OperatorGT, Value: 180, Severity: model.AlertSeverityCritical, Label: "Hypertensive crisis"},
				{Operator: model.OperatorGT, Value: 140, Severity: model.AlertSeverityElevated, Label: "Elevated systolic BP"},
			},
		},
		{
			ID:        "bp-systolic-low",
			Name:      "Low systolic blood pressure",
			VitalType: model.VitalBPSystolic,
			Bounds: []model.Bound{
				{Operator: model.OperatorLT, Value: 80, Severity: model.AlertSeverityCritical, Label: "Severe hypotension"},
				{Operator: model.OperatorLT, Value: 90, Severity: model.AlertSeverityElevated, Label: "Low systolic BP"},
			},
		},
		{
			ID:        "bp-diastolic-high",
			Name:      "High diastolic blood pressure",
			VitalType: model.VitalBPDiastolic,
			Bounds: []model.Bound{
				{Operator: model.OperatorGT, Value: 120, Severity: model.AlertSeverityCritical, Label: "Diastolic crisis"},
				{Operator: model.OperatorGT, Value: 90, Severity: model.AlertSeverityElevated, Label: "Elevated diastolic BP"},
			},
		},
		{
			ID:        "heart-rate-high",
			Name:      "High heart rate",
			VitalType: model.VitalHeartRate,
			Bounds: []model.Bound{
				{Operator: model.OperatorGT, Value: 130, Severity: model.AlertSeverityCritical, Label: "Severe tachycardia"},
				{Operator: model.OperatorGT, Value: 100, Severity: model.AlertSeverityElevated, Label: "Tachycardia"},
			},
		},
		{
			ID:        "heart-rate-low",
			Name:      "Low heart rate",
			VitalType: model.VitalHeartRate,
			Bounds: []model.Bound{
				{Operator: model.OperatorLT, Value: 40, Severity: model.AlertSeverityCritical, Label: "Severe bradycardia"},
				{Operator: model.OperatorLT, Value: 50, Severity: model.AlertSeverityElevated, Label: "Bradycardia"},
			},
		},
		{
			ID:        "glucose-high",
			Name:      "High blood glucose",
			VitalType: model.VitalBloodGlucose,
			Bounds: []model.Bound{
				{Operator: model.OperatorGT, Value: 400, Severity: model.AlertSeverityCritical, Label: "Severe hyperglycemia"},
				{Operator: model.OperatorGT, Value: 250, Severity: model.AlertSeverityElevated, Label: "Hyperglycemia"},
			},
		},
		{
			ID:        "glucose-low",
			Name:      "Low blood glucose",
			VitalType: model.VitalBloodGlucose,
			Bounds: []model.Bound{
				{Operator: model.OperatorLT, Value: 54, Severity: model.AlertSeverityCritical, Label: "Severe hypoglycemia"},
				{Operator: model.OperatorLT, Value: 70, Severity: model.AlertSeverityElevated, Label: "Hypoglycemia"},
			},
		},
		{
			ID:        "spo2-low",
			Name:      "Low oxygen saturation",
			VitalType: model.VitalOxygenSaturation,
			Bounds: []model.Bound{
				{Operator: model.OperatorLT, Value: 88, Severity: model.AlertSeverityCritical, Label: "Severe hypoxemia"},
				{Operator: model.OperatorLT, Value: 92, Severity: model.AlertSeverityElevated, Label: "Low SpO2"},
			},
		},
		{
			ID:        "temperature-high",
			Name:      "Fever",
			VitalType: model.VitalTemperature,
			Bounds: []model.Bound{
				{Operator: model.OperatorGT, Value: 103, Severity: model.AlertSeverityCritical, Label: "High fever"},
				{Operator: model.OperatorGT, Value: 100.4, Severity: model.AlertSeverityElevated, Label: "Fever"},
			},
		},
		{
			ID:        WeightGainRuleID,
			Name:      "Rapid weight gain",
			VitalType: model.VitalWeight,
			Bounds: []model.Bound{
				{Operator: model.OperatorGT, Value: 3, Severity: model.AlertSeverityElevated, Label: "Weight gain over 3 lbs in 24 hours"},
			},
		},
	}
}

func defaultTrendRules() []model.TrendRule {
	return []model.TrendRule{
		{
			ID:               "bp-systolic-rising",
			Name:             "Rising systolic blood pressure",
			VitalType:        model.VitalBPSystolic,
			ConsecutiveCount: 3,
			Direction:        model.DirectionRising,
			Severity:         model.AlertSeverityElevated,
		},
		{
			ID:               "glucose-rising",
			Name:             "Rising blood glucose",
			VitalType:        model.VitalBloodGlucose,
			ConsecutiveCount: 3,
			Direction:        model.DirectionRising,
			Severity:         model.AlertSeverityElevated,
		},
		{
			ID:               "spo2-falling",
			Name:             "Falling oxygen saturation",
			VitalType:        model.VitalOxygenSaturation,
			ConsecutiveCount: 3,
			Direction:        model.DirectionFalling,
			Severity:         model.AlertSeverityElevated,
		},
		{
			ID:               "weight-rising",
			Name:             "Rising weight",
			VitalType:        model.VitalWeight,
			ConsecutiveCount: 4,
			Direction:        model.DirectionRising,
			Severity:         model.AlertSeverityElevated,
		},
	}
}

func defaultCompositeRules() []model.CompositeRule {
	return []model.CompositeRule{
		{
			ID:   CHFDecompensationRuleID,
			Name: "Possible CHF decompensation",
			Conditions: []model.Condition{
				{Key: "weight_gain", Label: "Weight up more than 3 lbs in 3 days", VitalType: model.VitalWeight, Operator: model.OperatorGT, Value: 3, LookbackDays: 3},
				{Key: "bp_rise", Label: "Systolic BP up more than 20 mmHg in 3 days", VitalType: model.VitalBPSystolic, Operator: model.OperatorGT, Value: 20, LookbackDays: 3},
				{Key: "hr_rise", Label: "Heart rate up more than 15 bpm in 3 days", VitalType: model.VitalHeartRate, Operator: model.OperatorGT, Value: 15, LookbackDays: 3},
			},
			MinConditionsMet: 2,
			Severity:         model.AlertSeverityCritical,
		},
		{
			ID:   MedNonAdherenceBPRuleID,
			Name: "Medication non-adherence with rising BP",
			Conditions: []model.Condition{
				{Key: "missed_medications", Label: "2 or more missed doses in 3 days"},
				{Key: "bp_rise", Label: "Systolic BP up more than 15 mmHg in 3 days", VitalType: model.VitalBPSystolic, Operator: model.OperatorGT, Value: 15, LookbackDays: 3},
			},
			MinConditionsMet: 2,
			Severity:         model.AlertSeverityElevated,
		},
	}
}
