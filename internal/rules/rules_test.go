package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/rpm-engine/internal/model"
)

func TestDefault_IsValid(t *testing.T) {
	set := Default()
	require.NoError(t, Validate(set))

	_, ok := set.Find(WeightGainRuleID)
	assert.True(t, ok)
	_, ok = set.Find(MedNonAdherenceBPRuleID)
	assert.True(t, ok)
	_, ok = set.Find(CHFDecompensationRuleID)
	assert.True(t, ok)
}

func TestDefault_BoundsMostSevereFirst(t *testing.T) {
	for _, r := range Default().Threshold {
		if len(r.Bounds) < 2 {
			continue
		}
		assert.Equal(t, model.AlertSeverityCritical, r.Bounds[0].Severity, "rule %s", r.ID)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	set, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, len(Default().All()), len(set.All()))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
threshold:
  - id: hr-high
    name: High heart rate
    vital_type: heart_rate
    bounds:
      - {operator: gt, value: 120, severity: critical, label: Severe tachycardia}
      - {operator: gt, value: 100, severity: elevated, label: Tachycardia}
trend:
  - id: glucose-rising
    name: Rising glucose
    vital_type: blood_glucose
    consecutive_count: 3
    direction: rising
    severity: elevated
composite:
  - id: med-nonadherence-bp
    name: Non-adherence with BP rise
    min_conditions_met: 2
    severity: elevated
    conditions:
      - {key: missed_medications, label: Missed doses}
      - {key: bp_rise, label: BP rise, vital_type: bp_systolic, operator: gt, value: 15}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	set, err := Load(path)
	require.NoError(t, err)
	require.Len(t, set.Threshold, 1)
	require.Len(t, set.Trend, 1)
	require.Len(t, set.Composite, 1)

	assert.Equal(t, model.OperatorGT, set.Threshold[0].Bounds[0].Operator)
	assert.Equal(t, 120.0, set.Threshold[0].Bounds[0].Value)
	assert.Equal(t, model.DirectionRising, set.Trend[0].Direction)
	assert.Equal(t, 3, set.Composite[0].Conditions[1].Lookback())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("threshold:\n  - id: x\n    thresholds: []\n"))
	require.ErrorIs(t, err, ErrInvalidRule)
}

func TestMarshal_ParsesBack(t *testing.T) {
	data, err := Marshal(Default())
	require.NoError(t, err)

	set, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default(), set)
	assert.NotContains(t, string(data), "value: 0")
}

func TestValidate_Rejects(t *testing.T) {
	validBound := model.Bound{Operator: model.OperatorGT, Value: 1, Severity: model.AlertSeverityElevated, Label: "x"}

	tests := []struct {
		name    string
		set     model.RuleSet
		wantErr error
	}{
		{
			name: "duplicate ids",
			set: model.RuleSet{
				Threshold: []model.ThresholdRule{{ID: "a", VitalType: model.VitalWeight, Bounds: []model.Bound{validBound}}},
				Trend:     []model.TrendRule{{ID: "a", VitalType: model.VitalWeight, ConsecutiveCount: 3, Direction: model.DirectionRising, Severity: model.AlertSeverityElevated}},
			},
			wantErr: ErrDuplicateRule,
		},
		{
			name: "missing id",
			set: model.RuleSet{
				Threshold: []model.ThresholdRule{{VitalType: model.VitalWeight, Bounds: []model.Bound{validBound}}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "unknown vital type",
			set: model.RuleSet{
				Threshold: []model.ThresholdRule{{ID: "a", VitalType: "steps", Bounds: []model.Bound{validBound}}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "no bounds",
			set: model.RuleSet{
				Threshold: []model.ThresholdRule{{ID: "a", VitalType: model.VitalWeight}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "unknown operator",
			set: model.RuleSet{
				Threshold: []model.ThresholdRule{{ID: "a", VitalType: model.VitalWeight, Bounds: []model.Bound{{Operator: "eq", Severity: model.AlertSeverityElevated}}}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "weight gain with two bounds",
			set: model.RuleSet{
				Threshold: []model.ThresholdRule{{ID: WeightGainRuleID, VitalType: model.VitalWeight, Bounds: []model.Bound{validBound, validBound}}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "trend count too small",
			set: model.RuleSet{
				Trend: []model.TrendRule{{ID: "t", VitalType: model.VitalWeight, ConsecutiveCount: 1, Direction: model.DirectionRising, Severity: model.AlertSeverityElevated}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "trend unknown direction",
			set: model.RuleSet{
				Trend: []model.TrendRule{{ID: "t", VitalType: model.VitalWeight, ConsecutiveCount: 3, Direction: "flat", Severity: model.AlertSeverityElevated}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "composite min out of range",
			set: model.RuleSet{
				Composite: []model.CompositeRule{{
					ID:               "c",
					Conditions:       []model.Condition{{Key: "k", VitalType: model.VitalWeight, Operator: model.OperatorGT, Value: 1}},
					MinConditionsMet: 2,
					Severity:         model.AlertSeverityElevated,
				}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "generic condition without vital type",
			set: model.RuleSet{
				Composite: []model.CompositeRule{{
					ID:               "c",
					Conditions:       []model.Condition{{Key: "missed_medications", Label: "Missed"}},
					MinConditionsMet: 1,
					Severity:         model.AlertSeverityElevated,
				}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "duplicate condition keys",
			set: model.RuleSet{
				Composite: []model.CompositeRule{{
					ID: "c",
					Conditions: []model.Condition{
						{Key: "k", VitalType: model.VitalWeight, Operator: model.OperatorGT, Value: 1},
						{Key: "k", VitalType: model.VitalHeartRate, Operator: model.OperatorGT, Value: 1},
					},
					MinConditionsMet: 1,
					Severity:         model.AlertSeverityElevated,
				}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "weight gain declared as trend",
			set: model.RuleSet{
				Trend: []model.TrendRule{{ID: WeightGainRuleID, VitalType: model.VitalWeight, ConsecutiveCount: 3, Direction: model.DirectionRising, Severity: model.AlertSeverityElevated}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "medication rule declared as threshold",
			set: model.RuleSet{
				Threshold: []model.ThresholdRule{{ID: MedNonAdherenceBPRuleID, VitalType: model.VitalBPSystolic, Bounds: []model.Bound{validBound}}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "reserved condition key",
			set: model.RuleSet{
				Composite: []model.CompositeRule{{
					ID:               "c",
					Conditions:       []model.Condition{{Key: EvidenceConditionsMet, VitalType: model.VitalWeight, Operator: model.OperatorGT, Value: 1}},
					MinConditionsMet: 1,
					Severity:         model.AlertSeverityElevated,
				}},
			},
			wantErr: ErrInvalidRule,
		},
		{
			name: "lookback too long",
			set: model.RuleSet{
				Composite: []model.CompositeRule{{
					ID:               "c",
					Conditions:       []model.Condition{{Key: "k", VitalType: model.VitalWeight, Operator: model.OperatorGT, Value: 1, LookbackDays: 200000}},
					MinConditionsMet: 1,
					Severity:         model.AlertSeverityElevated,
				}},
			},
			wantErr: ErrInvalidRule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.set)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_MedicationOverrideNeedsNoVitalType(t *testing.T) {
	set := model.RuleSet{
		Composite: []model.CompositeRule{{
			ID: MedNonAdherenceBPRuleID,
			Conditions: []model.Condition{
				{Key: "missed_medications", Label: "Missed"},
				{Key: "bp_rise", VitalType: model.VitalBPSystolic, Operator: model.OperatorGT, Value: 15},
			},
			MinConditionsMet: 2,
			Severity:         model.AlertSeverityElevated,
		}},
	}
	require.NoError(t, Validate(set))
}

func TestValidate_OverrideRulesMayBeOmitted(t *testing.T) {
	set := Default()
	set.Threshold = nil
	set.Composite = nil
	require.NoError(t, Validate(set))

	_, ok := set.Find(WeightGainRuleID)
	assert.False(t, ok)
}

func TestValidate_DefaultWithWeightGainMovedToTrend(t *testing.T) {
	set := Default()
	var kept []model.ThresholdRule
	for _, r := range set.Threshold {
		if r.ID != WeightGainRuleID {
			kept = append(kept, r)
		}
	}
	set.Threshold = kept
	set.Trend = append(set.Trend, model.TrendRule{
		ID:               WeightGainRuleID,
		Name:             "Weight gain",
		VitalType:        model.VitalWeight,
		ConsecutiveCount: 3,
		Direction:        model.DirectionRising,
		Severity:         model.AlertSeverityElevated,
	})

	err := Validate(set)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRule)
	assert.Contains(t, err.Error(), "needs a threshold rule")
}

func TestOverrides(t *testing.T) {
	o, ok := ThresholdOverride(WeightGainRuleID)
	require.True(t, ok)
	assert.Equal(t, OverrideDailyDelta, o)

	_, ok = ThresholdOverride("bp-systolic-high")
	assert.False(t, ok)

	o, ok = ConditionOverride(MedNonAdherenceBPRuleID, 0)
	require.True(t, ok)
	assert.Equal(t, OverrideMissedMedications, o)

	_, ok = ConditionOverride(MedNonAdherenceBPRuleID, 1)
	assert.False(t, ok)
}
