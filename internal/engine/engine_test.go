package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/rpm-engine/internal/model"
	"github.com/t77yq/rpm-engine/internal/rules"
)

const patientID = "patient-1"

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory Accessor and ActiveAlertChecker
type fakeStore struct {
	mu     sync.Mutex
	vitals map[model.VitalType][]model.VitalReading
	missed []time.Time
	active map[string]bool

	readErr  error
	checkErr error
	asOfs    []time.Time
	sinces   []time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vitals: make(map[model.VitalType][]model.VitalReading),
		active: make(map[string]bool),
	}
}

func (f *fakeStore) add(vt model.VitalType, value float64, ago time.Duration) {
	f.vitals[vt] = append(f.vitals[vt], model.VitalReading{
		PatientID:  patientID,
		Type:       vt,
		Value:      value,
		Unit:       "u",
		RecordedAt: testNow.Add(-ago),
	})
}

func (f *fakeStore) addMissed(ago time.Duration) {
	f.missed = append(f.missed, testNow.Add(-ago))
}

// upTo returns readings recorded at or before asOf, newest first
func (f *fakeStore) upTo(vt model.VitalType, asOf time.Time) []model.VitalReading {
	var out []model.VitalReading
	for _, r := range f.vitals[vt] {
		if !r.RecordedAt.After(asOf) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out
}

func (f *fakeStore) Latest(_ context.Context, _ string, vt model.VitalType, asOf time.Time) (*model.VitalReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asOfs = append(f.asOfs, asOf)
	if f.readErr != nil {
		return nil, f.readErr
	}
	rs := f.upTo(vt, asOf)
	if len(rs) == 0 {
		return nil, nil
	}
	return &rs[0], nil
}

func (f *fakeStore) Recent(_ context.Context, _ string, vt model.VitalType, limit int, asOf time.Time) ([]model.VitalReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asOfs = append(f.asOfs, asOf)
	if f.readErr != nil {
		return nil, f.readErr
	}
	rs := f.upTo(vt, asOf)
	if len(rs) > limit {
		rs = rs[:limit]
	}
	return rs, nil
}

func (f *fakeStore) EarliestSince(_ context.Context, _ string, vt model.VitalType, since, asOf time.Time) (*model.VitalReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asOfs = append(f.asOfs, asOf)
	f.sinces = append(f.sinces, since)
	if f.readErr != nil {
		return nil, f.readErr
	}
	rs := f.upTo(vt, asOf)
	for i := len(rs) - 1; i >= 0; i-- {
		if !rs[i].RecordedAt.Before(since) {
			return &rs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) MissedMedicationCount(_ context.Context, _ string, since, asOf time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asOfs = append(f.asOfs, asOf)
	f.sinces = append(f.sinces, since)
	if f.readErr != nil {
		return 0, f.readErr
	}
	n := 0
	for _, at := range f.missed {
		if !at.Before(since) && !at.After(asOf) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) HasActiveAlert(_ context.Context, pid, ruleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.active[pid+"/"+ruleID], nil
}

func newTestEngine(t *testing.T, store *fakeStore) *Engine {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	e, err := New(store, store, rules.Default(),
		WithClock(func() time.Time { return testNow }),
		WithLogger(logger))
	require.NoError(t, err)
	return e
}

func findAlert(alerts []model.PendingAlert, ruleID string) *model.PendingAlert {
	for i := range alerts {
		if alerts[i].RuleID == ruleID {
			return &alerts[i]
		}
	}
	return nil
}

func ruleIDs(alerts []model.PendingAlert) []string {
	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.RuleID)
	}
	return ids
}

func TestNew(t *testing.T) {
	store := newFakeStore()

	_, err := New(nil, store, rules.Default())
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = New(store, nil, rules.Default())
	assert.ErrorIs(t, err, ErrNilDependency)

	bad := rules.Default()
	bad.Trend[0].ConsecutiveCount = 1
	_, err = New(store, store, bad)
	assert.ErrorIs(t, err, rules.ErrInvalidRule)

	longWindow := rules.Default()
	longWindow.Composite[0].Conditions[0].LookbackDays = 200000
	_, err = New(store, store, longWindow)
	assert.ErrorIs(t, err, rules.ErrInvalidRule)

	reservedKey := rules.Default()
	reservedKey.Composite[0].Conditions[1].Key = rules.EvidenceConditionsTotal
	_, err = New(store, store, reservedKey)
	assert.ErrorIs(t, err, rules.ErrInvalidRule)

	e, err := New(store, store, rules.Default())
	require.NoError(t, err)
	assert.Equal(t, len(rules.Default().All()), len(e.Rules().All()))
}

func TestEvaluate_MissingPatientID(t *testing.T) {
	e := newTestEngine(t, newFakeStore())
	_, err := e.Evaluate(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingPatientID)
}

func TestEvaluate_NoData(t *testing.T) {
	e := newTestEngine(t, newFakeStore())
	alerts, err := e.Evaluate(context.Background(), patientID)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluate_Threshold(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		severity model.AlertSeverity
		title    string
	}{
		{name: "critical bound wins", value: 185, severity: model.AlertSeverityCritical, title: "Hypertensive crisis"},
		{name: "elevated bound", value: 150, severity: model.AlertSeverityElevated, title: "Elevated systolic BP"},
		{name: "within range", value: 120},
		{name: "exactly on bound", value: 140},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.add(model.VitalBPSystolic, tt.value, time.Hour)
			e := newTestEngine(t, store)

			alerts, err := e.Evaluate(context.Background(), patientID)
			require.NoError(t, err)

			alert := findAlert(alerts, "bp-systolic-high")
			if tt.severity == "" {
				assert.Nil(t, alert)
				return
			}
			require.NotNil(t, alert)
			assert.Len(t, alerts, 1)
			assert.Equal(t, patientID, alert.PatientID)
			assert.Equal(t, tt.severity, alert.Severity)
			assert.Equal(t, tt.title, alert.Title)
			assert.Equal(t, "High systolic blood pressure", alert.RuleName)
			assert.Equal(t, tt.value, alert.Evidence["value"])
			assert.Contains(t, alert.Description, "Systolic BP")
		})
	}
}

func TestEvaluate_Threshold_UsesLatestReading(t *testing.T) {
	store := newFakeStore()
	store.add(model.VitalBPSystolic, 190, 5*time.Hour)
	store.add(model.VitalBPSystolic, 125, time.Hour)
	e := newTestEngine(t, store)

	alerts, err := e.Evaluate(context.Background(), patientID)
	require.NoError(t, err)
	assert.Nil(t, findAlert(alerts, "bp-systolic-high"))
}

func TestEvaluate_IgnoresReadingsAfterNow(t *testing.T) {
	store := newFakeStore()
	store.add(model.VitalBPSystolic, 120, time.Hour)
	store.add(model.VitalBPSystolic, 200, -time.Hour)
	e := newTestEngine(t, store)

	alerts, err := e.Evaluate(context.Background(), patientID)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluate_WeightGain(t *testing.T) {
	t.Run("gain over one day", func(t *testing.T) {
		store := newFakeStore()
		store.add(model.VitalWeight, 149, 20*time.Hour)
		store.add(model.VitalWeight, 153, time.Hour)
		e := newTestEngine(t, store)

		alerts, err := e.Evaluate(context.Background(), patientID)
		require.NoError(t, err)

		alert := findAlert(alerts, rules.WeightGainRuleID)
		require.NotNil(t, alert)
		assert.Equal(t, model.AlertSeverityElevated, alert.Severity)
		assert.Equal(t, 4.0, alert.Evidence["delta"])
		assert.Equal(t, 1, alert.Evidence["lookback_days"])
	})

	t.Run("baseline outside window", func(t *testing.T) {
		store := newFakeStore()
		store.add(model.VitalWeight, 149, 30*time.Hour)
		store.add(model.VitalWeight, 153, time.Hour)
		e := newTestEngine(t, store)

		alerts, err := e.Evaluate(context.Background(), patientID)
		require.NoError(t, err)
		assert.Nil(t, findAlert(alerts, rules.WeightGainRuleID))
	})

	t.Run("single reading", func(t *testing.T) {
		store := newFakeStore()
		store.add(model.VitalWeight, 153, time.Hour)
		e := newTestEngine(t, store)

		alerts, err := e.Evaluate(context.Background(), patientID)
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})

	t.Run("gain at limit", func(t *testing.T) {
		store := newFakeStore()
		store.add(model.VitalWeight, 150, 20*time.Hour)
		store.add(model.VitalWeight, 153, time.Hour)
		e := newTestEngine(t, store)

		alerts, err := e.Evaluate(context.Background(), patientID)
		require.NoError(t, err)
		assert.Nil(t, findAlert(alerts, rules.WeightGainRuleID))
	})
}

func TestEvaluate_Trend(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		fires  bool
	}{
		{name: "strictly rising", values: []float64{130, 135, 140}, fires: true},
		{name: "tie breaks the run", values: []float64{130, 135, 135}},
		{name: "reversal", values: []float64{130, 140, 135}},
		{name: "too few readings", values: []float64{130, 135}},
		{name: "only last three count", values: []float64{200, 130, 135, 140}, fires: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			for i, v := range tt.values {
				store.add(model.VitalBloodGlucose, v, time.Duration(len(tt.values)-i)*time.Hour)
			}
			e := newTestEngine(t, store)

			alerts, err := e.Evaluate(context.Background(), patientID)
			require.NoError(t, err)

			alert := findAlert(alerts, "glucose-rising")
			if !tt.fires {
				assert.Nil(t, alert)
				return
			}
			require.NotNil(t, alert)
			assert.Equal(t, model.AlertSeverityElevated, alert.Severity)
			assert.Equal(t, "Rising blood glucose", alert.Title)
			assert.Equal(t, 130.0, alert.Evidence["first_value"])
			assert.Equal(t, 140.0, alert.Evidence["last_value"])
			assert.Equal(t, 3, alert.Evidence["count"])
			assert.Len(t, alert.Evidence["readings"], 3)
		})
	}
}

func TestEvaluate_Trend_Falling(t *testing.T) {
	store := newFakeStore()
	store.add(model.VitalOxygenSaturation, 97, 3*time.Hour)
	store.add(model.VitalOxygenSaturation, 95, 2*time.Hour)
	store.add(model.VitalOxygenSaturation, 93, time.Hour)
	e := newTestEngine(t, store)

	alerts, err := e.Evaluate(context.Background(), patientID)
	require.NoError(t, err)
	assert.Equal(t, []string{"spo2-falling"}, ruleIDs(alerts))
	assert.Contains(t, alerts[0].Description, "fell")
}

func TestEvaluate_CHFComposite(t *testing.T) {
	t.Run("two of three", func(t *testing.T) {
		store := newFakeStore()
		store.add(model.VitalWeight, 150, 48*time.Hour)
		store.add(model.VitalWeight, 154, time.Hour)
		store.add(model.VitalHeartRate, 70, 48*time.Hour)
		store.add(model.VitalHeartRate, 90, time.Hour)
		e := newTestEngine(t, store)

		alerts, err := e.Evaluate(context.Background(), patientID)
		require.NoError(t, err)
		assert.Equal(t, []string{rules.CHFDecompensationRuleID}, ruleIDs(alerts))

		alert := alerts[0]
		assert.Equal(t, model.AlertSeverityCritical, alert.Severity)
		assert.Equal(t, "Possible CHF decompensation: 2/3 conditions met", alert.Title)
		assert.Equal(t,
			"Weight up more than 3 lbs in 3 days; Heart rate up more than 15 bpm in 3 days",
			alert.Description)
		assert.Contains(t, alert.Evidence, "weight_gain")
		assert.Contains(t, alert.Evidence, "hr_rise")
		assert.NotContains(t, alert.Evidence, "bp_rise")
		assert.Equal(t, 2, alert.Evidence[rules.EvidenceConditionsMet])
		assert.Equal(t, 3, alert.Evidence[rules.EvidenceConditionsTotal])
	})

	t.Run("one of three", func(t *testing.T) {
		store := newFakeStore()
		store.add(model.VitalWeight, 150, 48*time.Hour)
		store.add(model.VitalWeight, 154, time.Hour)
		store.add(model.VitalBPSystolic, 110, 48*time.Hour)
		store.add(model.VitalBPSystolic, 115, time.Hour)
		e := newTestEngine(t, store)

		alerts, err := e.Evaluate(context.Background(), patientID)
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})
}

func TestEvaluate_MedicationNonAdherence(t *testing.T) {
	tests := []struct {
		name   string
		missed []time.Duration
		fires  bool
	}{
		{name: "two missed doses", missed: []time.Duration{10 * time.Hour, 30 * time.Hour}, fires: true},
		{name: "one missed dose", missed: []time.Duration{10 * time.Hour}},
		{name: "second dose outside window", missed: []time.Duration{10 * time.Hour, 96 * time.Hour}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.add(model.VitalBPSystolic, 110, 48*time.Hour)
			store.add(model.VitalBPSystolic, 130, time.Hour)
			for _, ago := range tt.missed {
				store.addMissed(ago)
			}
			e := newTestEngine(t, store)

			alerts, err := e.Evaluate(context.Background(), patientID)
			require.NoError(t, err)

			alert := findAlert(alerts, rules.MedNonAdherenceBPRuleID)
			if !tt.fires {
				assert.Empty(t, alerts)
				return
			}
			require.NotNil(t, alert)
			assert.Len(t, alerts, 1)
			assert.Equal(t, model.AlertSeverityElevated, alert.Severity)
			assert.Equal(t, "Medication non-adherence with rising BP: 2/2 conditions met", alert.Title)
			missed, ok := alert.Evidence["missed_medications"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, 2, missed["missed_doses"])
		})
	}
}

func TestEvaluate_ActiveAlertSuppressesRule(t *testing.T) {
	store := newFakeStore()
	store.add(model.VitalBPSystolic, 185, time.Hour)
	store.add(model.VitalHeartRate, 140, time.Hour)
	store.active[patientID+"/bp-systolic-high"] = true
	e := newTestEngine(t, store)

	alerts, err := e.Evaluate(context.Background(), patientID)
	require.NoError(t, err)
	assert.Equal(t, []string{"heart-rate-high"}, ruleIDs(alerts))

	// another patient is unaffected
	store.active = map[string]bool{"patient-2/heart-rate-high": true}
	alerts, err = e.Evaluate(context.Background(), patientID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bp-systolic-high", "heart-rate-high"}, ruleIDs(alerts))
}

func TestEvaluate_Idempotent(t *testing.T) {
	store := newFakeStore()
	store.add(model.VitalBPSystolic, 185, time.Hour)
	store.add(model.VitalBloodGlucose, 130, 3*time.Hour)
	store.add(model.VitalBloodGlucose, 135, 2*time.Hour)
	store.add(model.VitalBloodGlucose, 140, time.Hour)
	e := newTestEngine(t, store)

	first, err := e.Evaluate(context.Background(), patientID)
	require.NoError(t, err)
	second, err := e.Evaluate(context.Background(), patientID)
	require.NoError(t, err)

	assert.Len(t, first, 2)
	assert.ElementsMatch(t, first, second)
}

func TestEvaluate_ReadErrorFailsWholeCall(t *testing.T) {
	errDB := errors.New("connection refused")
	store := newFakeStore()
	store.add(model.VitalBPSystolic, 185, time.Hour)
	store.readErr = errDB
	e := newTestEngine(t, store)

	alerts, err := e.Evaluate(context.Background(), patientID)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDB)
	assert.Nil(t, alerts)
}

func TestEvaluate_CheckErrorFailsWholeCall(t *testing.T) {
	errDB := errors.New("timeout")
	store := newFakeStore()
	store.checkErr = errDB
	e := newTestEngine(t, store)

	alerts, err := e.Evaluate(context.Background(), patientID)
	assert.ErrorIs(t, err, errDB)
	assert.Nil(t, alerts)
}

func TestEvaluate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(t, newFakeStore())
	_, err := e.Evaluate(ctx, patientID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate_SingleInstantPerPass(t *testing.T) {
	store := newFakeStore()
	store.add(model.VitalWeight, 150, 48*time.Hour)
	store.add(model.VitalWeight, 154, time.Hour)
	store.addMissed(time.Hour)
	e := newTestEngine(t, store)

	_, err := e.Evaluate(context.Background(), patientID)
	require.NoError(t, err)

	require.NotEmpty(t, store.asOfs)
	for _, asOf := range store.asOfs {
		assert.True(t, asOf.Equal(testNow))
	}
	for _, since := range store.sinces {
		d := testNow.Sub(since)
		assert.Zero(t, d%(24*time.Hour), "since %s is not a whole number of days before now", since)
	}
}
