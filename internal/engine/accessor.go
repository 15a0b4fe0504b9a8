package engine

import (
	"context"
	"time"

	"github.com/t77yq/rpm-engine/internal/model"
)

// Accessor defines the read-only time-series queries the engine needs.
//
// Every query is bounded by asOf so that one evaluation pass observes a single
// instant. Empty results are reported as nil readings or empty slices with a
// nil error; a non-nil error always means the store could not be read.
type Accessor interface {
	// Latest returns the newest reading recorded at or before asOf
	Latest(ctx context.Context, patientID string, vitalType model.VitalType, asOf time.Time) (*model.VitalReading, error)

	// Recent returns at most limit readings recorded at or before asOf, newest first
	Recent(ctx context.Context, patientID string, vitalType model.VitalType, limit int, asOf time.Time) ([]model.VitalReading, error)

	// EarliestSince returns the oldest reading recorded in [since, asOf]
	EarliestSince(ctx context.Context, patientID string, vitalType model.VitalType, since, asOf time.Time) (*model.VitalReading, error)

	// MissedMedicationCount counts medication log entries with status missed
	// scheduled in [since, asOf]
	MissedMedicationCount(ctx context.Context, patientID string, since, asOf time.Time) (int, error)
}

type earliestKey struct {
	vitalType model.VitalType
	since     time.Time
}

type recentKey struct {
	vitalType model.VitalType
	limit     int
}

// snapshot memoises accessor results for one rule family within one pass. A
// reading fetched once is reused by every rule of the family so that no rule
// sees a different "latest" than its neighbour. It is not safe for concurrent
// use; each family owns its own snapshot.
type snapshot struct {
	acc       Accessor
	patientID string
	now       time.Time

	latest   map[model.VitalType]*model.VitalReading
	earliest map[earliestKey]*model.VitalReading
	recent   map[recentKey][]model.VitalReading
	missed   map[time.Time]int
}

func newSnapshot(acc Accessor, patientID string, now time.Time) *snapshot {
	return &snapshot{
		acc:       acc,
		patientID: patientID,
		now:       now,
		latest:    make(map[model.VitalType]*model.VitalReading),
		earliest:  make(map[earliestKey]*model.VitalReading),
		recent:    make(map[recentKey][]model.VitalReading),
		missed:    make(map[time.Time]int),
	}
}

// daysAgo returns the lower bound of a lookback window of n days
func (s *snapshot) daysAgo(n int) time.Time {
	return s.now.Add(-time.Duration(n) * 24 * time.Hour)
}

func (s *snapshot) Latest(ctx context.Context, vitalType model.VitalType) (*model.VitalReading, error) {
	if r, ok := s.latest[vitalType]; ok {
		return r, nil
	}
	r, err := s.acc.Latest(ctx, s.patientID, vitalType, s.now)
	if err != nil {
		return nil, err
	}
	s.latest[vitalType] = r
	return r, nil
}

func (s *snapshot) Recent(ctx context.Context, vitalType model.VitalType, limit int) ([]model.VitalReading, error) {
	key := recentKey{vitalType: vitalType, limit: limit}
	if rs, ok := s.recent[key]; ok {
		return rs, nil
	}
	rs, err := s.acc.Recent(ctx, s.patientID, vitalType, limit, s.now)
	if err != nil {
		return nil, err
	}
	s.recent[key] = rs
	return rs, nil
}

func (s *snapshot) EarliestSince(ctx context.Context, vitalType model.VitalType, days int) (*model.VitalReading, error) {
	key := earliestKey{vitalType: vitalType, since: s.daysAgo(days)}
	if r, ok := s.earliest[key]; ok {
		return r, nil
	}
	r, err := s.acc.EarliestSince(ctx, s.patientID, vitalType, key.since, s.now)
	if err != nil {
		return nil, err
	}
	s.earliest[key] = r
	return r, nil
}

func (s *snapshot) MissedMedicationCount(ctx context.Context, days int) (int, error) {
	since := s.daysAgo(days)
	if n, ok := s.missed[since]; ok {
		return n, nil
	}
	n, err := s.acc.MissedMedicationCount(ctx, s.patientID, since, s.now)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	s.missed[since] = n
	return n, nil
}
