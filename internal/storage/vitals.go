package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/t77yq/rpm-engine/internal/model"
)

const vitalColumns = "id, patient_id, vital_type, value, unit, recorded_at"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanVital(row scanner) (*model.VitalReading, error) {
	var r model.VitalReading
	if err := row.Scan(&r.ID, &r.PatientID, &r.Type, &r.Value, &r.Unit, &r.RecordedAt); err != nil {
		return nil, err
	}
	r.RecordedAt = r.RecordedAt.UTC()
	return &r, nil
}

// Latest returns the newest reading of a vital type recorded at or before asOf
func (s *Store) Latest(ctx context.Context, patientID string, vitalType model.VitalType, asOf time.Time) (*model.VitalReading, error) {
	row := s.queryRow(ctx, `
		SELECT `+vitalColumns+`
		FROM vitals
		WHERE patient_id = ? AND vital_type = ? AND recorded_at <= ?
		ORDER BY recorded_at DESC
		LIMIT 1`,
		patientID, string(vitalType), utc(asOf))

	r, err := scanVital(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest vital: %w", err)
	}
	return r, nil
}

// Recent returns up to limit readings recorded at or before asOf, newest first
func (s *Store) Recent(ctx context.Context, patientID string, vitalType model.VitalType, limit int, asOf time.Time) ([]model.VitalReading, error) {
	rows, err := s.query(ctx, `
		SELECT `+vitalColumns+`
		FROM vitals
		WHERE patient_id = ? AND vital_type = ? AND recorded_at <= ?
		ORDER BY recorded_at DESC
		LIMIT ?`,
		patientID, string(vitalType), utc(asOf), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent vitals: %w", err)
	}
	defer rows.Close()

	readings := make([]model.VitalReading, 0, limit)
	for rows.Next() {
		r, err := scanVital(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vital: %w", err)
		}
		readings = append(readings, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return readings, nil
}

// EarliestSince returns the oldest reading recorded in [since, asOf]
func (s *Store) EarliestSince(ctx context.Context, patientID string, vitalType model.VitalType, since, asOf time.Time) (*model.VitalReading, error) {
	row := s.queryRow(ctx, `
		SELECT `+vitalColumns+`
		FROM vitals
		WHERE patient_id = ? AND vital_type = ? AND recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at ASC
		LIMIT 1`,
		patientID, string(vitalType), utc(since), utc(asOf))

	r, err := scanVital(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query earliest vital: %w", err)
	}
	return r, nil
}

// MissedMedicationCount counts missed doses scheduled in [since, asOf]
func (s *Store) MissedMedicationCount(ctx context.Context, patientID string, since, asOf time.Time) (int, error) {
	var count int
	err := s.queryRow(ctx, `
		SELECT COUNT(*)
		FROM medication_logs
		WHERE patient_id = ? AND status = ? AND scheduled_at >= ? AND scheduled_at <= ?`,
		patientID, string(model.MedicationStatusMissed), utc(since), utc(asOf)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count missed medications: %w", err)
	}
	return count, nil
}

// ListActivePatients returns the distinct patients with a reading recorded at
// or after since
func (s *Store) ListActivePatients(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.query(ctx, `
		SELECT DISTINCT patient_id
		FROM vitals
		WHERE recorded_at >= ?
		ORDER BY patient_id`,
		utc(since))
	if err != nil {
		return nil, fmt.Errorf("failed to list active patients: %w", err)
	}
	defer rows.Close()

	var patients []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan patient id: %w", err)
		}
		patients = append(patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return patients, nil
}

// InsertVital stores a reading. A missing ID is generated.
func (s *Store) InsertVital(ctx context.Context, r *model.VitalReading) error {
	if r.PatientID == "" || !r.Type.Valid() || r.RecordedAt.IsZero() {
		return fmt.Errorf("%w: patient %q type %q", ErrInvalidReading, r.PatientID, r.Type)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	_, err := s.exec(ctx, `
		INSERT INTO vitals (`+vitalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.PatientID, string(r.Type), r.Value, r.Unit, utc(r.RecordedAt))
	if err != nil {
		return fmt.Errorf("failed to store vital: %w", err)
	}
	return nil
}

// InsertMedicationLog stores a scheduled dose outcome. A missing ID is generated.
func (s *Store) InsertMedicationLog(ctx context.Context, l *model.MedicationLog) error {
	if l.PatientID == "" || l.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: medication log for patient %q", ErrInvalidReading, l.PatientID)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}

	var takenAt sql.NullTime
	if l.TakenAt != nil {
		takenAt = sql.NullTime{Time: utc(*l.TakenAt), Valid: true}
	}

	_, err := s.exec(ctx, `
		INSERT INTO medication_logs (id, medication_id, patient_id, scheduled_at, taken_at, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.MedicationID, l.PatientID, utc(l.ScheduledAt), takenAt, string(l.Status))
	if err != nil {
		return fmt.Errorf("failed to store medication log: %w", err)
	}
	return nil
}
