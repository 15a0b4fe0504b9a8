package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/rpm-engine/internal/model"
)

const alertColumns = `id, patient_id, rule_id, rule_name, severity, title, description, evidence,
	status, created_at, resolved_at, resolved_by, resolution_note`

// AlertFilter narrows ListAlerts. Empty fields match everything.
type AlertFilter struct {
	PatientID string
	Status    model.AlertStatus
	Limit     int
}

// HasActiveAlert reports whether an active alert exists for the patient and rule
func (s *Store) HasActiveAlert(ctx context.Context, patientID, ruleID string) (bool, error) {
	var count int
	err := s.queryRow(ctx, `
		SELECT COUNT(*)
		FROM alerts
		WHERE patient_id = ? AND rule_id = ? AND status = ?`,
		patientID, ruleID, string(model.AlertStatusActive)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query active alerts: %w", err)
	}
	return count > 0, nil
}

// CreateAlert persists a pending alert as an active alert record. If an active
// alert for the same patient and rule already exists, ErrDuplicateActiveAlert
// is returned and nothing is written.
func (s *Store) CreateAlert(ctx context.Context, pending model.PendingAlert, createdAt time.Time) (*model.Alert, error) {
	evidence, err := json.Marshal(pending.Evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evidence: %w", err)
	}

	alert := &model.Alert{
		ID:          uuid.NewString(),
		PatientID:   pending.PatientID,
		RuleID:      pending.RuleID,
		RuleName:    pending.RuleName,
		Severity:    pending.Severity,
		Title:       pending.Title,
		Description: pending.Description,
		Evidence:    evidence,
		Status:      model.AlertStatusActive,
		CreatedAt:   utc(createdAt),
	}

	_, err = s.exec(ctx, `
		INSERT INTO alerts (
			id, patient_id, rule_id, rule_name, severity, title, description, evidence, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.PatientID,
		alert.RuleID,
		alert.RuleName,
		string(alert.Severity),
		alert.Title,
		alert.Description,
		string(alert.Evidence),
		string(alert.Status),
		alert.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: patient %s rule %s", ErrDuplicateActiveAlert, pending.PatientID, pending.RuleID)
		}
		return nil, fmt.Errorf("failed to store alert: %w", err)
	}

	s.logger.Info("Alert created",
		zap.String("alert_id", alert.ID),
		zap.String("patient_id", alert.PatientID),
		zap.String("rule_id", alert.RuleID),
		zap.String("severity", string(alert.Severity)))

	return alert, nil
}

func scanAlert(row scanner) (*model.Alert, error) {
	var (
		a              model.Alert
		evidence       []byte
		resolvedAt     sql.NullTime
		resolvedBy     sql.NullString
		resolutionNote sql.NullString
	)
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.RuleID,
		&a.RuleName,
		&a.Severity,
		&a.Title,
		&a.Description,
		&evidence,
		&a.Status,
		&a.CreatedAt,
		&resolvedAt,
		&resolvedBy,
		&resolutionNote,
	)
	if err != nil {
		return nil, err
	}

	a.CreatedAt = a.CreatedAt.UTC()
	if len(evidence) > 0 {
		a.Evidence = json.RawMessage(evidence)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		a.ResolvedAt = &t
	}
	a.ResolvedBy = resolvedBy.String
	a.ResolutionNote = resolutionNote.String
	return &a, nil
}

// GetAlert retrieves an alert by ID
func (s *Store) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	row := s.queryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	return a, nil
}

// ListAlerts returns alerts matching the filter, newest first
func (s *Store) ListAlerts(ctx context.Context, filter AlertFilter) ([]*model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1 = 1`
	args := make([]interface{}, 0, 3)

	if filter.PatientID != "" {
		query += " AND patient_id = ?"
		args = append(args, filter.PatientID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return alerts, nil
}

// Acknowledge marks an active alert as seen by a clinician
func (s *Store) Acknowledge(ctx context.Context, id, by string) (*model.Alert, error) {
	return s.transition(ctx, id, model.AlertStatusAcknowledged, by, "")
}

// Resolve closes an active alert with a resolution note
func (s *Store) Resolve(ctx context.Context, id, by, note string) (*model.Alert, error) {
	return s.transition(ctx, id, model.AlertStatusResolved, by, note)
}

// Dismiss closes an active alert without clinical action
func (s *Store) Dismiss(ctx context.Context, id, by, note string) (*model.Alert, error) {
	return s.transition(ctx, id, model.AlertStatusDismissed, by, note)
}

// transition moves an alert out of the active state. Only active alerts can
// transition; once they leave it the rule may fire again.
func (s *Store) transition(ctx context.Context, id string, to model.AlertStatus, by, note string) (*model.Alert, error) {
	at := utc(s.now())
	result, err := s.exec(ctx, `
		UPDATE alerts SET
			status = ?,
			resolved_at = ?,
			resolved_by = ?,
			resolution_note = ?
		WHERE id = ? AND status = ?`,
		string(to),
		at,
		sql.NullString{String: by, Valid: by != ""},
		sql.NullString{String: note, Valid: note != ""},
		id,
		string(model.AlertStatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetAlert(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrAlertNotActive, id)
	}

	s.logger.Info("Alert status changed",
		zap.String("alert_id", id),
		zap.String("status", string(to)),
		zap.String("by", by))

	return s.GetAlert(ctx, id)
}
