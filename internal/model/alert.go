package model

import (
	"encoding/json"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	AlertSeverityInformational AlertSeverity = "informational"
	AlertSeverityElevated      AlertSeverity = "elevated"
	AlertSeverityCritical      AlertSeverity = "critical"
)

// Valid reports whether s is one of the known severities
func (s AlertSeverity) Valid() bool {
	switch s {
	case AlertSeverityInformational, AlertSeverityElevated, AlertSeverityCritical:
		return true
	}
	return false
}

// AlertStatus represents the lifecycle state of a persisted alert
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusDismissed    AlertStatus = "dismissed"
)

// Terminal reports whether no further transition is allowed from s
func (s AlertStatus) Terminal() bool {
	return s != AlertStatusActive
}

// Evidence is the free-form snapshot of values that triggered an alert
type Evidence map[string]interface{}

// PendingAlert is the engine output for a single rule firing. It has not been
// persisted yet.
type PendingAlert struct {
	PatientID   string        `json:"patient_id"`
	Severity    AlertSeverity `json:"severity"`
	RuleID      string        `json:"rule_id"`
	RuleName    string        `json:"rule_name"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Evidence    Evidence      `json:"evidence"`
}

// Alert represents a persisted alert record
type Alert struct {
	ID             string          `json:"id"`
	PatientID      string          `json:"patient_id"`
	RuleID         string          `json:"rule_id"`
	RuleName       string          `json:"rule_name"`
	Severity       AlertSeverity   `json:"severity"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Evidence       json.RawMessage `json:"evidence,omitempty"`
	Status         AlertStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy     string          `json:"resolved_by,omitempty"`
	ResolutionNote string          `json:"resolution_note,omitempty"`
}
