package model

import "time"

// MedicationStatus represents the adherence outcome of a scheduled dose
type MedicationStatus string

const (
	MedicationStatusTaken   MedicationStatus = "taken"
	MedicationStatusMissed  MedicationStatus = "missed"
	MedicationStatusLate    MedicationStatus = "late"
	MedicationStatusSkipped MedicationStatus = "skipped"
)

// MedicationLog represents one scheduled dose and what happened to it
type MedicationLog struct {
	ID           string           `json:"id"`
	MedicationID string           `json:"medication_id"`
	PatientID    string           `json:"patient_id"`
	ScheduledAt  time.Time        `json:"scheduled_at"`
	TakenAt      *time.Time       `json:"taken_at,omitempty"`
	Status       MedicationStatus `json:"status"`
}
