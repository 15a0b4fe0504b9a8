package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/t77yq/rpm-engine/internal/model"
)

func newIngestCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Record vitals and medication outcomes",
	}
	cmd.AddCommand(newIngestVitalCommand(a), newIngestMedicationCommand(a))
	return cmd
}

// parseAt accepts RFC3339; empty means now
func parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func newIngestVitalCommand(a *app) *cobra.Command {
	var (
		reading    model.VitalReading
		vitalType  string
		recordedAt string
	)

	cmd := &cobra.Command{
		Use:   "vital",
		Short: "Store one vital reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseAt(recordedAt)
			if err != nil {
				return err
			}
			reading.Type = model.VitalType(vitalType)
			reading.RecordedAt = at

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.InsertVital(cmd.Context(), &reading); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), reading)
		},
	}

	cmd.Flags().StringVar(&reading.PatientID, "patient", "", "Patient ID")
	cmd.Flags().StringVar(&vitalType, "type", "", "Vital type (bp_systolic, heart_rate, weight, ...)")
	cmd.Flags().Float64Var(&reading.Value, "value", 0, "Measured value")
	cmd.Flags().StringVar(&reading.Unit, "unit", "", "Unit of measure")
	cmd.Flags().StringVar(&recordedAt, "at", "", "Recorded at, RFC3339 (default: now)")
	return cmd
}

func newIngestMedicationCommand(a *app) *cobra.Command {
	var (
		entry       model.MedicationLog
		status      string
		scheduledAt string
	)

	cmd := &cobra.Command{
		Use:   "medication",
		Short: "Store the outcome of one scheduled dose",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch model.MedicationStatus(status) {
			case model.MedicationStatusTaken, model.MedicationStatusMissed,
				model.MedicationStatusLate, model.MedicationStatusSkipped:
			default:
				return errors.New("--status must be taken, missed, late or skipped")
			}
			at, err := parseAt(scheduledAt)
			if err != nil {
				return err
			}
			entry.Status = model.MedicationStatus(status)
			entry.ScheduledAt = at

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.InsertMedicationLog(cmd.Context(), &entry); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}

	cmd.Flags().StringVar(&entry.PatientID, "patient", "", "Patient ID")
	cmd.Flags().StringVar(&entry.MedicationID, "medication", "", "Medication ID")
	cmd.Flags().StringVar(&status, "status", "", "taken, missed, late or skipped")
	cmd.Flags().StringVar(&scheduledAt, "scheduled-at", "", "Scheduled at, RFC3339 (default: now)")
	return cmd
}
