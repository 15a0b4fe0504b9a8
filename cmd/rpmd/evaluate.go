package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/t77yq/rpm-engine/internal/job"
	"github.com/t77yq/rpm-engine/internal/model"
)

func newEvaluateCommand(a *app) *cobra.Command {
	var (
		patientID string
		persist   bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one patient and print the pending alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if patientID == "" {
				return errors.New("--patient is required")
			}
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			eng, err := a.newEngine(store)
			if err != nil {
				return err
			}

			if !persist {
				pending, err := eng.Evaluate(ctx, patientID)
				if err != nil {
					return err
				}
				if pending == nil {
					pending = []model.PendingAlert{}
				}
				return printJSON(cmd.OutOrStdout(), pending)
			}

			runner := job.NewRunner(a.logger, eng, store)
			res, err := runner.EvaluatePatient(ctx, patientID)
			if err != nil {
				return err
			}
			if res.Raised == nil {
				res.Raised = []*model.Alert{}
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"raised":     res.Raised,
				"duplicates": res.Duplicates,
			})
		},
	}

	cmd.Flags().StringVar(&patientID, "patient", "", "Patient ID")
	cmd.Flags().BoolVar(&persist, "persist", false, "Store the resulting alerts as active")
	return cmd
}
