package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/rpm-engine/internal/model"
	"github.com/t77yq/rpm-engine/internal/notify"
	"github.com/t77yq/rpm-engine/internal/storage"
)

func newAlertsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List, transition and watch alerts",
	}
	cmd.AddCommand(
		newAlertsListCommand(a),
		newAlertTransitionCommand(a, "ack", "Acknowledge an active alert"),
		newAlertTransitionCommand(a, "resolve", "Resolve an active alert"),
		newAlertTransitionCommand(a, "dismiss", "Dismiss an active alert"),
		newAlertsWatchCommand(a),
	)
	return cmd
}

func newAlertsListCommand(a *app) *cobra.Command {
	var (
		filter storage.AlertFilter
		status string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			filter.Status = model.AlertStatus(status)
			alerts, err := store.ListAlerts(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if alerts == nil {
				alerts = []*model.Alert{}
			}
			return printJSON(cmd.OutOrStdout(), alerts)
		},
	}

	cmd.Flags().StringVar(&filter.PatientID, "patient", "", "Only alerts for this patient")
	cmd.Flags().StringVar(&status, "status", "", "Only alerts in this status (active, acknowledged, resolved, dismissed)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "Maximum number of alerts")
	return cmd
}

func newAlertTransitionCommand(a *app, use, short string) *cobra.Command {
	var by, note string

	cmd := &cobra.Command{
		Use:   use + " <alert-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if by == "" {
				return errors.New("--by is required")
			}
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var alert *model.Alert
			switch use {
			case "ack":
				alert, err = store.Acknowledge(ctx, args[0], by)
			case "resolve":
				alert, err = store.Resolve(ctx, args[0], by, note)
			case "dismiss":
				alert, err = store.Dismiss(ctx, args[0], by, note)
			default:
				return fmt.Errorf("unknown transition %q", use)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), alert)
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "Clinician or user performing the action")
	if use != "ack" {
		cmd.Flags().StringVar(&note, "note", "", "Resolution note")
	}
	return cmd
}

func newAlertsWatchCommand(a *app) *cobra.Command {
	var severity string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print alerts as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.NATS.Enabled {
				return errors.New("nats.enabled must be true to watch alerts")
			}
			sev := model.AlertSeverity(severity)
			if sev != "" && !sev.Valid() {
				return fmt.Errorf("unknown severity %q", severity)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			nc, js, err := a.connectNATS()
			if err != nil {
				return err
			}
			defer nc.Close()

			publisher := notify.NewPublisher(a.logger, js)
			if err := publisher.EnsureStream(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			sub, err := publisher.Subscribe(sev, func(alert *model.Alert) {
				if err := printJSON(out, alert); err != nil {
					a.logger.Warn("Failed to print alert", zap.Error(err))
				}
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&severity, "severity", "", "Only this severity (critical, elevated, informational)")
	return cmd
}
