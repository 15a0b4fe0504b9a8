package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/t77yq/rpm-engine/internal/rules"
)

func newRulesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect rule definitions",
	}

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a rule file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				path = a.cfg.Rules.File
			}
			set, err := rules.Load(path)
			if err != nil {
				return err
			}

			source := path
			if source == "" {
				source = "built-in"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d threshold, %d trend, %d composite rules OK\n",
				source, len(set.Threshold), len(set.Trend), len(set.Composite))
			return nil
		},
	}
	validate.Flags().StringVar(&file, "file", "", "Rule file (default: rules.file from config)")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective rule set as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := rules.Load(a.cfg.Rules.File)
			if err != nil {
				return err
			}
			data, err := rules.Marshal(set)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.AddCommand(validate, show)
	return cmd
}
