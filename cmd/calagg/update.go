package main

import (
	"github.com/spf13/cobra"

	appLog "calagg/internal/log"
	"calagg/internal/pipeline"
)

func newUpdateCmd(flags *rootFlags) *cobra.Command {
	var incremental bool
	cmd := &cobra.Command{
		Use:   "update <outdir>",
		Short: "Run one aggregation pass and write the calendars into outdir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("incremental") {
				s.Incremental = incremental
			}

			rep, err := pipeline.New(s).Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			appLog.Info("update complete", "outdir", args[0], "calendars", len(rep.Stores), "feeds", len(rep.Feeds))
			return nil
		},
	}
	cmd.Flags().BoolVar(&incremental, "incremental", false, "Seed each calendar from its previous file so only unseen events count as new")
	return cmd
}
