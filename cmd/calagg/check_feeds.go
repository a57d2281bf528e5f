package main

import (
	"github.com/spf13/cobra"

	"calagg/internal/pipeline"
)

func newCheckFeedsCmd(flags *rootFlags) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "check-feeds",
		Short: "Validate the feed registry and make sure every feed parses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(flags)
			if err != nil {
				return err
			}
			_, err = pipeline.New(s).CheckFeeds(cmd.Context(), offline)
			return err
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Only validate the registry; do not fetch feeds")
	return cmd
}
