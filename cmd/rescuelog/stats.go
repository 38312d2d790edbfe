package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/rescuelog/internal/observe"
)

func newStatsCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, commandFlags{})
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			summary, err := observe.NewEngine(s).GetStats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			return summary.Write(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
