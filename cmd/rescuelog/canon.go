package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCanonCmd(g *globalFlags) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "canon [location...]",
		Short: "Resolve site names and aliases to canonical names",
		Long: `Print the canonical site name for each argument, or every canonical
name with --list.

Examples:
  rescuelog canon "aldi wp" "marianos sl"
  rescuelog canon --list --aliases sites.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, commandFlags{})
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			out := cmd.OutOrStdout()
			if list {
				for _, name := range a.aliases.Canonicals() {
					fmt.Fprintln(out, name)
				}
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("usage: rescuelog canon <location>... (or --list)")
			}
			for _, raw := range args {
				fmt.Fprintf(out, "%s => %s\n", strings.TrimSpace(raw), a.aliases.Canonicalize(raw))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list canonical site names")
	return cmd
}
