// Command rescuelog turns food-rescue chat transcripts into structured
// pickup and drop-off records, and serves them for browsing and auditing.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/rescuelog/internal/config"
)

var version = "dev"

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	dbPath     string
	aliases    string
	weights    string
	logLevel   string
	logFormat  string
}

func main() {
	if _, err := config.LoadDotEnv("."); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "rescuelog",
		Short: "Extract food rescue records from volunteer chat transcripts",
		Long: `rescuelog groups chat messages into sessions and extracts where food was
picked up, where it was dropped off, and what was moved, with estimated
pounds per item.

Examples:
  # Extract a Slack export to JSONL and store it
  rescuelog extract slack.csv --out records.jsonl

  # Browse the stored records over HTTP
  rescuelog serve --addr :5055

  # Resolve a site alias
  rescuelog canon "aldi wp"`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default ~/.rescuelog/config.yaml)")
	pf.StringVar(&g.dbPath, "db", "", "record database path")
	pf.StringVar(&g.aliases, "aliases", "", "site alias table (JSON or YAML)")
	pf.StringVar(&g.weights, "weights", "", "weight rate table (JSON or YAML)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: console or json")

	root.AddCommand(
		newExtractCmd(g),
		newStatsCmd(g),
		newCanonCmd(g),
		newServeCmd(g),
		newMCPCmd(g),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rescuelog version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rescuelog %s\n", version)
		},
	}
}
