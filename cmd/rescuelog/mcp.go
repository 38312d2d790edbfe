package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/hurttlocker/rescuelog/internal/extract"
	"github.com/hurttlocker/rescuelog/internal/mcp"
)

func newMCPCmd(g *globalFlags) *cobra.Command {
	var cf commandFlags
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long: `Expose rescue_extract, rescue_canonicalize, rescue_search, rescue_get and
rescue_stats as Model Context Protocol tools over stdio.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, cf)
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			window, err := a.cfg.WindowDuration()
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			srv := mcp.NewServer(mcp.ServerConfig{
				Store:    s,
				Engine:   a.engine(s),
				Pipeline: extract.NewPipeline(a.weights, extract.WithLogger(a.logger), extract.WithWindow(window)),
				Version:  version,
			})
			return server.ServeStdio(srv)
		},
	}
	cmd.Flags().StringVar(&cf.window, "window", "", "idle gap that closes a session")
	return cmd
}
