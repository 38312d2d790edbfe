package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/rescuelog/internal/extract"
	"github.com/hurttlocker/rescuelog/internal/ingest"
	"github.com/hurttlocker/rescuelog/internal/metrics"
	"github.com/hurttlocker/rescuelog/internal/observe"
	"github.com/hurttlocker/rescuelog/internal/record"
)

func newExtractCmd(g *globalFlags) *cobra.Command {
	var (
		cf        commandFlags
		out       string
		recursive bool
		noStore   bool
		quiet     bool
		slack     ingest.SlackConfig
	)
	cmd := &cobra.Command{
		Use:   "extract [path]",
		Short: "Extract records from a transcript file, directory or Slack channel",
		Long: `Load message events (CSV, TSV, JSON, JSONL or YAML, or Slack channel
history), group them into sessions and write one JSON record per session.
Records replace the contents of the record database unless --no-store is
given.

Examples:
  rescuelog extract slack.csv --out records.jsonl
  rescuelog extract exports/ --recursive --window 45m
  rescuelog extract slack.json --no-store > records.jsonl
  SLACK_TOKEN=xoxb-... rescuelog extract --slack-channel C0123 --days 7`,
		Args: cobra.MaximumNArgs(1),
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
			workers, err := a.cfg.WorkerCount()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var events []record.MessageEvent
			switch {
			case len(args) == 1 && len(slack.Channels) > 0:
				return fmt.Errorf("give either a path or --slack-channel, not both")
			case len(args) == 1:
				var result *ingest.ImportResult
				events, result, err = ingest.NewLoader().Load(ctx, args[0], ingest.ImportOptions{
					Recursive: recursive,
					ProgressFn: func(current, total int, file string) {
						a.logger.Debug("loading", zap.Int("file", current), zap.Int("of", total), zap.String("path", file))
					},
				})
				if err != nil {
					return err
				}
				for _, fe := range result.Errors {
					a.logger.Warn("skipped file", zap.String("path", fe.File), zap.String("error", fe.Message))
				}
			case len(slack.Channels) > 0:
				if slack.Token == "" {
					slack.Token = os.Getenv("SLACK_TOKEN")
				}
				src, err := ingest.NewSlackSource(slack)
				if err != nil {
					return err
				}
				if events, err = src.Fetch(ctx, nil); err != nil {
					return err
				}
				a.logger.Info("fetched slack history", zap.Int("events", len(events)), zap.Strings("channels", slack.Channels))
			default:
				return fmt.Errorf("usage: rescuelog extract <path> | --slack-channel <id>")
			}

			started := time.Now()
			p := extract.NewPipeline(a.weights,
				extract.WithLogger(a.logger),
				extract.WithWindow(window),
				extract.WithWorkers(workers))
			records, err := p.Run(ctx, events)
			if err != nil {
				return err
			}
			metrics.NewMetrics().ObserveRun(records, time.Since(started))

			var w io.Writer = cmd.OutOrStdout()
			summaryOut := cmd.ErrOrStderr()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating %s: %w", out, err)
				}
				defer f.Close()
				w = f
				summaryOut = cmd.OutOrStdout()
			}
			if err := extract.WriteJSONL(w, records); err != nil {
				return err
			}

			if !noStore {
				s, err := a.openStore()
				if err != nil {
					return err
				}
				defer s.Close()
				if err := s.ReplaceRecords(ctx, records); err != nil {
					return fmt.Errorf("storing records: %w", err)
				}
				a.logger.Info("records stored", zap.Int("records", len(records)), zap.String("db", a.cfg.DBPath.Value))
			}

			if quiet {
				return nil
			}
			if out != "" && out != "-" {
				fmt.Fprintf(summaryOut, "Wrote %d records to %s\n", len(records), out)
			}
			return observe.Summarize(records).Write(summaryOut)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "-", "JSONL output file (- for stdout)")
	f.BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	f.BoolVar(&noStore, "no-store", false, "do not write records to the database")
	f.BoolVarP(&quiet, "quiet", "q", false, "suppress the summary")
	f.StringVar(&cf.window, "window", "", "idle gap that closes a session (e.g. 30m, or minutes)")
	f.StringVar(&cf.workers, "workers", "", "sessions built concurrently (0 = one per CPU)")
	f.StringSliceVar(&slack.Channels, "slack-channel", nil, "read history of these Slack channel IDs instead of a file")
	f.StringVar(&slack.Token, "slack-token", "", "Slack OAuth token (default $SLACK_TOKEN)")
	f.IntVar(&slack.DaysBack, "days", 30, "days of Slack history to read")
	f.StringVar(&slack.BaseURL, "slack-api", ingest.DefaultSlackAPI, "Slack Web API base URL")
	return cmd
}
