package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/scraper"
	"github.com/JakeFAU/content-orchestrator/internal/server"
	"github.com/JakeFAU/content-orchestrator/internal/storage/memory"
)

type waitRunOptions struct {
	runID    string
	interval time.Duration
	timeout  time.Duration
}

// newWaitRunCmd polls a provider run until it finishes or the ceiling passes.
// The run is never cancelled by this command.
func newWaitRunCmd(root *rootOptions) *cobra.Command {
	opts := &waitRunOptions{}
	cmd := &cobra.Command{
		Use:   "wait-run",
		Short: "Poll a Lobstr run until it finishes.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			interval, timeout := opts.interval, opts.timeout
			if interval <= 0 {
				interval = cfg.Lobstr.PollInterval()
			}
			if timeout <= 0 {
				timeout = cfg.Lobstr.PollTimeout()
			}
			svc := server.NewScraper(cfg, memory.NewLeadStore(), logger)
			res, err := scraper.NewPoller(svc, interval, timeout, logger).
				Wait(cmd.Context(), scraper.Request{Type: scraper.OpGetStatus, LobstrRunID: opts.runID})
			if err != nil {
				return fmt.Errorf("wait for run %s: %w", opts.runID, err)
			}
			if res.TimedOut {
				logger.Warn(res.Notice, zap.String("lobstr_run", opts.runID))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "Lobstr run id")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "poll interval (default from config)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "poll ceiling (default from config)")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}
