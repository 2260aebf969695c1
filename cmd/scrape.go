package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/trendscraper/internal/pipeline"
	"github.com/JakeFAU/trendscraper/internal/report"
)

// newScrapeCmd runs one scrape and prints its report as JSON.
func newScrapeCmd() *cobra.Command {
	var (
		niche     string
		limit     int
		platforms []string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs a single scrape for a niche and prints the report",
		Long: `Scrapes every selected platform for the niche, ranks the hashtags found and
prints the run report. The run is stored like any other run, so later runs
can compute hashtag velocity against it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer func() {
				if cerr := a.Close(cmd.Context()); cerr != nil {
					rt.logger.Warn("failed to close services", zap.Error(cerr))
				}
			}()

			req := pipeline.Request{Niche: niche, Platforms: platforms}
			if cmd.Flags().Changed("limit") {
				req.Limit = &limit
			}
			rep, err := a.Pipeline.Run(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("run scrape: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if rep.Status == report.StatusFailed {
				return fmt.Errorf("run %s failed on every platform", rep.RunID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&niche, "niche", "n", "", "niche to search for, e.g. \"dance\"")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum posts per platform (default from config)")
	cmd.Flags().StringSliceVarP(&platforms, "platform", "p", nil, "platforms to scrape (default from config)")
	_ = cmd.MarkFlagRequired("niche")
	return cmd
}
