package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/reporting"
)

func newBackfillCmd(opts *options) *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Compute the margin after every snapshot since the reference",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "markdown" && format != "csv" {
				return fmt.Errorf("unknown format %q (markdown|csv)", format)
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)
			ctx := cmd.Context()

			s, err := openStores(ctx, cfg, opts.feedPath, log)
			if err != nil {
				return err
			}
			defer s.cleanup()

			est, err := newEstimator(cfg, s, log)
			if err != nil {
				return err
			}

			regions := cfg.Regions
			if len(regions) == 0 {
				if regions, err = s.snapshots.ListRegions(ctx); err != nil {
					return err
				}
			}

			gen := reporting.NewGenerator(s.runs)
			var (
				sb   strings.Builder
				errs []error
			)
			for _, region := range regions {
				runs, err := est.Backfill(ctx, region)
				if err != nil {
					errs = append(errs, err)
				}
				h := gen.FromRuns(region, cfg.CandidateA, cfg.CandidateB, runs)
				if format == "csv" {
					sb.WriteString(reporting.RenderHistoryCSV(h))
				} else {
					sb.WriteString(reporting.RenderHistoryMarkdown(h))
				}
			}
			if err := writeOutput(out, sb.String()); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "Output format (markdown|csv)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write output to file instead of stdout")
	return cmd
}
