package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/reporting"
)

func newEstimateCmd(opts *options) *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the final margin from the configured snapshot pair",
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

			runs, runErr := est.RunAll(ctx, cfg.Regions)

			gen := reporting.NewGenerator(s.runs)
			var sb strings.Builder
			for _, run := range runs {
				report := gen.FromRun(run)
				if format == "csv" {
					sb.WriteString(reporting.RenderCountyCSV(report))
				} else {
					sb.WriteString(reporting.RenderMarkdown(report))
				}
			}
			if err := writeOutput(out, sb.String()); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "Output format (markdown|csv)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write output to file instead of stdout")
	return cmd
}
