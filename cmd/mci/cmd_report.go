package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/config"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/idhash"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/reporting"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
	chstore "github.com/zhongzachary/MultinomialCIProject2020/internal/storage/clickhouse"
)

// reportQuery selects stored runs: one run by ID, or the margin history of regions.
type reportQuery struct {
	runID  string
	format string
}

func newReportCmd(opts *options) *cobra.Command {
	var q reportQuery
	var out string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render stored runs from ClickHouse: one run (--run-id) or region history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if q.format != "markdown" && q.format != "csv" {
				return fmt.Errorf("unknown format %q (markdown|csv)", q.format)
			}
			if q.runID != "" && !idhash.ValidRunID(q.runID) {
				return fmt.Errorf("invalid run id %q", q.runID)
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.Clickhouse.DSN == "" {
				return errors.New("report needs a clickhouse dsn")
			}
			if q.runID == "" && len(cfg.Regions) == 0 {
				return errors.New("report needs --run-id or --region")
			}
			ctx := cmd.Context()

			conn, err := chstore.NewConn(ctx, cfg.Clickhouse.DSN)
			if err != nil {
				return err
			}
			defer conn.Close()

			content, err := renderStored(ctx, chstore.NewRunStore(conn), cfg, q)
			if err != nil {
				return err
			}
			return writeOutput(out, content)
		},
	}

	cmd.Flags().StringVar(&q.runID, "run-id", "", "Stored run to render")
	cmd.Flags().StringVar(&q.format, "format", "markdown", "Output format (markdown|csv)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write output to file instead of stdout")
	return cmd
}

// renderStored reads runs back from the run store and renders them.
func renderStored(ctx context.Context, runs storage.RunStore, cfg *config.Config, q reportQuery) (string, error) {
	gen := reporting.NewGenerator(runs)

	if q.runID != "" {
		report, err := gen.Generate(ctx, q.runID)
		if err != nil {
			return "", err
		}
		if q.format == "csv" {
			return reporting.RenderCountyCSV(report), nil
		}
		return reporting.RenderMarkdown(report), nil
	}

	var sb strings.Builder
	for _, region := range cfg.Regions {
		h, err := gen.GenerateHistory(ctx, region, cfg.CandidateA, cfg.CandidateB)
		if err != nil {
			return "", err
		}
		if q.format == "csv" {
			sb.WriteString(reporting.RenderHistoryCSV(h))
		} else {
			sb.WriteString(reporting.RenderHistoryMarkdown(h))
		}
	}
	return sb.String(), nil
}
