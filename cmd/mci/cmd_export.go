package main

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/feed"
)

func newExportCmd(opts *options) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored snapshot history as a JSON feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			regions := cfg.Regions
			if len(regions) == 0 {
				if regions, err = s.snapshots.ListRegions(ctx); err != nil {
					return err
				}
			}

			var snaps []*domain.Snapshot
			for _, region := range regions {
				hist, err := s.snapshots.GetByRegion(ctx, region)
				if err != nil {
					return err
				}
				snaps = append(snaps, hist...)
			}

			var buf bytes.Buffer
			if err := feed.Encode(&buf, snaps); err != nil {
				return err
			}
			log.Info().Strs("regions", regions).Int("snapshots", len(snaps)).Msg("export finished")
			return writeOutput(out, buf.String())
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write output to file instead of stdout")
	return cmd
}
