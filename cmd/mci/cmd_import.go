package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/feed"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage/migrations"
	pgstore "github.com/zhongzachary/MultinomialCIProject2020/internal/storage/postgres"
)

func newImportCmd(opts *options) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Store a JSON snapshot feed in PostgreSQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.Postgres.DSN == "" {
				return errors.New("import needs a postgres dsn")
			}
			log := newLogger(cfg.LogLevel)
			ctx := cmd.Context()

			snaps, err := feed.LoadFile(args[0])
			if err != nil {
				return err
			}

			pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			if migrate {
				if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
					return err
				}
			}

			s := &stores{snapshots: pgstore.NewSnapshotStore(pool)}
			est, err := newEstimator(cfg, s, log)
			if err != nil {
				return err
			}

			inserted, skipped, err := est.Import(ctx, snaps)
			log.Info().Str("file", args[0]).Int("inserted", inserted).Int("skipped", skipped).Msg("import finished")
			return err
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply PostgreSQL migrations first")
	return cmd
}
