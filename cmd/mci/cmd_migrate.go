package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage/migrations"
	pgstore "github.com/zhongzachary/MultinomialCIProject2020/internal/storage/postgres"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL and ClickHouse schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)
			ctx := cmd.Context()

			if cfg.Postgres.DSN == "" && cfg.Clickhouse.DSN == "" {
				return errors.New("nothing to migrate: set postgres or clickhouse dsn")
			}

			if cfg.Postgres.DSN != "" {
				pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
				if err != nil {
					return err
				}
				defer pool.Close()
				if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
					return err
				}
				log.Info().Msg("postgres migrations applied")
			}

			if cfg.Clickhouse.DSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN)
				if err != nil {
					return err
				}
				conn.Close()
				log.Info().Msg("clickhouse migrations applied")
			}
			return nil
		},
	}
}
