package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/config"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/estimate"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/feed"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/pipeline"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
	chstore "github.com/zhongzachary/MultinomialCIProject2020/internal/storage/clickhouse"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage/memory"
	pgstore "github.com/zhongzachary/MultinomialCIProject2020/internal/storage/postgres"
)

// stores holds the snapshot and run storage in use.
type stores struct {
	snapshots storage.SnapshotStore
	runs      storage.RunStore
	cleanup   func()
}

// openStores picks storage: a feed file loads into memory, otherwise
// snapshots come from PostgreSQL. Runs go to ClickHouse when configured
// and stay in memory otherwise.
func openStores(ctx context.Context, cfg *config.Config, feedPath string, log zerolog.Logger) (*stores, error) {
	s := &stores{cleanup: func() {}}
	var closers []func()

	switch {
	case feedPath != "":
		snaps, err := feed.LoadFile(feedPath)
		if err != nil {
			return nil, err
		}
		mem := memory.NewSnapshotStore()
		for _, snap := range snaps {
			if err := mem.Insert(ctx, snap); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				return nil, fmt.Errorf("load feed %s: %w", feedPath, err)
			}
		}
		s.snapshots = mem
		log.Info().Str("feed", feedPath).Int("snapshots", len(snaps)).Msg("loaded snapshot feed")
	case cfg.Postgres.DSN != "":
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		closers = append(closers, pool.Close)
		s.snapshots = pgstore.NewSnapshotStore(pool)
	default:
		return nil, errors.New("no snapshot source: pass --feed or set postgres dsn")
	}

	if cfg.Clickhouse.DSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.Clickhouse.DSN)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, err
		}
		closers = append(closers, func() { conn.Close() })
		s.runs = chstore.NewRunStore(conn)
	} else {
		s.runs = memory.NewRunStore()
	}

	s.cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return s, nil
}

// newEstimator wires the pipeline from config.
func newEstimator(cfg *config.Config, s *stores, log zerolog.Logger) (*pipeline.Estimator, error) {
	method, err := cfg.MethodValue()
	if err != nil {
		return nil, err
	}
	params := pipeline.Params{
		Alpha:      cfg.Alpha,
		RefIndex:   cfg.RefIndex,
		CurIndex:   cfg.CurIndex,
		CandidateA: cfg.CandidateA,
		CandidateB: cfg.CandidateB,
	}
	return pipeline.NewEstimator(s.snapshots, estimate.NewBuilder(method), params).
		WithRunStore(s.runs).
		WithLogger(log), nil
}
