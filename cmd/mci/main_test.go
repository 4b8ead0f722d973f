package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/config"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/feed"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/idhash"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
)

const feedJSON = `{
  "regions": [{
    "region": "GA",
    "candidates": ["Biden", "Trump"],
    "snapshots": [
      {"collected_at": "2020-11-04T06:00:00Z", "counties": [
        {"county": "Cobb", "votes": {"Biden": 1000, "Trump": 800}, "total_expected": 2000},
        {"county": "Fulton", "votes": {"Biden": 500, "Trump": 500}, "mail_votes": {"Biden": 300, "Trump": 100}, "total_expected": 1200}
      ]},
      {"collected_at": "2020-11-04T07:00:00Z", "counties": [
        {"county": "Cobb", "votes": {"Biden": 1050, "Trump": 830}, "total_expected": 2000},
        {"county": "Fulton", "votes": {"Biden": 500, "Trump": 500}, "mail_votes": {"Biden": 300, "Trump": 100}, "total_expected": 1200}
      ]},
      {"collected_at": "2020-11-04T08:00:00Z", "counties": [
        {"county": "Cobb", "votes": {"Biden": 1100, "Trump": 860}, "total_expected": 2000},
        {"county": "Fulton", "votes": {"Biden": 550, "Trump": 520}, "mail_votes": {"Biden": 300, "Trump": 100}, "total_expected": 1200}
      ]}
    ]
  }]
}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	feedPath := filepath.Join(dir, "feed.json")
	require.NoError(t, os.WriteFile(feedPath, []byte(feedJSON), 0o644))
	outPath := filepath.Join(dir, "out")

	cmd := newRootCmd()
	cmd.SetArgs(append(args,
		"--feed", feedPath,
		"--config", filepath.Join(dir, "absent.yaml"),
		"--out", outPath,
		"--log-level", "error",
	))
	err := cmd.ExecuteContext(context.Background())

	out, readErr := os.ReadFile(outPath)
	if readErr != nil {
		return "", err
	}
	return string(out), err
}

func TestEstimateCommand(t *testing.T) {
	out, err := execute(t, "estimate", "--candidate-a", "Biden", "--candidate-b", "Trump")
	require.NoError(t, err)

	assert.Contains(t, out, "# Margin Estimate: GA")
	assert.Contains(t, out, "## Margin (Biden - Trump)")
	assert.Contains(t, out, "| Cobb | DIFFERENTIAL |")
}

func TestEstimateCommand_CSV(t *testing.T) {
	out, err := execute(t, "estimate", "--format", "csv", "--ref", "1", "--cur", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5, "header plus two candidates for two counties")
	assert.True(t, strings.HasPrefix(lines[1], "Cobb,TOTAL,"), "unchanged county falls back: %s", lines[1])
	assert.True(t, strings.HasPrefix(lines[3], "Fulton,MAIL,"), "mail beats total: %s", lines[3])
}

func TestBackfillCommand(t *testing.T) {
	out, err := execute(t, "backfill", "--format", "csv", "--region", "GA")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3, "header plus two snapshots after the reference")
}

func TestEstimateCommand_InvalidAlpha(t *testing.T) {
	_, err := execute(t, "estimate", "--alpha", "1.5")
	assert.Error(t, err)
}

func TestEstimateCommand_BadFormat(t *testing.T) {
	_, err := execute(t, "estimate", "--format", "xml")
	assert.Error(t, err)
}

func TestExportCommand_RoundTripsFeed(t *testing.T) {
	out, err := execute(t, "export")
	require.NoError(t, err)

	snaps, err := feed.Decode(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, "GA", snaps[0].Region)
	assert.Equal(t, int64(860), snaps[2].Row("Cobb").Votes["Trump"])
}

func TestRenderStored(t *testing.T) {
	ctx := context.Background()
	feedPath := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(feedPath, []byte(feedJSON), 0o644))

	cfg := config.Default()
	s, err := openStores(ctx, cfg, feedPath, zerolog.Nop())
	require.NoError(t, err)
	defer s.cleanup()

	est, err := newEstimator(cfg, s, zerolog.Nop())
	require.NoError(t, err)
	runs, err := est.RunAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	out, err := renderStored(ctx, s.runs, cfg, reportQuery{runID: runs[0].RunID, format: "markdown"})
	require.NoError(t, err)
	assert.Contains(t, out, "# Margin Estimate: GA")
	assert.Contains(t, out, runs[0].RunID)

	cfg.Regions = []string{"GA"}
	out, err = renderStored(ctx, s.runs, cfg, reportQuery{format: "csv"})
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2, "header plus one stored run")

	_, err = renderStored(ctx, s.runs, cfg, reportQuery{runID: idhash.ComputeRunID("PA", time.Time{}, time.Time{}, 0.05, "goodman", "Biden", "Trump"), format: "markdown"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReportCommand_RejectsBadInput(t *testing.T) {
	_, err := execute(t, "report", "--run-id", "not-a-run-id!")
	assert.ErrorContains(t, err, "invalid run id")

	_, err = execute(t, "report", "--region", "GA")
	assert.ErrorContains(t, err, "clickhouse dsn")
}

func TestConfigInitCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mci.yaml")

	run := func(args ...string) error {
		cmd := newRootCmd()
		cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "absent.yaml"), "--log-level", "error"}, args...))
		return cmd.ExecuteContext(context.Background())
	}

	require.NoError(t, run("config", "init", path, "--alpha", "0.1", "--region", "GA"))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Alpha)
	assert.Equal(t, []string{"GA"}, cfg.Regions)

	assert.Error(t, run("config", "init", path), "existing file is not overwritten")
	require.NoError(t, run("config", "init", path, "--force"))
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.05, cfg.Alpha)
}
