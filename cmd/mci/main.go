// Package main provides the mci command: election margin estimation from
// successive county vote-count snapshots.
//
//	mci estimate --feed results.json --region GA
//	mci import results.json
//	mci backfill --region GA --format csv
//	mci serve
//	mci report --run-id <id>
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/config"
)

const version = "v1.0.0"

// options holds flags shared by every subcommand.
type options struct {
	configPath    string
	postgresDSN   string
	clickhouseDSN string
	feedPath      string
	alpha         float64
	refIndex      int
	curIndex      int
	method        string
	candidateA    string
	candidateB    string
	regions       []string
	logLevel      string
}

func main() {
	loadEnvFile()

	// A second signal after stop() kills the process the default way.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:     "mci",
		Short:   "Bound the final vote margin while ballots are still being counted",
		Version: version,
		Long: `mci estimates, per county, simultaneous multinomial confidence intervals on
how the uncounted votes will split, then aggregates them into a prediction
interval for the final margin between two candidates.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "mci.yaml", "YAML config file (missing file uses defaults)")
	pf.StringVar(&opts.postgresDSN, "postgres-dsn", "", "PostgreSQL connection string for snapshot history")
	pf.StringVar(&opts.clickhouseDSN, "clickhouse-dsn", "", "ClickHouse connection string for run history")
	pf.StringVar(&opts.feedPath, "feed", "", "Read snapshot history from a JSON feed file instead of PostgreSQL")
	pf.Float64Var(&opts.alpha, "alpha", 0, "Significance level in (0,1)")
	pf.IntVar(&opts.refIndex, "ref", 0, "Reference snapshot index (negative counts from the end)")
	pf.IntVar(&opts.curIndex, "cur", -1, "Current snapshot index (negative counts from the end)")
	pf.StringVar(&opts.method, "method", "", "Interval method (goodman|quesenberry-hurst)")
	pf.StringVar(&opts.candidateA, "candidate-a", "", "Margin candidate A")
	pf.StringVar(&opts.candidateB, "candidate-b", "", "Margin candidate B")
	pf.StringSliceVar(&opts.regions, "region", nil, "Region(s) to estimate (default: all stored regions)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug|info|warn|error)")

	root.AddCommand(
		newEstimateCmd(opts),
		newBackfillCmd(opts),
		newImportCmd(opts),
		newMigrateCmd(opts),
		newServeCmd(opts),
		newReportCmd(opts),
		newExportCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// loadConfig reads the config file and lets explicitly set flags win.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("postgres-dsn") {
		cfg.Postgres.DSN = opts.postgresDSN
	}
	if flags.Changed("clickhouse-dsn") {
		cfg.Clickhouse.DSN = opts.clickhouseDSN
	}
	if flags.Changed("alpha") {
		cfg.Alpha = opts.alpha
	}
	if flags.Changed("ref") {
		cfg.RefIndex = opts.refIndex
	}
	if flags.Changed("cur") {
		cfg.CurIndex = opts.curIndex
	}
	if flags.Changed("method") {
		cfg.Method = opts.method
	}
	if flags.Changed("candidate-a") {
		cfg.CandidateA = opts.candidateA
	}
	if flags.Changed("candidate-b") {
		cfg.CandidateB = opts.candidateB
	}
	if flags.Changed("region") {
		cfg.Regions = opts.regions
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes human-readable logs to a terminal and JSON otherwise.
func newLogger(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if term.IsTerminal(int(os.Stderr.Fd())) {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("app", "mci").Logger()
}

// loadEnvFile loads KEY=VALUE pairs from .env without overriding the environment.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// writeOutput writes content to path, or stdout when path is empty.
func writeOutput(path, content string) error {
	if path == "" {
		_, err := fmt.Fprint(os.Stdout, content)
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
