package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/config"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/observability"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/pipeline"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/stream"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Re-estimate on an interval and push margins over websocket",
		Long: `serve reloads snapshot history on every tick, runs the estimator for each
configured region, stores runs, updates Prometheus gauges and broadcasts the
margin to websocket clients on /ws (optionally ?region=GA).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			log := newLogger(cfg.LogLevel)
			ctx := cmd.Context()

			s, err := openStores(ctx, cfg, opts.feedPath, log)
			if err != nil {
				return err
			}
			defer s.cleanup()

			hub := stream.NewHub(nil, observability.DefaultMetrics, log.With().Str("component", "stream").Logger())
			defer hub.Close()

			est, err := newEstimator(cfg, s, log.With().Str("component", "pipeline").Logger())
			if err != nil {
				return err
			}
			est.WithPublisher(hub)

			srv := &server{cfg: cfg, estimator: est, hub: hub, log: log, started: time.Now()}
			return srv.run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address for /ws, /metrics, /status")
	return cmd
}

// server runs the estimator on a schedule behind an HTTP front.
type server struct {
	cfg       *config.Config
	estimator *pipeline.Estimator
	hub       *stream.Hub
	log       zerolog.Logger
	started   time.Time

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr string
	runs    int
}

func (s *server) run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/ws", s.hub)

	httpSrv := &http.Server{Addr: s.cfg.Server.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Server.Addr).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.tick(ctx)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("shutting down")
			s.hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every region once, skipping if the previous tick is still going.
func (s *server) tick(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("previous run still in progress, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	runs, err := s.estimator.RunAll(ctx, s.cfg.Regions)

	s.mu.Lock()
	s.running = false
	s.lastRun = time.Now()
	s.runs += len(runs)
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
	Running   bool      `json:"running"`
	Clients   int       `json:"clients"`
	Regions   []string  `json:"regions,omitempty"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		LastRun:   s.lastRun,
		LastError: s.lastErr,
		Runs:      s.runs,
		Running:   s.running,
		Clients:   s.hub.Clients(),
		Regions:   s.cfg.Regions,
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
