// Package stream pushes margin updates to websocket subscribers.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/observability"
)

// ErrHubClosed is returned by Publish after Close.
var ErrHubClosed = errors.New("stream hub closed")

// HubConfig configures websocket behavior.
type HubConfig struct {
	// WriteTimeout is timeout for writing one message.
	WriteTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a client may stay silent, pongs included.
	ReadTimeout time.Duration
	// SendBuffer is the per-client queue length; a full queue drops messages.
	SendBuffer int
}

// DefaultHubConfig returns default websocket configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		SendBuffer:   16,
	}
}

// RangeJSON is a low/high pair on the wire.
type RangeJSON struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// MarginUpdate is the message pushed for every completed run.
type MarginUpdate struct {
	Type           string         `json:"type"`
	RunID          string         `json:"run_id"`
	Region         string         `json:"region"`
	RefIndex       int            `json:"ref_index"`
	CurIndex       int            `json:"cur_index"`
	CurCollectedAt time.Time      `json:"cur_collected_at"`
	Alpha          float64        `json:"alpha"`
	CandidateA     string         `json:"candidate_a"`
	CandidateB     string         `json:"candidate_b"`
	Margin         RangeJSON      `json:"margin"`
	CurrentDiff    int64          `json:"current_diff"`
	RemainingA     RangeJSON      `json:"remaining_a"`
	RemainingB     RangeJSON      `json:"remaining_b"`
	Counties       map[string]int `json:"counties"` // by source
}

// NewMarginUpdate converts a run into its wire form.
func NewMarginUpdate(run *domain.Run) MarginUpdate {
	counties := make(map[string]int, len(domain.SourcePriority))
	for s, n := range run.SourceCounts() {
		counties[string(s)] = n
	}
	return MarginUpdate{
		Type:           "margin",
		RunID:          run.RunID,
		Region:         run.Region,
		RefIndex:       run.RefIndex,
		CurIndex:       run.CurIndex,
		CurCollectedAt: run.CurCollectedAt.UTC(),
		Alpha:          run.Alpha,
		CandidateA:     run.CandidateA,
		CandidateB:     run.CandidateB,
		Margin:         RangeJSON{Low: run.Margin.Low, High: run.Margin.High},
		CurrentDiff:    run.Margin.CurrentDiff,
		RemainingA:     RangeJSON{Low: run.RemainingA.Low, High: run.RemainingA.High},
		RemainingB:     RangeJSON{Low: run.RemainingB.Low, High: run.RemainingB.High},
		Counties:       counties,
	}
}

type client struct {
	conn   *websocket.Conn
	region string // empty subscribes to every region
	send   chan []byte
}

func (c *client) wants(region string) bool {
	return c.region == "" || c.region == region
}

// Hub fans run results out to websocket clients. New clients first receive
// the latest update of every region they subscribe to.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	metrics  *observability.Metrics
	log      zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  map[string][]byte // region -> last encoded update

	closed atomic.Bool
}

// NewHub creates a hub. A nil config uses DefaultHubConfig.
func NewHub(config *HubConfig, metrics *observability.Metrics, log zerolog.Logger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	return &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: metrics,
		log:     log,
		clients: make(map[*client]struct{}),
		latest:  make(map[string][]byte),
	}
}

// Publish broadcasts run to subscribed clients.
func (h *Hub) Publish(run *domain.Run) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	msg, err := json.Marshal(NewMarginUpdate(run))
	if err != nil {
		return fmt.Errorf("encode margin update: %w", err)
	}

	h.mu.Lock()
	h.latest[run.Region] = msg
	for c := range h.clients {
		if c.wants(run.Region) {
			h.enqueue(c, msg)
		}
	}
	h.mu.Unlock()

	h.metrics.StreamBroadcasts.Inc()
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client.
// The optional region query parameter narrows the subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade")
		return
	}

	c := &client{
		conn:   conn,
		region: r.URL.Query().Get("region"),
		send:   make(chan []byte, h.config.SendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	for region, msg := range h.latest {
		if c.wants(region) {
			h.enqueue(c, msg)
		}
	}
	h.mu.Unlock()
	h.metrics.StreamClients.Inc()

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Close disconnects every client and rejects further publishes.
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

// enqueue never blocks. Callers hold h.mu so send cannot be closed underneath.
func (h *Hub) enqueue(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.metrics.StreamDropped.Inc()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.StreamClients.Dec()
}

// writeLoop drains the client queue and sends pings.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop discards client frames and detects disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
