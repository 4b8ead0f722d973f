package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/observability"
)

func testRun(region string, low, high float64) *domain.Run {
	return &domain.Run{
		RunID:          "run-" + region,
		Region:         region,
		CurIndex:       4,
		CurCollectedAt: time.Date(2020, 11, 5, 9, 0, 0, 0, time.UTC),
		Alpha:          0.05,
		CandidateA:     "Biden",
		CandidateB:     "Trump",
		Margin:         domain.MarginInterval{Low: low, High: high, CurrentDiff: 12},
		Counties: []domain.CountyEstimate{
			{County: "Cobb", Source: domain.SourceDifferential},
			{County: "Fulton", Source: domain.SourceMail},
			{County: "Hall", Source: domain.SourceDifferential},
		},
	}
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
	hub := NewHub(nil, m, zerolog.Nop())
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, server, m
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) MarginUpdate {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var u MarginUpdate
	require.NoError(t, json.Unmarshal(data, &u))
	return u
}

func TestHub_PublishReachesClient(t *testing.T) {
	hub, server, m := newTestHub(t)
	conn := dial(t, server, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(testRun("GA", -150.5, 320.25)))

	u := readUpdate(t, conn)
	assert.Equal(t, "margin", u.Type)
	assert.Equal(t, "GA", u.Region)
	assert.Equal(t, -150.5, u.Margin.Low)
	assert.Equal(t, 320.25, u.Margin.High)
	assert.Equal(t, int64(12), u.CurrentDiff)
	assert.Equal(t, 2, u.Counties["DIFFERENTIAL"])
	assert.Equal(t, 1, u.Counties["MAIL"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamBroadcasts))
}

func TestHub_NewClientGetsLatest(t *testing.T) {
	hub, server, _ := newTestHub(t)
	require.NoError(t, hub.Publish(testRun("GA", 1, 2)))
	require.NoError(t, hub.Publish(testRun("GA", 3, 4)))

	conn := dial(t, server, "")
	u := readUpdate(t, conn)
	assert.Equal(t, 3.0, u.Margin.Low, "only the latest update per region is replayed")
}

func TestHub_RegionFilter(t *testing.T) {
	hub, server, _ := newTestHub(t)
	conn := dial(t, server, "?region=PA")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(testRun("GA", 1, 2)))
	require.NoError(t, hub.Publish(testRun("PA", 5, 6)))

	u := readUpdate(t, conn)
	assert.Equal(t, "PA", u.Region)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, server, m := newTestHub(t)
	conn := dial(t, server, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StreamClients))
}

func TestHub_Close(t *testing.T) {
	hub, server, _ := newTestHub(t)
	conn := dial(t, server, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())
	assert.ErrorIs(t, hub.Publish(testRun("GA", 1, 2)), ErrHubClosed)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	hub.Close() // idempotent
}
