package stream

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/talkinghead/internal/avatar3d"
	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/lipsync"
)

type eventRecorder struct {
	mu    sync.Mutex
	types []bus.EventType
}

func (r *eventRecorder) Publish(e bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
}

func (r *eventRecorder) has(t bus.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.types {
		if got == t {
			return true
		}
	}
	return false
}

func newTestServer(t *testing.T) (*Hub, *httptest.Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	lipsync.NewMetrics(reg)
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(NewServer("", hub, reg, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return hub, srv, reg
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHub_BroadcastsFrames(t *testing.T) {
	hub, srv, _ := newTestServer(t)
	events := &eventRecorder{}
	hub.SetPublisher(events)

	conn := dial(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, events.has(bus.EventTypeClientConnected))

	weights := avatar3d.MorphWeights{0, 0.5, 1}
	require.NoError(t, hub.Render(lipsync.RenderFrame{
		Seq:       7,
		Time:      1500 * time.Millisecond,
		State:     lipsync.StateWindowActive,
		SessionID: "abc",
		Weights:   weights,
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, uint64(7), msg.Seq)
	assert.Equal(t, 1500.0, msg.TimeMs)
	assert.Equal(t, "window_active", msg.State)
	assert.Equal(t, "abc", msg.Session)
	assert.Equal(t, []float32{0, 0.5, 1}, msg.Weights)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return events.has(bus.EventTypeClientDisconnected) }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RenderWithoutClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	assert.NoError(t, hub.Render(lipsync.RenderFrame{Weights: avatar3d.NewMorphWeights(2)}))
	assert.Zero(t, hub.Clients())
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub, srv, _ := newTestServer(t)
	conn := dial(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.Clients())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestServer_Health(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 0.0, body["clients"])
}

func TestServer_Metrics(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "talkinghead_frames_total")
	assert.Contains(t, string(body), "talkinghead_phoneme_triggers_total")
}
