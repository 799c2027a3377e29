package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabsentry/internal/logging"
	"github.com/runnerr0/tabsentry/internal/tabs"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []Event
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) HandleCommand(_ context.Context, name string, payload json.RawMessage) interface{} {
	return map[string]interface{}{"ok": true, "echo": name, "payload": payload}
}

func (h *recordingHandler) seen() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.events...)
}

func startServer(t *testing.T, opts Options) (*Server, *recordingHandler, string) {
	t.Helper()
	s := NewServer(opts, logging.Discard())
	h := &recordingHandler{}
	s.SetHandler(h)

	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, h, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url, role string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	require.NoError(t, ws.WriteJSON(Frame{Kind: KindHello, Role: role}))
	var ack Frame
	require.NoError(t, ws.ReadJSON(&ack))
	require.Equal(t, KindHello, ack.Kind)
	require.NotEmpty(t, ack.ID)
	return ws
}

// serveBrowser answers requests the way the extension would.
func serveBrowser(ws *websocket.Conn, open []tabs.Tab, created chan<- string) {
	go func() {
		for {
			var f Frame
			if err := ws.ReadJSON(&f); err != nil {
				return
			}
			if f.Kind != KindRequest {
				continue
			}
			res := Frame{Kind: KindResult, ID: f.ID}
			switch f.Name {
			case MethodQueryTabs:
				res.Payload, _ = json.Marshal(open)
			case MethodCreateTab:
				var p createTabParams
				_ = json.Unmarshal(f.Payload, &p)
				created <- p.URL
			case MethodRemoveTab:
				res.Error = "No tab with id"
				res.Code = CodeInvalidReference
			case MethodSetBadge:
			}
			if err := ws.WriteJSON(res); err != nil {
				return
			}
		}
	}()
}

func TestServer_NoConnections(t *testing.T) {
	s, _, _ := startServer(t, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, s.NotifyRefresh(ctx), tabs.ErrNoListener)
	_, err := s.QueryTabs(ctx, tabs.Query{})
	assert.ErrorIs(t, err, tabs.ErrNoBrowser)
	assert.False(t, s.HasBrowser())
}

func TestServer_BrowserPrimitives(t *testing.T) {
	s, _, url := startServer(t, Options{})
	ws := dial(t, url, RoleBrowser)
	created := make(chan string, 1)
	open := []tabs.Tab{{ID: 1, WindowID: 2, URL: "https://a.test/", Title: "A"}, {ID: 2, WindowID: 2, Pinned: true}}
	serveBrowser(ws, open, created)
	require.True(t, s.HasBrowser())

	ctx := context.Background()
	got, err := s.QueryTabs(ctx, tabs.Query{CurrentWindow: true})
	require.NoError(t, err)
	assert.Equal(t, open, got)

	require.NoError(t, s.CreateTab(ctx, "https://restore.test/"))
	assert.Equal(t, "https://restore.test/", <-created)

	require.NoError(t, s.SetBadge(ctx, "5"))

	err = s.RemoveTab(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tabs.ErrInvalidReference))
}

func TestServer_RequestTimeout(t *testing.T) {
	s, _, url := startServer(t, Options{RequestTimeout: 50 * time.Millisecond})
	dial(t, url, RoleBrowser) // never answers

	err := s.SetBadge(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestServer_BrowserDisconnect(t *testing.T) {
	s, _, url := startServer(t, Options{})
	ws := dial(t, url, RoleBrowser)
	require.True(t, s.HasBrowser())

	ws.Close()
	require.Eventually(t, func() bool { return !s.HasBrowser() }, time.Second, 5*time.Millisecond)

	_, err := s.QueryTabs(context.Background(), tabs.Query{})
	assert.ErrorIs(t, err, tabs.ErrNoBrowser)
}

func TestServer_EventsInOrder(t *testing.T) {
	_, h, url := startServer(t, Options{})
	ws := dial(t, url, RoleBrowser)

	for i, name := range []string{EventTabCreated, EventTabActivated, EventTabRemoved} {
		f, err := NewFrame(KindEvent, name, Event{TabID: tabs.TabID(i + 1), WindowID: 1, URL: "https://e.test/"})
		require.NoError(t, err)
		require.NoError(t, ws.WriteJSON(f))
	}

	require.Eventually(t, func() bool { return len(h.seen()) == 3 }, time.Second, 5*time.Millisecond)
	evs := h.seen()
	assert.Equal(t, EventTabCreated, evs[0].Type)
	assert.Equal(t, tabs.TabID(1), evs[0].TabID)
	assert.Equal(t, EventTabActivated, evs[1].Type)
	assert.Equal(t, EventTabRemoved, evs[2].Type)
	assert.Equal(t, tabs.TabID(3), evs[2].TabID)
}

func TestServer_CommandResponseCorrelation(t *testing.T) {
	_, _, url := startServer(t, Options{})
	ws := dial(t, url, "ui")

	require.NoError(t, ws.WriteJSON(Frame{Kind: KindCommand, ID: "req-7", Name: "notify"}))

	var resp Frame
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, KindResponse, resp.Kind)
	assert.Equal(t, "req-7", resp.ID)

	var body map[string]interface{}
	require.NoError(t, resp.ParsePayload(&body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "notify", body["echo"])
}

func TestServer_RefreshReachesEveryConnection(t *testing.T) {
	s, _, url := startServer(t, Options{})
	ui := dial(t, url, "ui")
	other := dial(t, url, "ui")
	require.Eventually(t, func() bool { return s.Connections() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.NotifyRefresh(context.Background()))

	for _, ws := range []*websocket.Conn{ui, other} {
		_ = ws.SetReadDeadline(time.Now().Add(time.Second))
		var f Frame
		require.NoError(t, ws.ReadJSON(&f))
		assert.Equal(t, KindNotify, f.Kind)
		assert.Equal(t, TopicRefresh, f.Name)
	}
}

func TestFrame_Payload(t *testing.T) {
	f, err := NewFrame(KindRequest, MethodRemoveTab, removeTabParams{TabID: 42})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tabId":42}`, string(f.Payload))

	var p removeTabParams
	require.NoError(t, f.ParsePayload(&p))
	assert.Equal(t, tabs.TabID(42), p.TabID)

	empty := &Frame{Kind: KindNotify}
	assert.NoError(t, empty.ParsePayload(&p))
}
