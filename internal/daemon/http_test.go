package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabsentry/internal/history"
	"github.com/runnerr0/tabsentry/internal/settings"
	"github.com/runnerr0/tabsentry/internal/storage"
	"github.com/runnerr0/tabsentry/internal/tabs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiResponse struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func TestRouter_Health(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.d, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestRouter_LockCommand(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.d, nil, 0)

	w, resp := doRequest(t, router, http.MethodPost, "/api/v1/commands", `{"name":"lockTab","tabId":42}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.OK)
	assert.True(t, f.d.Locks.IsLocked(42))
}

func TestRouter_CommandErrors(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.d, nil, 0)

	w, resp := doRequest(t, router, http.MethodPost, "/api/v1/commands", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.OK)

	w, resp = doRequest(t, router, http.MethodPost, "/api/v1/commands", `{"name":"lockTab"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Error, "requires tabId")

	f.d.Pinger = fakePinger{err: errors.New("locked")}
	w, resp = doRequest(t, router, http.MethodPost, "/api/v1/commands", `{"name":"notify"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ping failed", resp.Error)
}

func TestRouter_BodyLimit(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.d, nil, 32)

	body := `{"name":"listClosedTabs","filter":"` + strings.Repeat("x", 64) + `"}`
	w, resp := doRequest(t, router, http.MethodPost, "/api/v1/commands", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.OK)
}

func TestRouter_ClosedTabs(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.d, nil, 0)
	ctx := context.Background()

	_, err := f.d.History.Record(ctx, history.Closed{TabID: 1, URL: "https://go.dev/doc", Title: "Docs"})
	require.NoError(t, err)
	_, err = f.d.History.Record(ctx, history.Closed{TabID: 2, URL: "https://example.com", Title: "Example"})
	require.NoError(t, err)

	w, resp := doRequest(t, router, http.MethodGet, "/api/v1/closed-tabs?q=DOCS", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list []storage.ClosedTab
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "https://go.dev/doc", list[0].URL)
}

func TestRouter_Settings(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.d, nil, 0)

	w, resp := doRequest(t, router, http.MethodGet, "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got settings.Settings
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, settings.Defaults(), got)

	// Fields absent from the body keep their current values.
	w, resp = doRequest(t, router, http.MethodPut, "/api/v1/settings", `{"thresholdCount": 9}`)
	require.Equal(t, http.StatusOK, w.Code, resp.Error)
	want := settings.Defaults()
	want.ThresholdCount = 9
	assert.Equal(t, want, f.d.Settings.Get())

	w, resp = doRequest(t, router, http.MethodPut, "/api/v1/settings", `{"heartbeatMinutes": -1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.OK)
	assert.Equal(t, want, f.d.Settings.Get())
}

func TestRouter_SaveSettingsCommandKeepsEnabled(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.d, nil, 0)

	body := `{"name":"saveSettings","settings":{"thresholdCount":7,"idleMinutes":10,"heartbeatMinutes":0.25}}`
	w, resp := doRequest(t, router, http.MethodPost, "/api/v1/commands", body)
	require.Equal(t, http.StatusOK, w.Code, resp.Error)
	assert.True(t, f.d.Settings.Get().Enabled)
	assert.Equal(t, 7, f.d.Settings.Get().ThresholdCount)
}

func TestRouter_Status(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.d, nil, 0)

	w, resp := doRequest(t, router, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st Status
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, settings.Defaults(), st.Settings)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrBadCommand, http.StatusBadRequest},
		{settings.ErrInvalid, http.StatusBadRequest},
		{ErrPingFailed, http.StatusServiceUnavailable},
		{tabs.ErrNoBrowser, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatus(tt.err), "%v", tt.err)
	}
}

func TestClient(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(NewRouter(f.d, nil, 0))
	defer srv.Close()

	c := NewClient(strings.TrimPrefix(srv.URL, "http://"), 0)
	ctx := context.Background()

	assert.True(t, c.Health(ctx))
	require.NoError(t, c.Do(ctx, Command{Name: CmdLockTab, TabID: 3}, nil))
	assert.True(t, f.d.Locks.IsLocked(3))

	var pong string
	require.NoError(t, c.Do(ctx, Command{Name: CmdNotify}, &pong))
	assert.Equal(t, "pong", pong)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.LockedTabs)

	saved, err := c.SaveSettings(ctx, settings.Settings{ThresholdCount: 4, IdleMinutes: 2, HeartbeatMinutes: 0.5, Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, 4, saved.ThresholdCount)

	err = c.Do(ctx, Command{Name: "nope"}, nil)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, http.StatusBadRequest, cmdErr.StatusCode)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	c := NewClient(addr, 0)
	err := c.Do(context.Background(), Command{Name: CmdNotify}, nil)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.False(t, c.Health(context.Background()))
}

func TestCommandJSONShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(Command{Name: CmdLockTab, TabID: 8}))
	assert.JSONEq(t, `{"name":"lockTab","tabId":8}`, buf.String())
}
