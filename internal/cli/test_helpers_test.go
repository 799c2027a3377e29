package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabsentry/internal/config"
	"github.com/runnerr0/tabsentry/internal/daemon"
	"github.com/runnerr0/tabsentry/internal/storage"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// fakeDaemon answers the daemon HTTP API with canned data and records
// every command it receives.
type fakeDaemon struct {
	srv *httptest.Server

	mu       sync.Mutex
	commands []daemon.Command
	replies  map[string]daemon.Response
	status   *daemon.Status
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	f := &fakeDaemon{replies: make(map[string]daemon.Response)}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/commands", func(w http.ResponseWriter, r *http.Request) {
		var cmd daemon.Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(daemon.Response{Error: err.Error()})
			return
		}
		f.mu.Lock()
		f.commands = append(f.commands, cmd)
		resp, ok := f.replies[cmd.Name]
		f.mu.Unlock()
		if !ok {
			resp = daemon.Response{OK: true}
		}
		if !resp.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		st := f.status
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(daemon.Response{OK: true, Data: st})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDaemon) reply(name string, resp daemon.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[name] = resp
}

func (f *fakeDaemon) received() []daemon.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]daemon.Command(nil), f.commands...)
}

func (f *fakeDaemon) port() int {
	return f.srv.Listener.Addr().(*net.TCPAddr).Port
}

// deadPort returns a port nothing listens on.
func deadPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// testEnv is a config file pointing at a temp database and a daemon port.
type testEnv struct {
	globals *GlobalFlags
	cfg     *config.Config
}

func newTestEnv(t *testing.T, daemonPort int) *testEnv {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := fmt.Sprintf("storage:\n  path: %s\ndaemon:\n  host: 127.0.0.1\n  port: %d\n", dir, daemonPort)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return &testEnv{globals: &GlobalFlags{Config: path}, cfg: cfg}
}

// store opens the env's database; callers seed or inspect it directly.
func (e *testEnv) store(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, db, _, err := openStore(e.cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		db.Close()
	})
	return store
}

func (e *testEnv) client() *daemon.Client {
	return newClient(e.cfg)
}
