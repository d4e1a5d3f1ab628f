// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/snapexport/internal/backend"
	"github.com/ManuGH/snapexport/internal/config"
	"github.com/ManuGH/snapexport/internal/endpoint"
	"github.com/ManuGH/snapexport/internal/host"
	"github.com/ManuGH/snapexport/internal/job"
	"github.com/ManuGH/snapexport/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeBackend is an export backend with scripted progress pushes.
type fakeBackend struct {
	srv    *httptest.Server
	pushes chan string
	errors chan string

	mu       sync.Mutex
	runs     []runCall
	restarts []string
	healthy  bool
}

type runCall struct {
	filename   string
	outputPath string
	merge      string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		pushes:  make(chan string),
		errors:  make(chan string),
		healthy: true,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(backend.PathHealth, func(w http.ResponseWriter, _ *http.Request) {
		fb.mu.Lock()
		ok := fb.healthy
		fb.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.HandleFunc(backend.PathRun, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fb.mu.Lock()
		fb.runs = append(fb.runs, runCall{
			filename:   hdr.Filename,
			outputPath: r.FormValue("output_path"),
			merge:      r.FormValue("merge_overlay"),
		})
		fb.mu.Unlock()
		fmt.Fprint(w, `{"status":"started"}`)
	})
	mux.HandleFunc(backend.PathRestart, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fb.mu.Lock()
		fb.restarts = append(fb.restarts, r.FormValue("output_path"))
		fb.mu.Unlock()
		fmt.Fprint(w, `{"status":"restarted"}`)
	})
	mux.HandleFunc(backend.PathDownloads, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"items":[{"filename":"a.jpg","date":"2024-03-09T14:05:07Z","media_type":"image"}],"total":45,"offset":%s,"limit":%s}`,
			r.URL.Query().Get("offset"), r.URL.Query().Get("limit"))
	})
	mux.HandleFunc(backend.PathProgressStream, fb.stream(fb.pushes))
	mux.HandleFunc(backend.PathErrorStream, fb.stream(fb.errors))
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) stream(msgs <-chan string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for {
			select {
			case <-r.Context().Done():
				return
			case msg := <-msgs:
				fmt.Fprintf(w, "data: %s\n\n", msg)
				flusher.Flush()
			}
		}
	}
}

func (fb *fakeBackend) port(t *testing.T) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(fb.srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func (fb *fakeBackend) push(t *testing.T, msg string) {
	t.Helper()
	select {
	case fb.pushes <- msg:
	case <-time.After(2 * time.Second):
		t.Fatalf("no progress subscriber for %s", msg)
	}
}

func (fb *fakeBackend) runCalls() []runCall {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]runCall(nil), fb.runs...)
}

// verifyNoLeaks checks for leaked goroutines after every other cleanup of t has
// run, including the shutdown of the fake backends.
func verifyNoLeaks(t *testing.T, opts ...goleak.Option) {
	t.Helper()
	opts = append([]goleak.Option{goleak.IgnoreCurrent()}, opts...)
	t.Cleanup(func() { goleak.VerifyNone(t, opts...) })
}

func testConfig(t *testing.T) config.AppConfig {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Health.Interval = 5 * time.Millisecond
	cfg.Backend.Timeout = 2 * time.Second
	cfg.Backend.CommandRate = 1000
	return cfg
}

func writeMemories(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memories.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Saved Media":[]}`), 0o600))
	return path
}

func startSession(t *testing.T, s *Session) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return s.Feeds().Progress.Active }, 2*time.Second, 5*time.Millisecond)
	return cancel, errCh
}

func stopSession(t *testing.T, cancel context.CancelFunc, errCh <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
}

func TestSession_ExportEndToEnd(t *testing.T) {
	verifyNoLeaks(t)

	fb := newFakeBackend(t)
	port := fb.port(t)
	s := New(testConfig(t), WithCapabilities(host.Capabilities{Ports: host.StaticPort(port)}))
	cancel, errCh := startSession(t, s)

	addr, err := s.Address()
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d", port), addr.BaseURL)
	assert.Equal(t, endpoint.SourceDiscovered, addr.Source)
	assert.Equal(t, endpoint.HealthReady, s.Health().State)

	sel := job.Selection{FilePath: writeMemories(t), OutputDir: "/exports"}
	require.NoError(t, s.Start(context.Background(), sel))
	assert.Equal(t, progress.StatusRunning, s.Progress().Snapshot().Status, "running before any push")

	calls := fb.runCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "memories.json", calls[0].filename)
	assert.Equal(t, "/exports", calls[0].outputPath)

	r := s.Renderer()
	fb.push(t, `{"status":"running","downloaded":10,"total":100,"eta":"2m"}`)
	require.Eventually(t, func() bool {
		return r.Progress(s.Progress().Snapshot().Record) == "10/100 — 10%, ⏳ 2m"
	}, 2*time.Second, 5*time.Millisecond)

	fb.push(t, `{"status":"done","downloaded":100,"total":100,"eta":null}`)
	require.Eventually(t, func() bool {
		return r.Progress(s.Progress().Snapshot().Record) == "Terminé"
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !s.Feeds().Progress.Active }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "completed", s.Feeds().Progress.Reason)

	st := s.State()
	assert.Equal(t, "Export terminé", st.Text.Status)
	assert.Equal(t, 100, st.Percent)

	stopSession(t, cancel, errCh)
}

func TestSession_RestartReopensProgressFeed(t *testing.T) {
	verifyNoLeaks(t)

	fb := newFakeBackend(t)
	s := New(testConfig(t), WithCapabilities(host.Capabilities{Ports: host.StaticPort(fb.port(t))}))
	cancel, errCh := startSession(t, s)

	require.NoError(t, s.Start(context.Background(), job.Selection{FilePath: writeMemories(t), OutputDir: "/exports"}))
	fb.push(t, `{"status":"done","downloaded":3,"total":3}`)
	require.Eventually(t, func() bool { return !s.Feeds().Progress.Active }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Restart(context.Background(), ""))
	assert.Equal(t, job.Selection{}, s.Selection(), "selection is cleared")
	assert.Equal(t, progress.StatusDone, s.Progress().Snapshot().Status, "status waits for the next push")

	fb.mu.Lock()
	assert.Equal(t, []string{"/exports"}, fb.restarts)
	fb.mu.Unlock()

	require.Eventually(t, func() bool { return s.Feeds().Progress.Active }, 2*time.Second, 5*time.Millisecond)
	fb.push(t, `{"status":"idle","downloaded":0,"total":0}`)
	require.Eventually(t, func() bool {
		return s.Progress().Snapshot().Status == progress.StatusIdle
	}, 2*time.Second, 5*time.Millisecond)

	stopSession(t, cancel, errCh)
}

func TestSession_ErrorFeedReplacesFailures(t *testing.T) {
	verifyNoLeaks(t)

	fb := newFakeBackend(t)
	s := New(testConfig(t), WithCapabilities(host.Capabilities{Ports: host.StaticPort(fb.port(t))}))
	cancel, errCh := startSession(t, s)

	fb.errors <- `{"a.jpg":"x"}`
	fb.errors <- `{"b.mp4":"y"}`
	require.Eventually(t, func() bool {
		items := s.Failures().Snapshot().Items
		return len(items) == 1 && items["b.mp4"] == "y"
	}, 2*time.Second, 5*time.Millisecond)

	stopSession(t, cancel, errCh)
}

func TestSession_History(t *testing.T) {
	verifyNoLeaks(t)

	fb := newFakeBackend(t)
	s := New(testConfig(t), WithCapabilities(host.Capabilities{Ports: host.StaticPort(fb.port(t))}))
	cancel, errCh := startSession(t, s)

	v, err := s.History(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Current)
	assert.Equal(t, 3, v.TotalPages)
	assert.Equal(t, 20, v.Page.Offset)
	assert.True(t, v.HasPrev)
	assert.True(t, v.HasNext)
	require.Len(t, v.Page.Items, 1)
	assert.Equal(t, "a.jpg", v.Page.Items[0].Filename)

	stopSession(t, cancel, errCh)
}

func TestSession_UnresolvedPortFallsBackToDefault(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend.DefaultURL = "http://127.0.0.1:8000"
	s := New(cfg, WithCapabilities(host.Capabilities{}))
	defer s.Close()

	_, err := s.Address()
	require.ErrorIs(t, err, ErrNotConnected)

	addr := s.Connect(context.Background())
	assert.Equal(t, "http://127.0.0.1:8000", addr.BaseURL)
	assert.Equal(t, endpoint.SourceDefault, addr.Source)
	assert.NotEqual(t, endpoint.HealthReady, s.Health().State)
}

func TestSession_CommandsWaitForHealthyBackend(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mu.Lock()
	fb.healthy = false
	fb.mu.Unlock()

	s := New(testConfig(t), WithCapabilities(host.Capabilities{Ports: host.StaticPort(fb.port(t))}))
	s.Connect(context.Background())
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Start(ctx, job.Selection{FilePath: writeMemories(t), OutputDir: "/exports"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, fb.runCalls())
	assert.Equal(t, progress.StatusRunning, s.Progress().Snapshot().Status, "optimistic transition is not rolled back")
}

func TestSession_EndpointChangeMovesFeeds(t *testing.T) {
	// the SIGHUP handler starts the process-wide signal loop
	verifyNoLeaks(t, goleak.IgnoreAnyFunction("os/signal.loop"))

	first := newFakeBackend(t)
	second := newFakeBackend(t)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	holder := backendConfig(t, cfgPath, first.port(t))

	s := New(holder.Get(), WithHolder(holder))
	cancel, errCh := startSession(t, s)
	assert.Equal(t, first.srv.URL, s.Feeds().BaseURL)

	writeBackendConfig(t, cfgPath, second.port(t))
	require.NoError(t, holder.Reload(context.Background()))
	require.Eventually(t, func() bool {
		st := s.Feeds()
		return st.BaseURL == second.srv.URL && st.Progress.Active
	}, 2*time.Second, 5*time.Millisecond)

	addr, err := s.Address()
	require.NoError(t, err)
	assert.Equal(t, second.srv.URL, addr.BaseURL)

	stopSession(t, cancel, errCh)
	holder.Stop()
}

// writeBackendConfig writes a config file pointing the session at port.
func writeBackendConfig(t *testing.T, path string, port int) {
	t.Helper()
	data := fmt.Sprintf("dataDir: %s\nbackend:\n  port: %d\nhealth:\n  interval: 5ms\n", filepath.Dir(path), port)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
}

func backendConfig(t *testing.T, path string, port int) *config.Holder {
	t.Helper()
	writeBackendConfig(t, path, port)
	loader := config.NewLoader(path, "test")
	cfg, err := loader.Load()
	require.NoError(t, err)
	return config.NewHolder(cfg, loader)
}

func TestSession_EndpointChangeDetachesFeedsUntilReady(t *testing.T) {
	verifyNoLeaks(t, goleak.IgnoreAnyFunction("os/signal.loop"))

	first := newFakeBackend(t)
	second := newFakeBackend(t)
	second.mu.Lock()
	second.healthy = false
	second.mu.Unlock()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	holder := backendConfig(t, cfgPath, first.port(t))
	s := New(holder.Get(), WithHolder(holder))
	cancel, errCh := startSession(t, s)

	first.push(t, `{"status":"running","downloaded":10,"total":100}`)
	require.Eventually(t, func() bool {
		return s.Progress().Snapshot().Status == progress.StatusRunning
	}, 2*time.Second, 5*time.Millisecond)
	first.errors <- `{"a.jpg":"403"}`
	require.Eventually(t, func() bool { return len(s.Failures().Snapshot().Items) == 1 }, 2*time.Second, 5*time.Millisecond)

	writeBackendConfig(t, cfgPath, second.port(t))
	require.NoError(t, holder.Reload(context.Background()))
	require.Eventually(t, func() bool {
		addr, err := s.Address()
		return err == nil && addr.BaseURL == second.srv.URL && s.Feeds().BaseURL == ""
	}, 2*time.Second, 5*time.Millisecond, "no endpoint while the new backend is unhealthy")

	st := s.Feeds()
	assert.False(t, st.Progress.Active)
	assert.False(t, st.Errors.Active)
	assert.Empty(t, s.Failures().Snapshot().Items, "failures of the old endpoint are dropped")
	assert.NotEqual(t, endpoint.HealthReady, s.Health().State)

	// a late push from the old backend must not reach the store
	select {
	case first.pushes <- `{"status":"paused","downloaded":11,"total":100}`:
	case <-time.After(100 * time.Millisecond):
	}
	assert.Never(t, func() bool {
		return s.Progress().Snapshot().Status == progress.StatusPaused
	}, 200*time.Millisecond, 10*time.Millisecond)

	second.mu.Lock()
	second.healthy = true
	second.mu.Unlock()
	require.Eventually(t, func() bool {
		st := s.Feeds()
		return st.BaseURL == second.srv.URL && st.Progress.Active
	}, 2*time.Second, 5*time.Millisecond)

	stopSession(t, cancel, errCh)
	holder.Stop()
}

func TestSession_AwaitReadyReportsFailedGuard(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mu.Lock()
	fb.healthy = false
	fb.mu.Unlock()

	cfg := testConfig(t)
	cfg.Health.FailureThreshold = 2
	s := New(cfg, WithCapabilities(host.Capabilities{Ports: host.StaticPort(fb.port(t))}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	s.Connect(ctx)
	go func() { errCh <- s.Run(ctx) }()

	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer awaitCancel()
	require.ErrorIs(t, s.AwaitReady(awaitCtx), ErrBackendFailed)
	assert.Equal(t, "Réessayer", s.State().Text.Retry)

	fb.mu.Lock()
	fb.healthy = true
	fb.mu.Unlock()
	s.RetryHealth()
	require.NoError(t, s.AwaitReady(awaitCtx))

	stopSession(t, cancel, errCh)
}
