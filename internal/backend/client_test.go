// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", Options{Timeout: 2 * time.Second, CommandRate: 100, CommandBurst: 10})
}

func TestClient_RunPostsMultipart(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "memories.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"Saved Media":[]}`), 0600))

	var mu sync.Mutex
	var gotPath, gotOutput, gotMerge, gotName, gotContent, gotReqID string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		gotReqID = r.Header.Get(HeaderRequestID)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotOutput = r.FormValue("output_path")
		gotMerge = r.FormValue("merge_overlay")
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotContent = hdr.Filename, string(b)
		_, _ = w.Write([]byte(`{"status":"accepted"}`))
	}))

	ctx := xglog.ContextWithRequestID(context.Background(), "req-1")
	err := c.Run(ctx, RunRequest{FilePath: file, OutputPath: "/exports", MergeOverlay: true})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, PathRun, gotPath)
	assert.Equal(t, "/exports", gotOutput)
	assert.Equal(t, "true", gotMerge)
	assert.Equal(t, "memories.json", gotName)
	assert.Equal(t, `{"Saved Media":[]}`, gotContent)
	assert.Equal(t, "req-1", gotReqID)
}

func TestClient_RunMissingFile(t *testing.T) {
	c := New("http://127.0.0.1:1", Options{})
	err := c.Run(context.Background(), RunRequest{FilePath: filepath.Join(t.TempDir(), "nope.json"), OutputPath: "/x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestClient_Commands(t *testing.T) {
	var (
		mu            sync.Mutex
		calls         []string
		restartOutput string
	)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.URL.Path == PathRestart {
			require.NoError(t, r.ParseMultipartForm(1<<10))
			restartOutput = r.FormValue("output_path")
		}
		w.WriteHeader(http.StatusOK)
	}))

	ctx := context.Background()
	require.NoError(t, c.Pause(ctx))
	require.NoError(t, c.Resume(ctx))
	require.NoError(t, c.Restart(ctx, "/exports"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"POST /pause", "POST /resume", "POST /restart"}, calls)
	assert.Equal(t, "/exports", restartOutput)
}

func TestClient_RejectedCommand(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no job running", http.StatusConflict)
	}))

	err := c.Pause(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)

	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "pause", be.Operation)
	assert.Equal(t, http.StatusConflict, be.Status)
	assert.Equal(t, "no job running", be.Body)
	assert.Contains(t, be.Error(), "(HTTP 409)")
}

func TestClient_HealthUnavailable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	err := c.Health(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsUnavailable(err))

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	err = New(addr, Options{Timeout: time.Second}).Health(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_Downloads(t *testing.T) {
	queries := make(chan string, 1)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":[{"filename":"a.jpg","date":"2024-05-01T10:00:00Z","media_type":"image"}],"total":41,"offset":20,"limit":20}`)
	}))

	page, err := c.Downloads(context.Background(), 20, 20)
	require.NoError(t, err)
	assert.Equal(t, "limit=20&offset=20", <-queries)
	assert.Equal(t, 41, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a.jpg", page.Items[0].Filename)
	assert.Equal(t, "image", page.Items[0].MediaType)
	assert.Equal(t, 2024, page.Items[0].Date.Year())
}

func TestClient_DownloadsBadJSON(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":`)
	}))
	_, err := c.Downloads(context.Background(), 0, 20)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestClient_OpenStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "id: 1\nevent: progress\ndata: {\"status\":\"running\",\n")
		fmt.Fprint(w, "data: \"downloaded\":1}\n\n")
		fmt.Fprint(w, "data: second\n\n")
	}))
	defer srv.Close()

	c := New(srv.URL, Options{Timeout: time.Second})
	r, err := c.OpenStream(context.Background(), PathProgressStream)
	require.NoError(t, err)
	defer r.Close()

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "1", ev.ID)
	assert.Equal(t, "progress", ev.Name)
	assert.Equal(t, "{\"status\":\"running\",\n\"downloaded\":1}", string(ev.Data))

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "second", string(ev.Data))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	srv.CloseClientConnections()
	c.CloseIdleConnections()
}

func TestEventReader_IgnoresTrailingPartialEvent(t *testing.T) {
	r := newEventReader("test", io.NopCloser(strings.NewReader("data: a\n\ndata: partial")))
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", string(ev.Data))
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "error", statusClass(errors.New("x"), 0))
	assert.Equal(t, "2xx", statusClass(nil, 204))
	assert.Equal(t, "4xx", statusClass(nil, 404))
	assert.Equal(t, "5xx", statusClass(nil, 503))
	assert.Equal(t, "unknown", statusClass(nil, 0))
}
