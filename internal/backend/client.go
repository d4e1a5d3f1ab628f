// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package backend is the HTTP client for the local export backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/ManuGH/snapexport/internal/platform/httpx"
	"github.com/ManuGH/snapexport/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Backend routes.
const (
	PathHealth         = "/health"
	PathRun            = "/run"
	PathPause          = "/pause"
	PathResume         = "/resume"
	PathRestart        = "/restart"
	PathDownloads      = "/downloads"
	PathProgressStream = "/progress/stream"
	PathErrorStream    = "/file/error/stream"
)

// HeaderRequestID correlates a command with client logs.
const HeaderRequestID = "X-Request-ID"

const (
	defaultTimeout      = 30 * time.Second
	defaultCommandRate  = 5
	defaultCommandBurst = 5
	maxErrorBody        = 4 << 10
)

// Options configures the client.
type Options struct {
	Timeout      time.Duration
	CommandRate  float64
	CommandBurst int
}

// Client talks to one backend base URL.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	limiter *rate.Limiter
}

// New creates a client for baseURL.
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.CommandRate <= 0 {
		opts.CommandRate = defaultCommandRate
	}
	if opts.CommandBurst <= 0 {
		opts.CommandBurst = defaultCommandBurst
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpx.Instrument(httpx.NewClient(opts.Timeout)),
		stream:  httpx.Instrument(httpx.NewStreamClient(opts.Timeout)),
		limiter: rate.NewLimiter(rate.Limit(opts.CommandRate), opts.CommandBurst),
	}
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// CloseIdleConnections releases pooled connections of both transports.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
	c.stream.CloseIdleConnections()
}

// RunRequest is the multipart payload of a job start.
type RunRequest struct {
	FilePath     string
	OutputPath   string
	MergeOverlay bool
}

// DownloadedItem is one entry of the download history.
type DownloadedItem struct {
	Filename  string    `json:"filename"`
	Date      time.Time `json:"date"`
	MediaType string    `json:"media_type"`
}

// DownloadsPage is one page of the download history.
type DownloadsPage struct {
	Items  []DownloadedItem `json:"items"`
	Total  int              `json:"total"`
	Offset int              `json:"offset"`
	Limit  int              `json:"limit"`
}

// Health returns nil when the backend answers 2xx on its health route.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, "health", http.MethodGet, PathHealth, nil, "", false)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// Run starts a job by uploading the export file with the output directory.
func (c *Client) Run(ctx context.Context, req RunRequest) error {
	body, contentType, err := runForm(req)
	if err != nil {
		return err
	}
	return c.command(ctx, "run", PathRun, body, contentType)
}

// Pause asks the backend to pause the running job.
func (c *Client) Pause(ctx context.Context) error {
	return c.command(ctx, "pause", PathPause, nil, "")
}

// Resume asks the backend to continue a paused job.
func (c *Client) Resume(ctx context.Context) error {
	return c.command(ctx, "resume", PathResume, nil, "")
}

// Restart asks the backend to discard prior output in outputPath and reset progress.
func (c *Client) Restart(ctx context.Context, outputPath string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("output_path", outputPath); err != nil {
		return fmt.Errorf("build restart form: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("build restart form: %w", err)
	}
	return c.command(ctx, "restart", PathRestart, &buf, w.FormDataContentType())
}

// Downloads fetches one page of the download history.
func (c *Client) Downloads(ctx context.Context, offset, limit int) (DownloadsPage, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	ctx, span := telemetry.Tracer("snapexport.backend").Start(ctx, "backend.downloads")
	span.SetAttributes(telemetry.PageAttributes(offset, limit)...)
	defer span.End()

	resp, err := c.do(ctx, "downloads", http.MethodGet, PathDownloads+"?"+q.Encode(), nil, "", false)
	if err != nil {
		span.RecordError(err)
		return DownloadsPage{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var page DownloadsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		err = newError(ErrBadResponse, "downloads", resp.StatusCode, "", err)
		span.RecordError(err)
		return DownloadsPage{}, err
	}
	return page, nil
}

// OpenStream subscribes to a server-sent event route. The stream lives until ctx is
// canceled, the server closes it, or the returned reader is closed.
func (c *Client) OpenStream(ctx context.Context, path string) (*EventReader, error) {
	resp, err := c.do(ctx, streamName(path), http.MethodGet, path, nil, "", true)
	if err != nil {
		return nil, err
	}
	return newEventReader(streamName(path), resp.Body), nil
}

func (c *Client) command(ctx context.Context, op, path string, body io.Reader, contentType string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.do(ctx, op, http.MethodPost, path, body, contentType, false)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// do performs one request. Non-2xx answers are returned as *Error and the body is
// consumed; on success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, stream bool) (*http.Response, error) {
	ctx, span := telemetry.Tracer("snapexport.backend").Start(ctx, "backend."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(telemetry.BackendAttributes(c.baseURL, op)...)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
	}
	if reqID := xglog.RequestIDFromContext(ctx); reqID != "" {
		req.Header.Set(HeaderRequestID, reqID)
	}

	client := c.http
	if stream {
		client = c.stream
	}

	start := time.Now()
	resp, err := client.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	recordRequestMetrics(op, status, time.Since(start), err)
	span.SetAttributes(telemetry.HTTPAttributes(method, path, status)...)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newError(ErrUnavailable, op, 0, "", err)
	}
	if status < 200 || status >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		sentinel := ErrRejected
		if op == "health" || status == http.StatusServiceUnavailable || status == http.StatusBadGateway {
			sentinel = ErrUnavailable
		}
		span.SetStatus(codes.Error, http.StatusText(status))
		return nil, newError(sentinel, op, status, strings.TrimSpace(string(msg)), nil)
	}
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func runForm(req RunRequest) (*bytes.Buffer, string, error) {
	f, err := os.Open(req.FilePath) // #nosec G304 -- user-selected export file
	if err != nil {
		return nil, "", fmt.Errorf("open export file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(req.FilePath))
	if err != nil {
		return nil, "", fmt.Errorf("build run form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read export file: %w", err)
	}
	if err := w.WriteField("output_path", req.OutputPath); err != nil {
		return nil, "", fmt.Errorf("build run form: %w", err)
	}
	if err := w.WriteField("merge_overlay", strconv.FormatBool(req.MergeOverlay)); err != nil {
		return nil, "", fmt.Errorf("build run form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("build run form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func streamName(path string) string {
	switch path {
	case PathProgressStream:
		return "progress"
	case PathErrorStream:
		return "errors"
	}
	return strings.Trim(path, "/")
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// IsUnavailable reports whether err means the backend could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
