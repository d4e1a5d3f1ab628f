// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/ManuGH/snapexport/internal/backend"
	"github.com/ManuGH/snapexport/internal/exportfile"
	"github.com/ManuGH/snapexport/internal/job"
	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/ManuGH/snapexport/internal/session"
)

const maxBody = 64 << 10

type errorBody struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type restartRequest struct {
	OutputPath string `json:"outputPath"`
	Confirm    bool   `json:"confirm"`
}

type onboardingBody struct {
	Done bool `json:"done"`
}

type historyResponse struct {
	Page        int      `json:"page"`
	TotalPages  int      `json:"totalPages"`
	PagesToShow []int    `json:"pagesToShow"`
	Labels      []string `json:"labels"`
	Lines       []string `json:"lines"`
	HasPrev     bool     `json:"hasPrev"`
	HasNext     bool     `json:"hasNext"`
	Total       int      `json:"total"`
	Summary     string   `json:"summary"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st, err := s.sess.Settings().Load()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !st.OnboardingDone {
		http.Redirect(w, r, "/onboarding", http.StatusFound)
		return
	}

	state := s.sess.State()
	var b strings.Builder
	if state.Text.Health != "" {
		fmt.Fprintf(&b, "%s\n%s\n", state.Text.Health, state.Text.Detail)
		if state.Text.Retry != "" {
			fmt.Fprintf(&b, "[%s] POST /api/health/retry\n", state.Text.Retry)
		}
	}
	fmt.Fprintf(&b, "%s\n%s\n", state.Text.Status, state.Text.Progress)
	for _, line := range state.Text.Failures {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, b.String())
}

func (s *Server) handleOnboardingPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "1. POST /api/select {\"filePath\":..., \"outputDir\":...}\n"+
		"2. POST /api/start\n"+
		"3. GET /api/state\n"+
		"POST /api/onboarding {\"done\":true} to finish.\n")
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.State())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var sel job.Selection
	if err := decodeBody(r, &sel); err != nil {
		s.badRequest(w, r, err)
		return
	}
	s.sess.Select(sel)
	writeJSON(w, http.StatusOK, s.sess.Selection())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sel := s.sess.Selection()
	if r.ContentLength != 0 {
		if err := decodeBody(r, &sel); err != nil {
			s.badRequest(w, r, err)
			return
		}
	}
	if !sel.Ready() {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:     "selection_incomplete",
			Detail:    "select an export file and an output directory first",
			RequestID: xglog.RequestIDFromContext(r.Context()),
		})
		return
	}
	s.command(w, r, func(ctx context.Context) error { return s.sess.Start(ctx, sel) })
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, s.sess.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, s.sess.Resume)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req restartRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	if !req.Confirm {
		writeJSON(w, http.StatusPreconditionRequired, errorBody{
			Error:     "confirmation_required",
			Detail:    "restart discards the current export; send confirm=true",
			RequestID: xglog.RequestIDFromContext(r.Context()),
		})
		return
	}
	s.command(w, r, func(ctx context.Context) error { return s.sess.Restart(ctx, req.OutputPath) })
}

func (s *Server) handleRetry(w http.ResponseWriter, _ *http.Request) {
	s.sess.RetryHealth()
	writeJSON(w, http.StatusAccepted, s.sess.State())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.badRequest(w, r, fmt.Errorf("page must be a non-negative integer"))
			return
		}
		page = n
	}
	v, err := s.sess.History(r.Context(), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rend := s.sess.Renderer()
	resp := historyResponse{
		Page:        v.Current,
		TotalPages:  v.TotalPages,
		PagesToShow: v.PagesToShow,
		Labels:      rend.PageLabels(v.PagesToShow, v.Current),
		Lines:       make([]string, 0, len(v.Page.Items)),
		HasPrev:     v.HasPrev,
		HasNext:     v.HasNext,
		Total:       v.Page.Total,
		Summary:     rend.PageOf(v.Current, v.TotalPages),
	}
	for _, it := range v.Page.Items {
		resp.Lines = append(resp.Lines, rend.HistoryItem(it))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOnboardingGet(w http.ResponseWriter, r *http.Request) {
	st, err := s.sess.Settings().Load()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, onboardingBody{Done: st.OnboardingDone})
}

func (s *Server) handleOnboardingSet(w http.ResponseWriter, r *http.Request) {
	var body onboardingBody
	if err := decodeBody(r, &body); err != nil {
		s.badRequest(w, r, err)
		return
	}
	if err := s.sess.Settings().SetOnboardingDone(r.Context(), body.Done); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// command runs a job command and answers with the state right after it was issued,
// optimistic status included.
func (s *Server) command(w http.ResponseWriter, r *http.Request, run func(context.Context) error) {
	if err := run(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.sess.State())
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error:     "bad_request",
		Detail:    err.Error(),
		RequestID: xglog.RequestIDFromContext(r.Context()),
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	logger := xglog.WithComponentFromContext(r.Context(), "dashboard")
	ev := logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Err(err).
		Str(xglog.FieldEvent, "dashboard.request_failed").
		Str(xglog.FieldPath, r.URL.Path).
		Int(xglog.FieldStatus, status).
		Msg("request failed")

	writeJSON(w, status, errorBody{
		Error:     code,
		Detail:    err.Error(),
		RequestID: xglog.RequestIDFromContext(r.Context()),
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, job.ErrNotRunning), errors.Is(err, job.ErrFinished):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, job.ErrNoOutputDir):
		return http.StatusUnprocessableEntity, "no_output_dir"
	case errors.Is(err, exportfile.ErrUnsupported):
		return http.StatusUnprocessableEntity, "unsupported_file"
	case errors.Is(err, exportfile.ErrNotFound):
		return http.StatusUnprocessableEntity, "memories_not_found"
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusUnprocessableEntity, "file_not_found"
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, backend.ErrUnavailable):
		return http.StatusServiceUnavailable, "backend_unavailable"
	case errors.Is(err, backend.ErrRejected), errors.Is(err, backend.ErrBadResponse):
		return http.StatusBadGateway, "backend_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty request body")
		}
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
