// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"github.com/ManuGH/snapexport/internal/endpoint"
	"github.com/ManuGH/snapexport/internal/failures"
	"github.com/ManuGH/snapexport/internal/feed"
	"github.com/ManuGH/snapexport/internal/job"
	"github.com/ManuGH/snapexport/internal/progress"
)

// State is everything a front end needs to draw the session.
type State struct {
	BaseURL   string                `json:"baseURL"`
	Source    endpoint.Source       `json:"source,omitempty"`
	Health    endpoint.HealthStatus `json:"health"`
	Progress  progress.Snapshot     `json:"progress"`
	Percent   int                   `json:"percent"`
	Failures  failures.Snapshot     `json:"failures"`
	Feeds     feed.Status           `json:"feeds"`
	Selection job.Selection         `json:"selection"`
	Text      Text                  `json:"text"`
}

// Text is the localized rendering of State.
type Text struct {
	Status   string   `json:"status"`
	Progress string   `json:"progress"`
	Health   string   `json:"health,omitempty"`
	Detail   string   `json:"detail,omitempty"`
	Retry    string   `json:"retry,omitempty"`
	Failures []string `json:"failures"`
}

// State returns a consistent-enough snapshot of the session. Each store is read
// atomically; the parts are not read under one lock.
func (s *Session) State() State {
	st := State{
		Health:    s.Health(),
		Progress:  s.progress.Snapshot(),
		Failures:  s.failures.Snapshot(),
		Feeds:     s.feeds.Status(),
		Selection: s.jobs.Selection(),
	}
	if addr, err := s.Address(); err == nil {
		st.BaseURL = addr.BaseURL
		st.Source = addr.Source
	}
	st.Percent = st.Progress.Percent()

	r := s.Renderer()
	st.Text = Text{
		Status:   r.StatusLabel(st.Progress.Status),
		Progress: r.Progress(st.Progress.Record),
		Failures: r.Failures(st.Failures.Items),
	}
	st.Text.Health, st.Text.Detail = r.Health(st.Health)
	if st.Health.State == endpoint.HealthFailed {
		st.Text.Retry = r.RetryLabel()
	}
	return st
}
