// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package view renders session state as localized text for the CLI and dashboard.
package view

import (
	"strconv"
	"time"

	"github.com/ManuGH/snapexport/internal/endpoint"
	"github.com/ManuGH/snapexport/internal/failures"
	"github.com/ManuGH/snapexport/internal/history"
	"github.com/ManuGH/snapexport/internal/progress"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var cat = newCatalog()

// Renderer formats state in one language.
type Renderer struct {
	tag     language.Tag
	printer *message.Printer
	loc     *time.Location
}

// NewRenderer returns a renderer for locale ("fr" or "en"); unknown locales use French.
func NewRenderer(locale string) *Renderer {
	tag := language.French
	if t, err := language.Parse(locale); err == nil {
		if base, _ := t.Base(); base.String() == "en" {
			tag = language.English
		}
	}
	return &Renderer{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(cat)),
		loc:     time.Local,
	}
}

// WithLocation returns a copy rendering timestamps in loc.
func (r *Renderer) WithLocation(loc *time.Location) *Renderer {
	c := *r
	c.loc = loc
	return &c
}

// StatusLabel is the headline for a job status.
func (r *Renderer) StatusLabel(s progress.Status) string {
	switch s {
	case progress.StatusIdle:
		return r.printer.Sprintf(keyIdle)
	case progress.StatusRunning:
		return r.printer.Sprintf(keyRunning)
	case progress.StatusPaused:
		return r.printer.Sprintf(keyPaused)
	case progress.StatusDone:
		return r.printer.Sprintf(keyDone)
	}
	return ""
}

// Progress is the one-line progress text: "10/100 — 10%, ⏳ 2m" while running and the
// completion text once done.
func (r *Renderer) Progress(rec progress.Record) string {
	if rec.Status == progress.StatusDone {
		return r.printer.Sprintf(keyCompleted)
	}
	// counts go in as strings so the printer does not group their digits
	line := r.printer.Sprintf(keyProgress,
		strconv.FormatInt(rec.Downloaded, 10), strconv.FormatInt(rec.Total, 10), rec.Percent())
	if rec.ETA != "" {
		line = r.printer.Sprintf(keyETA, line, rec.ETA)
	}
	return line
}

// HistoryItem renders one history entry: kind icon, filename and local time.
func (r *Renderer) HistoryItem(it history.Item) string {
	icon := "🎬"
	if it.Kind == history.KindImage {
		icon = "🖼️"
	}
	return icon + " " + it.Filename + " — " + it.Timestamp.In(r.loc).Format(timeLayouts[r.tag])
}

// PageLabels renders PagesToShow output with 1-based labels; the current page is
// wrapped in brackets.
func (r *Renderer) PageLabels(pages []int, current int) []string {
	labels := make([]string, 0, len(pages))
	for _, p := range pages {
		switch {
		case p == history.Ellipsis:
			labels = append(labels, "...")
		case p == current:
			labels = append(labels, "["+strconv.Itoa(p+1)+"]")
		default:
			labels = append(labels, strconv.Itoa(p+1))
		}
	}
	return labels
}

// PageOf renders "Page 2 of 5" with a 1-based current page.
func (r *Renderer) PageOf(current, totalPages int) string {
	return r.printer.Sprintf(keyPageOf, strconv.Itoa(current+1), strconv.Itoa(totalPages))
}

// NoDownloads is the text of an empty history.
func (r *Renderer) NoDownloads() string {
	return r.printer.Sprintf(keyNoDownloads)
}

// Health renders the backend guard state. Ready renders nothing.
func (r *Renderer) Health(s endpoint.HealthStatus) (headline, detail string) {
	switch s.State {
	case endpoint.HealthWaiting:
		return r.printer.Sprintf(keyStarting), r.printer.Sprintf(keyPreparing)
	case endpoint.HealthFailed:
		return r.printer.Sprintf(keyStarting), r.printer.Sprintf(keyHealthFailed)
	}
	return "", ""
}

// RetryLabel is the manual reload action shown when the guard has failed.
func (r *Renderer) RetryLabel() string {
	return r.printer.Sprintf(keyRetry)
}

// Failures renders the failed files sorted by name.
func (r *Renderer) Failures(set failures.Set) []string {
	if len(set) == 0 {
		return []string{r.printer.Sprintf(keyNoFailures)}
	}
	lines := make([]string, 0, len(set))
	for _, name := range set.Names() {
		if reason := set[name]; reason != "" {
			lines = append(lines, r.printer.Sprintf(keyFailureReason, name, reason))
			continue
		}
		lines = append(lines, name)
	}
	return lines
}
