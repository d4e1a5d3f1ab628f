// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package history pages through the backend's download history.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/snapexport/internal/backend"
	xglog "github.com/ManuGH/snapexport/internal/log"
)

// MediaKind is the kind of a downloaded item.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindOther MediaKind = "other"
)

// Item is one downloaded memory.
type Item struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	Kind      MediaKind `json:"kind"`
}

// Page is one fetched page.
type Page struct {
	Items  []Item `json:"items"`
	Total  int    `json:"total"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// Fetcher fetches raw history pages.
type Fetcher interface {
	Downloads(ctx context.Context, offset, limit int) (backend.DownloadsPage, error)
}

// View is the paginator state after the most recently applied page.
type View struct {
	Page        Page  `json:"page"`
	Current     int   `json:"current"`
	TotalPages  int   `json:"totalPages"`
	PagesToShow []int `json:"pagesToShow"`
	HasPrev     bool  `json:"hasPrev"`
	HasNext     bool  `json:"hasNext"`
}

// Paginator loads history pages. Nothing is cached: every load is a round trip and
// replaces the previous page.
type Paginator struct {
	fetch    Fetcher
	pageSize int

	mu      sync.Mutex
	current int
	size    int
	page    Page
}

// NewPaginator creates a paginator with a default page size.
func NewPaginator(fetch Fetcher, pageSize int) *Paginator {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Paginator{fetch: fetch, pageSize: pageSize, size: pageSize}
}

// LoadPage fetches page pageIndex with offset pageIndex*pageSize. A non-positive
// pageSize uses the default. On success the page, the known total and the current
// page cursor are replaced.
func (p *Paginator) LoadPage(ctx context.Context, pageIndex, pageSize int) (Page, error) {
	if pageSize <= 0 {
		pageSize = p.pageSize
	}
	if pageIndex < 0 {
		pageIndex = 0
	}
	raw, err := p.fetch.Downloads(ctx, pageIndex*pageSize, pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("load history page %d: %w", pageIndex, err)
	}
	page := convert(raw)

	p.mu.Lock()
	p.page = page
	p.current = pageIndex
	p.size = pageSize
	p.mu.Unlock()

	logger := xglog.WithComponent("history")
	logger.Debug().
		Str(xglog.FieldEvent, "history.page_loaded").
		Int("page", pageIndex).
		Int(xglog.FieldTotal, page.Total).
		Msg("history page loaded")
	return page, nil
}

// View returns the paginator state.
func (p *Paginator) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := TotalPages(p.page.Total, p.size)
	return View{
		Page:        p.page,
		Current:     p.current,
		TotalPages:  total,
		PagesToShow: PagesToShow(p.current, total),
		HasPrev:     p.current > 0,
		HasNext:     p.current+1 < total,
	}
}

func convert(raw backend.DownloadsPage) Page {
	items := make([]Item, 0, len(raw.Items))
	for _, it := range raw.Items {
		kind := KindOther
		if it.MediaType == string(KindImage) {
			kind = KindImage
		}
		items = append(items, Item{Filename: it.Filename, Timestamp: it.Date, Kind: kind})
	}
	return Page{Items: items, Total: raw.Total, Offset: raw.Offset, Limit: raw.Limit}
}
