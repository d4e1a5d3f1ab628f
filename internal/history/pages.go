// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package history

// Ellipsis marks a collapsed run of pages in PagesToShow.
const Ellipsis = -1

const (
	edgePages   = 2
	aroundPages = 1
)

// TotalPages is ceil(total / pageSize).
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// PagesToShow returns the zero-based page indexes to render: the first two, the last
// two and those within one of current. Every run of omitted pages becomes a single
// Ellipsis.
func PagesToShow(current, totalPages int) []int {
	pages := make([]int, 0, 2*edgePages+2*aroundPages+3)
	for i := 0; i < totalPages; i++ {
		if i < edgePages || i >= totalPages-edgePages || (i >= current-aroundPages && i <= current+aroundPages) {
			pages = append(pages, i)
			continue
		}
		if pages[len(pages)-1] != Ellipsis {
			pages = append(pages, Ellipsis)
		}
	}
	return pages
}
