// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	BackendBaseURLKey   = "backend.base_url"
	BackendOperationKey = "backend.operation"

	ExportStatusKey     = "export.status"
	ExportDownloadedKey = "export.downloaded"
	ExportTotalKey      = "export.total"
	FailedFilesKey      = "export.failed_files"

	HistoryOffsetKey = "history.offset"
	HistoryLimitKey  = "history.limit"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// BackendAttributes creates attributes for a call against the export backend.
func BackendAttributes(baseURL, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(BackendBaseURLKey, baseURL),
		attribute.String(BackendOperationKey, operation),
	}
}

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ProgressAttributes describes a progress record.
func ProgressAttributes(status string, downloaded, total int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ExportStatusKey, status),
		attribute.Int64(ExportDownloadedKey, downloaded),
		attribute.Int64(ExportTotalKey, total),
	}
}

// PageAttributes describes a history page request.
func PageAttributes(offset, limit int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(HistoryOffsetKey, offset),
		attribute.Int(HistoryLimitKey, limit),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
