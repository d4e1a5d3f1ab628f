// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldSessionID = "session_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldFeed      = "feed"
	FieldOperation = "operation"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldRevision = "revision"

	// Progress fields
	FieldDownloaded = "downloaded"
	FieldTotal      = "total"
	FieldFailures   = "failures"

	// Path / URL fields
	FieldPath       = "path"
	FieldBaseURL    = "base_url"
	FieldOutputPath = "output_path"

	// Network fields
	FieldPort     = "port"
	FieldStatus   = "status"
	FieldAttempts = "attempts"
)
