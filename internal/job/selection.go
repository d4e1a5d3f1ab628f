// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package job

import "strings"

// Selection is the job configuration the user builds before a run: the export data
// file, the output directory and the overlay flag passed through to the backend.
type Selection struct {
	FilePath     string `json:"filePath"`
	OutputDir    string `json:"outputDir"`
	MergeOverlay bool   `json:"mergeOverlay"`
}

// Ready reports whether a job may be started with this selection.
func (s Selection) Ready() bool {
	return strings.TrimSpace(s.FilePath) != "" && strings.TrimSpace(s.OutputDir) != ""
}
