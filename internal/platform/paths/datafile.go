// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package paths confines client-local files to the data directory.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapes is returned when a data file resolves outside the data directory.
var ErrEscapes = errors.New("paths: data file escapes data directory")

// DataFile resolves name inside dataDir. The file may be missing, but an existing
// file or symlink must resolve underneath dataDir and must not be a directory.
func DataFile(dataDir, name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrEscapes, name)
	}

	root, err := filepath.Abs(dataDir)
	if err != nil {
		return "", fmt.Errorf("resolve data directory: %w", err)
	}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}

	full := filepath.Join(root, clean)
	resolved := full
	info, err := os.Stat(full)
	switch {
	case err == nil:
		if info.IsDir() {
			return "", fmt.Errorf("data file is a directory: %s", name)
		}
		if real, evalErr := filepath.EvalSymlinks(full); evalErr == nil {
			resolved = real
		}
	case errors.Is(err, os.ErrNotExist):
		if realDir, evalErr := filepath.EvalSymlinks(filepath.Dir(full)); evalErr == nil {
			resolved = filepath.Join(realDir, filepath.Base(full))
		}
	default:
		return "", fmt.Errorf("stat data file: %w", err)
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrEscapes, name)
	}
	return resolved, nil
}
