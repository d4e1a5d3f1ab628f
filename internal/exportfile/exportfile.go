// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package exportfile turns the user's selected export data (a Snapchat ZIP, an
// unpacked export folder, or the memories JSON itself) into the JSON file the backend
// expects.
package exportfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/mholt/archives"
)

// MemoriesFile is the file inside a Snapchat export listing the memories.
const MemoriesFile = "memories_history.json"

var (
	ErrUnsupported = errors.New("exportfile: unsupported export file")
	ErrNotFound    = errors.New("exportfile: " + MemoriesFile + " not found")
)

// Prepared is an upload-ready JSON file. Cleanup removes it if it was extracted.
type Prepared struct {
	Path      string
	Extracted bool
}

// Cleanup removes an extracted temp file. It is a no-op for user files.
func (p Prepared) Cleanup() {
	if p.Extracted && p.Path != "" {
		_ = os.Remove(p.Path)
	}
}

// Preparer prepares export files, extracting into TempDir (os.TempDir when empty).
type Preparer struct {
	TempDir string
}

// Prepare resolves src to a JSON file. A .json file is used as is; archives and
// directories are searched for MemoriesFile at any depth.
func (p Preparer) Prepare(ctx context.Context, src string) (Prepared, error) {
	info, err := os.Stat(src)
	if err != nil {
		return Prepared{}, fmt.Errorf("exportfile: %w", err)
	}
	if !info.IsDir() && strings.EqualFold(filepath.Ext(src), ".json") {
		return Prepared{Path: src}, nil
	}

	fsys, err := archives.FileSystem(ctx, src, nil)
	if err != nil {
		return Prepared{}, fmt.Errorf("%w: %s: %v", ErrUnsupported, filepath.Base(src), err)
	}
	switch fsys.(type) {
	case archives.FileFS, *archives.FileFS:
		// not an archive
		return Prepared{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(src))
	}

	name, err := findMemories(fsys)
	if err != nil {
		return Prepared{}, err
	}
	out, err := p.extract(fsys, name)
	if err != nil {
		return Prepared{}, err
	}
	logger := xglog.WithComponent("exportfile")
	logger.Info().
		Str(xglog.FieldEvent, "exportfile.extracted").
		Str(xglog.FieldPath, src).
		Str("entry", name).
		Msg("memories file extracted")
	return Prepared{Path: out, Extracted: true}, nil
}

func findMemories(fsys fs.FS) (string, error) {
	var found string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(path.Base(p), MemoriesFile) {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("exportfile: scan: %w", err)
	}
	if found == "" {
		return "", ErrNotFound
	}
	return found, nil
}

func (p Preparer) extract(fsys fs.FS, name string) (string, error) {
	in, err := fsys.Open(name)
	if err != nil {
		return "", fmt.Errorf("exportfile: open %s: %w", name, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.CreateTemp(p.TempDir, "memories-*.json")
	if err != nil {
		return "", fmt.Errorf("exportfile: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("exportfile: copy %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("exportfile: %w", err)
	}
	return out.Name(), nil
}
