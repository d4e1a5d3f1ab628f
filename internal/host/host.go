// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package host models the optional capabilities a surrounding desktop shell may
// provide: backend port discovery and a folder-selection prompt. Every capability is
// checked for presence before use; absence degrades to defaults.
package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ManuGH/snapexport/internal/config"
)

var (
	// ErrUnsupported is returned when a capability is not provided by the host.
	ErrUnsupported = errors.New("host: capability not supported")
	// ErrCancelled is returned when the user dismisses the folder prompt.
	ErrCancelled = errors.New("host: selection cancelled")
)

// PortDiscoverer returns the port the backend listens on.
type PortDiscoverer interface {
	DiscoverPort(ctx context.Context) (int, error)
}

// FolderPicker prompts for an output directory.
type FolderPicker interface {
	PickFolder(ctx context.Context) (string, error)
}

// Capabilities is the capability object injected into the core. Nil fields are
// unsupported capabilities.
type Capabilities struct {
	Ports   PortDiscoverer
	Folders FolderPicker
}

// SupportsPortDiscovery reports whether a port discoverer is available.
func (c Capabilities) SupportsPortDiscovery() bool { return c.Ports != nil }

// SupportsFolderPicker reports whether a folder picker is available.
func (c Capabilities) SupportsFolderPicker() bool { return c.Folders != nil }

// DiscoverPort calls the port discoverer if present.
func (c Capabilities) DiscoverPort(ctx context.Context) (int, error) {
	if !c.SupportsPortDiscovery() {
		return 0, ErrUnsupported
	}
	return c.Ports.DiscoverPort(ctx)
}

// PickFolder calls the folder picker if present.
func (c Capabilities) PickFolder(ctx context.Context) (string, error) {
	if !c.SupportsFolderPicker() {
		return "", ErrUnsupported
	}
	return c.Folders.PickFolder(ctx)
}

// StaticPort is a discoverer that always reports the same port.
type StaticPort int

func (p StaticPort) DiscoverPort(context.Context) (int, error) {
	if p <= 0 || p > 65535 {
		return 0, fmt.Errorf("host: invalid port %d", int(p))
	}
	return int(p), nil
}

// PortFile reads the port from a file the shell writes after spawning the backend.
type PortFile string

func (f PortFile) DiscoverPort(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := os.ReadFile(string(f)) // #nosec G304 -- path comes from operator config
	if err != nil {
		return 0, fmt.Errorf("host: read port file: %w", err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("host: parse port file %s: %w", string(f), err)
	}
	return StaticPort(port).DiscoverPort(ctx)
}

// StaticFolder answers the folder prompt with a preselected path; an empty path
// behaves like a cancelled prompt.
type StaticFolder string

func (f StaticFolder) PickFolder(context.Context) (string, error) {
	if strings.TrimSpace(string(f)) == "" {
		return "", ErrCancelled
	}
	return string(f), nil
}

// FromConfig builds the capabilities a headless host provides. An explicit port wins
// over a port file; with neither, port discovery is unsupported.
func FromConfig(cfg config.BackendConfig, folder string) Capabilities {
	var caps Capabilities
	switch {
	case cfg.Port > 0:
		caps.Ports = StaticPort(cfg.Port)
	case strings.TrimSpace(cfg.PortFile) != "":
		caps.Ports = PortFile(cfg.PortFile)
	}
	if folder != "" {
		caps.Folders = StaticFolder(folder)
	}
	return caps
}
