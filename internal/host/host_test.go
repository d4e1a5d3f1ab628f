// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/snapexport/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilities_AbsentDegrades(t *testing.T) {
	var caps Capabilities
	assert.False(t, caps.SupportsPortDiscovery())
	assert.False(t, caps.SupportsFolderPicker())

	_, err := caps.DiscoverPort(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = caps.PickFolder(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestStaticPort(t *testing.T) {
	port, err := StaticPort(8123).DiscoverPort(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8123, port)

	_, err = StaticPort(0).DiscoverPort(context.Background())
	assert.Error(t, err)
}

func TestPortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port")
	require.NoError(t, os.WriteFile(path, []byte("8123\n"), 0600))

	port, err := PortFile(path).DiscoverPort(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8123, port)

	require.NoError(t, os.WriteFile(path, []byte("abc"), 0600))
	_, err = PortFile(path).DiscoverPort(context.Background())
	assert.Error(t, err)

	_, err = PortFile(filepath.Join(t.TempDir(), "missing")).DiscoverPort(context.Background())
	assert.Error(t, err)
}

func TestStaticFolder(t *testing.T) {
	got, err := StaticFolder("/exports").PickFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/exports", got)

	_, err = StaticFolder("").PickFolder(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestFromConfig(t *testing.T) {
	caps := FromConfig(config.BackendConfig{Port: 8123, PortFile: "/ignored"}, "/exports")
	require.True(t, caps.SupportsPortDiscovery())
	assert.Equal(t, StaticPort(8123), caps.Ports)
	assert.True(t, caps.SupportsFolderPicker())

	caps = FromConfig(config.BackendConfig{PortFile: "/run/backend.port"}, "")
	assert.Equal(t, PortFile("/run/backend.port"), caps.Ports)
	assert.False(t, caps.SupportsFolderPicker())

	caps = FromConfig(config.BackendConfig{}, "")
	assert.False(t, caps.SupportsPortDiscovery())
}
