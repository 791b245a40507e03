// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseUserConfig(t *testing.T) {
	cfg, err := ParseUserConfig([]byte(`{
		// lab gateway
		"quantumMachinesManager_host": "10.1.2.3",
		"quantumMachinesManager_port": 9600,
		"quantumMachinesManager_strict_healthcheck": false,
		"quantumMachinesManager_user_token": "secret",
	}`))
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", cfg.HostOr("localhost"))
	assert.Equal(t, 9600, cfg.PortOr(0))
	assert.False(t, cfg.Strict())
	assert.Equal(t, "secret", cfg.UserToken)

	_, err = ParseUserConfig([]byte(`{"quantumMachinesManager_port": "x"}`))
	require.Error(t, err)
}

func Test_UserConfigDefaults(t *testing.T) {
	cfg := &UserConfig{}
	assert.True(t, cfg.Strict())
	assert.Equal(t, "localhost", cfg.HostOr("localhost"))
	assert.Equal(t, 80, cfg.PortOr(80))
}

func Test_UserConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".qm", "config.json")

	cfg, err := LoadUserConfig(path)
	require.NoError(t, err)
	assert.Equal(t, &UserConfig{}, cfg)

	port := 9510
	strict := false
	want := &UserConfig{Port: &port, StrictHealthCheck: &strict, UserToken: "tok"}
	require.NoError(t, want.Write(path))

	got, err := LoadUserConfig(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
