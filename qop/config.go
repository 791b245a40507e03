// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// UserConfig is the per-user client configuration shared with the other
// Quantum Machines clients. The file may contain comments and trailing
// commas.
type UserConfig struct {
	Port              *int    `json:"quantumMachinesManager_port,omitempty"`
	Host              *string `json:"quantumMachinesManager_host,omitempty"`
	StrictHealthCheck *bool   `json:"quantumMachinesManager_strict_healthcheck,omitempty"`
	UserToken         string  `json:"quantumMachinesManager_user_token"`
	ManagerPort       *int    `json:"quantumMachinesManager_managerPort,omitempty"`
}

// DefaultUserConfigPath returns ~/.qm/config.json.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate user config: %w", err)
	}
	return filepath.Join(home, ".qm", "config.json"), nil
}

// ParseUserConfig parses the JSONC content of a user config file.
func ParseUserConfig(data []byte) (*UserConfig, error) {
	var cfg UserConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing user config: %w", err)
	}
	return &cfg, nil
}

// LoadUserConfig reads the user config at path. A missing file yields an
// empty config.
func LoadUserConfig(path string) (*UserConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &UserConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading user config: %w", err)
	}
	return ParseUserConfig(data)
}

// Write stores c at path, creating its directory.
func (c *UserConfig) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("writing user config: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("writing user config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing user config: %w", err)
	}
	return nil
}

// Strict reports whether health check failures are fatal. It defaults to
// true.
func (c *UserConfig) Strict() bool {
	return c.StrictHealthCheck == nil || *c.StrictHealthCheck
}

// HostOr returns the configured host, or def when unset.
func (c *UserConfig) HostOr(def string) string {
	if c.Host != nil && *c.Host != "" {
		return *c.Host
	}
	return def
}

// PortOr returns the configured port, or def when unset.
func (c *UserConfig) PortOr(def int) int {
	if c.Port != nil {
		return *c.Port
	}
	return def
}
