// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the registry file name under the workspace directory.
const DefaultFileName = "config.yaml"

// Registry manages environment definitions backed by a YAML file.
//
// All mutating operations validate first, then persist; a mutation that
// fails validation or persistence leaves both the in-memory state and the
// file unchanged. Safe for concurrent use.
type Registry struct {
	path string

	mu     sync.RWMutex
	config *Config
}

// Load opens the registry at path, creating it with DefaultConfig when the
// file does not exist.
//
// # Description
//
// A fresh workstation has no registry file; first load writes the built-in
// defaults so `vdstudio env list` works immediately after install. An
// existing file that fails to parse or validate is an error, never
// silently replaced — a hand-edited file with a typo must not be clobbered.
//
// # Outputs
//
//   - *Registry: Ready registry bound to path
//   - error: *ConfigFileError on read/parse failure; validation errors
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Info("Registry file not found, creating defaults", "path", path)
		r := &Registry{path: path, config: DefaultConfig()}
		if err := r.save(); err != nil {
			return nil, err
		}
		return r, nil
	}
	if err != nil {
		return nil, &ConfigFileError{Path: path, Wrapped: err}
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, &ConfigFileError{Path: path, Wrapped: err}
	}
	if err := config.Validate(); err != nil {
		return nil, &ConfigFileError{Path: path, Wrapped: err}
	}

	return &Registry{path: path, config: &config}, nil
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return r.path
}

// Network returns the download tuning settings.
func (r *Registry) Network() NetworkConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Network
}

// Mirrors returns the mirror set for regionKey, falling back to the global
// set when the key is not configured.
func (r *Registry) Mirrors(regionKey string) MirrorSet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if set, ok := r.config.Mirrors[regionKey]; ok {
		return set
	}
	slog.Warn("No mirror set for region, falling back to global", "region", regionKey)
	return r.config.Mirrors[RegionKeyGlobal]
}

// Get returns the definition for name.
//
// # Outputs
//
//   - EnvironmentSpec: The definition (copy; mutations do not leak back)
//   - error: *UnknownEnvironmentError when name is not registered
func (r *Registry) Get(name string) (EnvironmentSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.config.Environments[name]
	if !ok {
		return EnvironmentSpec{}, &UnknownEnvironmentError{Name: name, Known: r.namesLocked()}
	}
	spec.Packages = append([]string(nil), spec.Packages...)
	return spec, nil
}

// List returns the registered environment names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// Add registers a new environment and persists the registry.
//
// # Outputs
//
//   - error: *DuplicateEnvironmentError when name exists; validation or
//     persistence errors otherwise
func (r *Registry) Add(name string, spec EnvironmentSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.config.Environments[name]; exists {
		return &DuplicateEnvironmentError{Name: name}
	}

	r.config.Environments[name] = spec
	if err := r.save(); err != nil {
		delete(r.config.Environments, name)
		return err
	}
	slog.Info("Environment registered", "name", name, "python_version", spec.PythonVersion)
	return nil
}

// UpdateRequest carries a partial environment update. Nil fields are left
// unchanged; a non-nil empty ExtraIndexURL clears the extra index.
type UpdateRequest struct {
	PythonVersion *string
	Packages      []string
	ExtraIndexURL *string
}

// Update applies a partial update to an existing environment and persists
// the registry.
//
// # Outputs
//
//   - error: *UnknownEnvironmentError when name is not registered;
//     validation or persistence errors otherwise
func (r *Registry) Update(name string, req UpdateRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, ok := r.config.Environments[name]
	if !ok {
		return &UnknownEnvironmentError{Name: name, Known: r.namesLocked()}
	}
	previous := spec
	previous.Packages = append([]string(nil), spec.Packages...)

	if req.PythonVersion != nil {
		spec.PythonVersion = *req.PythonVersion
	}
	if req.Packages != nil {
		spec.Packages = append([]string(nil), req.Packages...)
	}
	if req.ExtraIndexURL != nil {
		// Empty string clears the extra index.
		spec.ExtraIndexURL = *req.ExtraIndexURL
	}

	if err := spec.Validate(); err != nil {
		return err
	}

	r.config.Environments[name] = spec
	if err := r.save(); err != nil {
		r.config.Environments[name] = previous
		return err
	}
	slog.Info("Environment updated", "name", name)
	return nil
}

// Remove deletes an environment definition and persists the registry.
//
// Removing the definition does not touch provisioned files on disk; that is
// the lifecycle facade's job.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, ok := r.config.Environments[name]
	if !ok {
		return &UnknownEnvironmentError{Name: name, Known: r.namesLocked()}
	}

	delete(r.config.Environments, name)
	if err := r.save(); err != nil {
		r.config.Environments[name] = spec
		return err
	}
	slog.Info("Environment removed from registry", "name", name)
	return nil
}

// Reload replaces the in-memory state from the file. Used by the watcher
// after an external edit.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return &ConfigFileError{Path: r.path, Wrapped: err}
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return &ConfigFileError{Path: r.path, Wrapped: err}
	}
	if err := config.Validate(); err != nil {
		return &ConfigFileError{Path: r.path, Wrapped: err}
	}

	r.mu.Lock()
	r.config = &config
	r.mu.Unlock()
	return nil
}

// namesLocked returns sorted environment names. Caller holds r.mu.
func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.config.Environments))
	for name := range r.config.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// save writes the config atomically via temp file + rename. Caller holds
// r.mu (or is the sole owner during Load).
func (r *Registry) save() error {
	data, err := yaml.Marshal(r.config)
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return &ConfigFileError{Path: r.path, Wrapped: err}
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &ConfigFileError{Path: r.path, Wrapped: err}
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return &ConfigFileError{Path: r.path, Wrapped: err}
	}
	return nil
}
