// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package registry persists environment definitions and mirror configuration
as a YAML file under the workspace directory.

The registry file is the single source of truth for what "yolov5-cuda"
means on this machine: which Python version, which packages, which extra
package index. A missing file is created with the built-in defaults on
first load so a fresh install works without any manual configuration.
*/
package registry

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance for config structs.
var validate = validator.New(validator.WithRequiredStructEnabled())

// EnvironmentSpec defines one provisionable environment.
type EnvironmentSpec struct {
	// PythonVersion is the full interpreter version, e.g. "3.8.10".
	PythonVersion string `yaml:"python_version" validate:"required"`

	// Packages are pip requirement strings installed in order. Entries
	// may be pinned ("torch==1.10.0+cu113") or requirement-file
	// references ("-r https://.../requirements.txt"). Blank entries are
	// skipped at install time.
	Packages []string `yaml:"packages" validate:"required,min=1"`

	// ExtraIndexURL is an additional pip index for framework wheels
	// (PyTorch CUDA/ROCm builds). Empty means none.
	ExtraIndexURL string `yaml:"extra_index_url,omitempty" validate:"omitempty,url"`
}

// MirrorSet holds the download sources for one network region.
type MirrorSet struct {
	// PipIndexURL is the primary pip package index.
	PipIndexURL string `yaml:"pip_index_url" validate:"required,url"`

	// PythonBaseURL is the base URL for interpreter archives; the
	// provisioner appends "<version>/<platform-file>".
	PythonBaseURL string `yaml:"python_base_url" validate:"required,url"`
}

// NetworkConfig holds download tuning shared by all environments.
type NetworkConfig struct {
	// TimeoutSeconds bounds each download attempt.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"required,min=1"`

	// Retries is the download attempt count.
	Retries int `yaml:"retries" validate:"required,min=1"`
}

// Config is the full registry file.
type Config struct {
	// Network tunes downloads.
	Network NetworkConfig `yaml:"network" validate:"required"`

	// Mirrors maps region name ("global", "mainland") to its sources.
	Mirrors map[string]MirrorSet `yaml:"mirrors" validate:"required,min=1,dive"`

	// Environments maps environment name to its definition.
	Environments map[string]EnvironmentSpec `yaml:"environments" validate:"required,dive"`
}

// Validate checks the config against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid registry configuration: %w", err)
	}
	return nil
}

// Validate checks a single environment definition.
func (s *EnvironmentSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid environment definition: %w", err)
	}
	return nil
}
