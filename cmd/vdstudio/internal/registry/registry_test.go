// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)
	return r
}

func TestLoad_CreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	r, err := Load(path)
	require.NoError(t, err)

	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("registry file was not created: %v", statErr)
	}

	names := r.List()
	assert.Equal(t, []string{"ppyolo-xpu", "yolov5-cuda", "yolov8-rocm"}, names)

	spec, err := r.Get("yolov5-cuda")
	require.NoError(t, err)
	assert.Equal(t, "3.8.10", spec.PythonVersion)
	assert.Equal(t, "https://download.pytorch.org/whl/cu113", spec.ExtraIndexURL)
	assert.Len(t, spec.Packages, 4)
}

func TestLoad_RoundTripIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	_, err := Load(path)
	require.NoError(t, err)

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	// A second load of an existing valid file must not rewrite it.
	_, err = Load(path)
	require.NoError(t, err)

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoad_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("environments: [not, a, map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)

	var cfgErr *ConfigFileError
	assert.True(t, errors.As(err, &cfgErr), "expected *ConfigFileError, got %T", err)

	// The corrupt file must survive the failed load.
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "not, a, map")
}

func TestGet_UnknownName(t *testing.T) {
	r := loadTestRegistry(t)

	_, err := r.Get("nonexistent")
	var unknownErr *UnknownEnvironmentError
	require.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, "nonexistent", unknownErr.Name)
	assert.Contains(t, unknownErr.Known, "yolov5-cuda")
}

func TestAdd_PersistsAndRejectsDuplicates(t *testing.T) {
	r := loadTestRegistry(t)

	spec := EnvironmentSpec{
		PythonVersion: "3.11.4",
		Packages:      []string{"onnxruntime==1.16.0"},
	}
	require.NoError(t, r.Add("onnx-cpu", spec))

	// A reload from disk must see the new environment.
	reloaded, err := Load(r.Path())
	require.NoError(t, err)
	got, err := reloaded.Get("onnx-cpu")
	require.NoError(t, err)
	assert.Equal(t, spec.PythonVersion, got.PythonVersion)

	before, err := os.ReadFile(r.Path())
	require.NoError(t, err)

	err = r.Add("onnx-cpu", spec)
	var dupErr *DuplicateEnvironmentError
	require.True(t, errors.As(err, &dupErr))

	// Rejected duplicate must leave the file byte-identical.
	after, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAdd_RejectsInvalidSpec(t *testing.T) {
	r := loadTestRegistry(t)

	err := r.Add("broken", EnvironmentSpec{PythonVersion: "3.11.4"})
	require.Error(t, err, "a spec with no packages must be rejected")

	_, getErr := r.Get("broken")
	require.Error(t, getErr, "rejected spec must not be registered")
}

func TestUpdate_PartialFieldsAndExtraIndexClearing(t *testing.T) {
	r := loadTestRegistry(t)

	version := "3.8.18"
	require.NoError(t, r.Update("yolov5-cuda", UpdateRequest{PythonVersion: &version}))

	spec, err := r.Get("yolov5-cuda")
	require.NoError(t, err)
	assert.Equal(t, "3.8.18", spec.PythonVersion)
	assert.NotEmpty(t, spec.ExtraIndexURL, "untouched fields must survive a partial update")

	empty := ""
	require.NoError(t, r.Update("yolov5-cuda", UpdateRequest{ExtraIndexURL: &empty}))

	spec, err = r.Get("yolov5-cuda")
	require.NoError(t, err)
	assert.Empty(t, spec.ExtraIndexURL, "empty extra index clears the field")
}

func TestUpdate_UnknownName(t *testing.T) {
	r := loadTestRegistry(t)

	version := "3.12.0"
	err := r.Update("nonexistent", UpdateRequest{PythonVersion: &version})
	var unknownErr *UnknownEnvironmentError
	assert.True(t, errors.As(err, &unknownErr))
}

func TestRemove(t *testing.T) {
	r := loadTestRegistry(t)

	require.NoError(t, r.Remove("ppyolo-xpu"))
	_, err := r.Get("ppyolo-xpu")
	require.Error(t, err)

	// Removal persists across reloads.
	reloaded, err := Load(r.Path())
	require.NoError(t, err)
	assert.NotContains(t, reloaded.List(), "ppyolo-xpu")

	var unknownErr *UnknownEnvironmentError
	assert.True(t, errors.As(r.Remove("ppyolo-xpu"), &unknownErr))
}

func TestMirrors_FallsBackToGlobal(t *testing.T) {
	r := loadTestRegistry(t)

	global := r.Mirrors(RegionKeyGlobal)
	assert.Equal(t, "https://pypi.org/simple", global.PipIndexURL)

	mainland := r.Mirrors(RegionKeyMainland)
	assert.Equal(t, "https://mirrors.aliyun.com/pypi/simple/", mainland.PipIndexURL)

	unknown := r.Mirrors("antarctica")
	assert.Equal(t, global, unknown)
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := loadTestRegistry(t)

	spec, err := r.Get("yolov8-rocm")
	require.NoError(t, err)
	spec.Packages[0] = "mutated"

	again, err := r.Get("yolov8-rocm")
	require.NoError(t, err)
	assert.Equal(t, "torch==2.0.0+rocm5.6", again.Packages[0])
}
