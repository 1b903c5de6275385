// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

// Region names used as mirror map keys.
const (
	RegionKeyGlobal   = "global"
	RegionKeyMainland = "mainland"
)

// DefaultConfig returns the built-in registry written on first load.
//
// The three default environments cover the supported accelerator families:
// CUDA for NVIDIA, ROCm for AMD, and a CPU/XPU PaddlePaddle stack for
// everything else. Versions are pinned; an environment update is an
// explicit registry edit, never an implicit upgrade.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			TimeoutSeconds: 30,
			Retries:        3,
		},
		Mirrors: map[string]MirrorSet{
			RegionKeyGlobal: {
				PipIndexURL:   "https://pypi.org/simple",
				PythonBaseURL: "https://www.python.org/ftp/python/",
			},
			RegionKeyMainland: {
				PipIndexURL:   "https://mirrors.aliyun.com/pypi/simple/",
				PythonBaseURL: "https://registry.npmmirror.com/-/binary/python/",
			},
		},
		Environments: map[string]EnvironmentSpec{
			"yolov5-cuda": {
				PythonVersion: "3.8.10",
				Packages: []string{
					"torch==1.10.0+cu113",
					"torchvision==0.11.1+cu113",
					"torchaudio==0.10.0+cu113",
					"-r https://raw.githubusercontent.com/ultralytics/yolov5/master/requirements.txt",
				},
				ExtraIndexURL: "https://download.pytorch.org/whl/cu113",
			},
			"yolov8-rocm": {
				PythonVersion: "3.9.13",
				Packages: []string{
					"torch==2.0.0+rocm5.6",
					"torchvision==0.15.1+rocm5.6",
					"torchaudio==2.0.1+rocm5.6",
					"ultralytics==8.0.120",
				},
				ExtraIndexURL: "https://download.pytorch.org/whl/rocm5.6",
			},
			"ppyolo-xpu": {
				PythonVersion: "3.10.11",
				Packages: []string{
					"paddlepaddle==2.4.2",
					"paddledet",
				},
			},
		},
	}
}
