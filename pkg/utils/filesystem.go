// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package utils provides utility functions for v2.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureConductorDir ensures the .conductor directory exists at the given base path.
// If basePath is empty or ".", it creates ./.conductor in the current directory.
// Otherwise, it creates {basePath}/.conductor.
//
// This is used by various facilities that need to store data in .conductor:
// - Tasks database: ./.conductor/tasks.db
// - Document store index state: {sourcePath}/.conductor/index_state_*.json
// - Checkpoints: {sourcePath}/.conductor/checkpoints/
// - Vector stores: {sourcePath}/.conductor/vectors/
//
// Returns the full path to the .conductor directory and any error.
func EnsureConductorDir(basePath string) (string, error) {
	var conductorDir string
	if basePath == "" || basePath == "." {
		// Root-level .conductor directory (for tasks.db, etc.)
		conductorDir = ".conductor"
	} else {
		// Source-specific .conductor directory (for document stores, checkpoints)
		conductorDir = filepath.Join(basePath, ".conductor")
	}

	if err := os.MkdirAll(conductorDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create .conductor directory at '%s': %w", conductorDir, err)
	}

	return conductorDir, nil
}
