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

package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kadirpekel/docflow/pkg/utils"
)

// ErrScheduleNotFound is returned when a schedule_id has no spec.json.
var ErrScheduleNotFound = errors.New("schedule not found")

// Store persists Spec/Status pairs under SchedulesDir/<schedule_id>/
// (spec.md §4.9), using the same atomic-write-then-rename discipline as
// pkg/orchestrator's status.json.
type Store struct {
	SchedulesDir string
}

// NewStore constructs a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{SchedulesDir: dir}
}

func (s *Store) scheduleDir(scheduleID string) (string, error) {
	normalized := strings.TrimSpace(scheduleID)
	if normalized == "" {
		return "", fmt.Errorf("schedule_id is required")
	}
	return filepath.Join(s.SchedulesDir, normalized), nil
}

func (s *Store) specPath(scheduleID string) (string, error) {
	dir, err := s.scheduleDir(scheduleID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "spec.json"), nil
}

func (s *Store) statusPath(scheduleID string) (string, error) {
	dir, err := s.scheduleDir(scheduleID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "status.json"), nil
}

// ListScheduleIDs returns every schedule_id with a directory under
// SchedulesDir, sorted.
func (s *Store) ListScheduleIDs() ([]string, error) {
	entries, err := os.ReadDir(s.SchedulesDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadSpec reads and validates a schedule's spec.json.
func (s *Store) LoadSpec(scheduleID string) (*Spec, error) {
	path, err := s.specPath(scheduleID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, scheduleID)
	}
	if err != nil {
		return nil, err
	}
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse spec.json for %s: %w", scheduleID, err)
	}
	if err := spec.ValidateBasic(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// SaveSpec validates and atomically persists spec.
func (s *Store) SaveSpec(spec *Spec) error {
	if err := spec.ValidateBasic(); err != nil {
		return err
	}
	path, err := s.specPath(spec.ScheduleID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(path, data, 0o644)
}

// LoadStatus reads a schedule's status.json.
func (s *Store) LoadStatus(scheduleID string) (*Status, error) {
	path, err := s.statusPath(scheduleID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, scheduleID)
	}
	if err != nil {
		return nil, err
	}
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status.json for %s: %w", scheduleID, err)
	}
	return &status, nil
}

// LoadStatusIfPresent returns nil, nil when no status.json exists yet
// (a schedule that has never fired).
func (s *Store) LoadStatusIfPresent(scheduleID string) (*Status, error) {
	path, err := s.statusPath(scheduleID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return s.LoadStatus(scheduleID)
}

// SaveStatus atomically persists status for scheduleID.
func (s *Store) SaveStatus(scheduleID string, status *Status) error {
	path, err := s.statusPath(scheduleID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(path, data, 0o644)
}
