package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Preset is one stored station: a frequency plus an audio program number
type Preset struct {
	Name      string  `json:"name"`
	Frequency float64 `json:"frequency"`
	Program   int     `json:"program"`
}

// PresetStore persists station presets to a JSON file. Every mutation writes
// the file; the in-memory slice is the source of truth between loads.
type PresetStore struct {
	mu      sync.Mutex
	file    string
	presets []Preset
}

// NewPresetStore loads presets from the given file. A missing file is not an
// error; it is created on the first save.
func NewPresetStore(file string) (*PresetStore, error) {
	s := &PresetStore{file: file}

	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}
	if err := json.Unmarshal(data, &s.presets); err != nil {
		return nil, fmt.Errorf("failed to parse presets file: %w", err)
	}
	return s, nil
}

// List returns a copy of all presets in stored order
func (s *PresetStore) List() []Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Preset, len(s.presets))
	copy(out, s.presets)
	return out
}

// Get returns the preset at the given index
func (s *PresetStore) Get(index int) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.presets) {
		return Preset{}, fmt.Errorf("preset index %d out of range", index)
	}
	return s.presets[index], nil
}

// Add appends a preset and saves
func (s *PresetStore) Add(p Preset) error {
	if err := validatePreset(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets = append(s.presets, p)
	return s.saveLocked()
}

// Remove deletes the preset at index and saves
func (s *PresetStore) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.presets) {
		return fmt.Errorf("preset index %d out of range", index)
	}
	s.presets = append(s.presets[:index], s.presets[index+1:]...)
	return s.saveLocked()
}

// Move reorders a preset from one index to another and saves
func (s *PresetStore) Move(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from < 0 || from >= len(s.presets) || to < 0 || to >= len(s.presets) {
		return fmt.Errorf("preset index out of range")
	}
	p := s.presets[from]
	s.presets = append(s.presets[:from], s.presets[from+1:]...)
	s.presets = append(s.presets[:to], append([]Preset{p}, s.presets[to:]...)...)
	return s.saveLocked()
}

// Update replaces the preset at index and saves
func (s *PresetStore) Update(index int, p Preset) error {
	if err := validatePreset(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.presets) {
		return fmt.Errorf("preset index %d out of range", index)
	}
	s.presets[index] = p
	return s.saveLocked()
}

func validatePreset(p Preset) error {
	if p.Frequency <= 0 {
		return fmt.Errorf("preset frequency must be greater than zero")
	}
	if p.Program < 0 || p.Program > 3 {
		return fmt.Errorf("preset program must be 0-3")
	}
	return nil
}

func (s *PresetStore) saveLocked() error {
	data, err := json.MarshalIndent(s.presets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal presets: %w", err)
	}
	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write presets file: %w", err)
	}
	if err := os.Rename(tmp, s.file); err != nil {
		return fmt.Errorf("failed to replace presets file: %w", err)
	}
	return nil
}
