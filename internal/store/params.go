package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"

	"github.com/banshee-data/neuralfield/internal/dnf"
)

// ParamsFile is the parameter record shared between learning and recall.
const ParamsFile = "external_input_params.json"

type paramsRecord struct {
	SavedAt string         `json:"saved_at"`
	Stimuli []dnf.Stimulus `json:"external_input_params"`
}

// SaveStimuli writes the stimulus list, replacing any previous record.
func (s *Store) SaveStimuli(stimuli []dnf.Stimulus) error {
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if stimuli == nil {
		stimuli = []dnf.Stimulus{}
	}
	data, err := json.MarshalIndent(paramsRecord{
		SavedAt: s.clock.Now().UTC().Format(timestampStyle),
		Stimuli: stimuli,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode stimuli: %w", err)
	}
	path := filepath.Join(s.dir, ParamsFile)
	if err := s.fs.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	log.Printf("[store] Saved %d stimuli to %s", len(stimuli), path)
	return nil
}

// LoadStimuli reads the stimulus list written by SaveStimuli.
func (s *Store) LoadStimuli() ([]dnf.Stimulus, error) {
	path := filepath.Join(s.dir, ParamsFile)
	data, err := s.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("parameter record %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var rec paramsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return rec.Stimuli, nil
}
