package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

// StateFile is a JSON-file backed StateStore. Saves are full-file
// overwrites of a human-readable record; the processed-ID history is
// truncated to the newest maxHistory entries before writing.
type StateFile struct {
	path       string
	maxHistory int
}

// NewStateFile creates a StateFile at path, creating parent directories as
// needed. maxHistory <= 0 selects DefaultMaxHistory.
func NewStateFile(path string, maxHistory int) (*StateFile, error) {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &StateFile{path: path, maxHistory: maxHistory}, nil
}

// Load reads the persisted state. A missing or unparseable file yields the
// empty state rather than an error.
func (s *StateFile) Load(_ context.Context) (BotState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return BotState{}, nil
	}
	var state BotState
	if err := json.Unmarshal(data, &state); err != nil {
		return BotState{}, nil
	}
	return state, nil
}

// Save truncates the processed-ID history to the newest maxHistory entries
// (oldest dropped first) and overwrites the file.
func (s *StateFile) Save(_ context.Context, state BotState) error {
	if len(state.ProcessedIDs) > s.maxHistory {
		state.ProcessedIDs = state.ProcessedIDs[len(state.ProcessedIDs)-s.maxHistory:]
	}
	if state.ProcessedIDs == nil {
		state.ProcessedIDs = []int64{}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
