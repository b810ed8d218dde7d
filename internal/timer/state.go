package timer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SaveState writes the timer atomically through a temp file. An empty path
// disables persistence.
func SaveState(path string, state State) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write timer state: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadState reads a saved timer. ok is false when nothing was saved.
func LoadState(path string) (state State, ok bool, err error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return State{}, false, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("read timer state: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return State{}, false, nil
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, false, fmt.Errorf("decode timer state: %w", err)
	}
	if state.Mode == "" {
		state.Mode = ModeStopwatch
	}
	if state.Phase == "" {
		state.Phase = PhaseWork
	}
	return state, true, nil
}
