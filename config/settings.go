package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meetscribe/meetscribe/paths"
)

// SetDiarize persists the diarization default into the user override file,
// creating it if needed and preserving unrelated keys.
func SetDiarize(enabled bool) error {
	path, err := paths.SettingsFilePath()
	if err != nil {
		return err
	}
	return SetDiarizeAt(path, enabled)
}

// SetDiarizeAt is SetDiarize against an explicit settings file path.
func SetDiarizeAt(path string, enabled bool) error {
	settings, err := readUserSettings(path)
	if err != nil {
		return err
	}

	section, ok := settings["transcription"].(map[string]any)
	if !ok {
		section = map[string]any{}
	}
	section["diarize"] = enabled
	settings["transcription"] = section

	return writeUserSettings(path, settings)
}

// readUserSettings loads the raw user override file. Missing file yields an
// empty map.
func readUserSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, &MergeError{Path: path, Err: err}
	}
	return settings, nil
}

// writeUserSettings writes the user override file with stable indentation.
func writeUserSettings(path string, settings map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
