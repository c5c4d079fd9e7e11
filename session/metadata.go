package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Metadata is the session metadata document (*_metadata.json) written next
// to the artifacts. Recording sessions carry the started/stopped stamps;
// processed imports carry the original file, its modification time, and the
// processing stamp.
type Metadata struct {
	MeetingTitle     string  `json:"meeting_title"`
	CallType         string  `json:"call_type"`
	CallTypeName     string  `json:"call_type_name"`
	PersonName       string  `json:"person_name,omitempty"`
	RecordingStarted string  `json:"recording_started,omitempty"`
	RecordingStopped *string `json:"recording_stopped,omitempty"`
	OriginalFile     string  `json:"original_file,omitempty"`
	FileDate         string  `json:"file_date,omitempty"`
	ProcessedAt      string  `json:"processed_at,omitempty"`
}

// WriteMetadata persists the metadata document.
func WriteMetadata(path string, m Metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadMetadata loads a metadata document.
func ReadMetadata(path string) (Metadata, error) {
	var m Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("failed to read metadata %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse metadata %s: %w", path, err)
	}
	return m, nil
}

// UpdateMetadata applies fn to an existing metadata document and writes it
// back. A missing document is not an error; there is nothing to update.
func UpdateMetadata(path string, fn func(*Metadata)) error {
	m, err := ReadMetadata(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	fn(&m)
	return WriteMetadata(path, m)
}
