package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Writer persists the published records as a JSON array. Writes go through
// a temp file and rename, so a crash mid-write never leaves consumers with
// a truncated artifact.
type Writer struct {
	logger *zap.Logger
}

// NewWriter creates a writer.
func NewWriter(logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{logger: logger}
}

// Write serializes the records to path, creating parent directories as
// needed. An empty batch still produces a valid empty JSON array.
func (w *Writer) Write(records []Record, path string) error {
	if records == nil {
		records = []Record{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize output: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp output file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp output file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move output into place: %w", err)
	}

	w.logger.Info("output written", zap.String("path", path), zap.Int("items", len(records)))
	return nil
}

// ReadTitles loads the titles from a previously written output file. They
// feed the next run's duplicate detection; a missing or unreadable file
// just yields no history.
func ReadTitles(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil
	}

	titles := make([]string, 0, len(records))
	for _, record := range records {
		if record.Title != "" {
			titles = append(titles, record.Title)
		}
	}
	return titles
}
