package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	processedLinksFile = "processed_links.json"
	deliveredMediaFile = "delivered_media.json"
)

// JSONStore keeps each set as a JSON array of strings in its own file.
type JSONStore struct {
	dir string
}

func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}
	return &JSONStore{dir: dir}, nil
}

// Load reads both sets. A missing or unreadable file is an empty set.
func (s *JSONStore) Load(_ context.Context) (*State, error) {
	state := NewState()
	for _, link := range s.readSet(processedLinksFile) {
		state.MarkLinkProcessed(link)
	}
	for _, name := range s.readSet(deliveredMediaFile) {
		state.MarkMediaDelivered(name)
	}
	slog.Info("Loaded delivery state", "backend", "json", "links", len(state.processedLinks), "media", len(state.deliveredMedia))
	return state, nil
}

func (s *JSONStore) readSet(name string) []string {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to read state file, starting empty", "path", path, "error", err)
		}
		return nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		slog.Warn("Corrupt state file, starting empty", "path", path, "error", err)
		return nil
	}
	return values
}

// Flush rewrites both files through temp-file-then-rename.
func (s *JSONStore) Flush(_ context.Context, state *State) error {
	if err := s.writeSet(processedLinksFile, state.ProcessedLinks()); err != nil {
		return err
	}
	return s.writeSet(deliveredMediaFile, state.DeliveredMedia())
}

func (s *JSONStore) writeSet(name string, values []string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (s *JSONStore) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
