package memory

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store persists the full ledger. Implementations must tolerate a missing
// backing file by returning an empty entry list.
type Store interface {
	Load() ([]*Entry, error)
	Save(entries []*Entry) error
}

type ledgerFile struct {
	Version int      `yaml:"version"`
	Entries []*Entry `yaml:"entries"`
}

// FileStore keeps the ledger in a single YAML file. Writes go through a
// temporary file and rename so a crash never leaves a truncated ledger.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given path, creating the
// parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("memory: init ledger directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() ([]*Entry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read ledger %s: %w", s.path, err)
	}
	var f ledgerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("memory: parse ledger %s: %w", s.path, err)
	}
	return f.Entries, nil
}

func (s *FileStore) Save(entries []*Entry) error {
	data, err := yaml.Marshal(&ledgerFile{Version: 1, Entries: entries})
	if err != nil {
		return fmt.Errorf("memory: marshal ledger: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("memory: write temp ledger: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("memory: atomic rename %s: %w", s.path, err)
	}
	return nil
}
