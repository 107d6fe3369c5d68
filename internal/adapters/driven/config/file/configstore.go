package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/prdmachine/internal/adapters/driven/config/kv"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

const (
	defaultDirName = ".prdmachine"
	fileName       = "config.toml"
)

// ConfigStore persists configuration as a TOML file. Every Set rewrites
// the file.
type ConfigStore struct {
	*kv.Values

	// mu serialises writes to filePath.
	mu       sync.Mutex
	filePath string
}

// NewConfigStore opens config.toml under configDir. An empty configDir
// means ~/.prdmachine.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, defaultDirName)
	}
	return NewConfigStoreAt(filepath.Join(configDir, fileName))
}

// NewConfigStoreAt opens the file at filePath, creating its directory.
func NewConfigStoreAt(filePath string) (*ConfigStore, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, err
	}

	s := &ConfigStore{Values: kv.New(nil), filePath: filePath}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Set stores value and rewrites the file. The value is dropped again if
// the write fails.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	undo := s.Values.Set(key, value)
	if err := s.write(); err != nil {
		undo()
		return err
	}
	return nil
}

func (s *ConfigStore) write() error {
	tree, err := kv.Nest(s.Snapshot())
	if err != nil {
		return err
	}
	data, err := toml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(s.filePath, data, 0o600)
}

// Load re-reads the file. A missing file reads as empty.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		s.Replace(map[string]any{})
		return nil
	}
	if err != nil {
		return err
	}

	var tables map[string]any
	if err := toml.Unmarshal(data, &tables); err != nil {
		return fmt.Errorf("parse %s: %w", s.filePath, err)
	}
	s.Replace(kv.Flatten(tables))
	return nil
}

func (s *ConfigStore) Path() string {
	return s.filePath
}
