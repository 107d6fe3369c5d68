package memory

import (
	"github.com/custodia-labs/prdmachine/internal/adapters/driven/config/kv"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore keeps configuration in process. Nothing is persisted.
type ConfigStore struct {
	*kv.Values
}

func NewConfigStore() *ConfigStore {
	return NewConfigStoreFrom(nil)
}

// NewConfigStoreFrom seeds the store with flat dot-keyed values.
func NewConfigStoreFrom(values map[string]any) *ConfigStore {
	return &ConfigStore{Values: kv.New(values)}
}

func (s *ConfigStore) Set(key string, value any) error {
	s.Values.Set(key, value)
	return nil
}

func (s *ConfigStore) Load() error { return nil }

func (s *ConfigStore) Path() string { return ":memory:" }
