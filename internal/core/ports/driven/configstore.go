package driven

import "time"

// ConfigStore is a flat key/value view over the configuration file.
// Keys use dot notation matching the file's tables ("llm.provider").
type ConfigStore interface {
	// Get retrieves a value and reports whether the key exists.
	Get(key string) (any, bool)

	// GetString returns "" if the key is absent or not a string.
	GetString(key string) string

	// GetInt returns 0 if the key is absent or not an integer.
	GetInt(key string) int

	// GetBool returns false if the key is absent or not a boolean.
	GetBool(key string) bool

	// GetDuration parses a duration string ("6h"), returning 0 if absent or malformed.
	GetDuration(key string) time.Duration

	// Keys returns every set key in sorted order.
	Keys() []string

	// Set stores a value and persists immediately.
	Set(key string, value any) error

	// Load re-reads the file.
	Load() error

	// Path returns the configuration file path.
	Path() string
}
