package driving

import "github.com/custodia-labs/prdmachine/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get returns the effective settings: defaults, then the file,
	// then environment overrides.
	Get() (*domain.Settings, error)

	// Set stores one dotted key after checking the result still validates.
	Set(key, value string) error

	// Validate checks the effective settings.
	Validate() error

	// Path returns the configuration file path.
	Path() string

	// Keys lists every key Set accepts.
	Keys() []string
}
