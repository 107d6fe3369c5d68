package services

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyRepoDefault       = "repository.default"
	keyRepoLocalPath     = "repository.local_path"
	keyRepoCanonicalPath = "repository.canonical_path"
	keyRepoSummaryPath   = "repository.summary_path"
	keyRepoPlanPath      = "repository.plan_path"
	keyLLMProvider       = "llm.provider"
	keyLLMModel          = "llm.model"
	keyLLMBaseURL        = "llm.base_url"
	keyLLMAPIKey         = "llm.api_key"
	keyLLMTimeout        = "llm.timeout"
	keyLLMRecordFormat   = "llm.record_format"
	keyGitHubToken       = "github.token"
	keyGitHubBaseURL     = "github.base_url"
	keyGitHubSecret      = "github.webhook_secret"
	keyNotifyWebhook     = "notify.webhook_url"
	keyStorageBackend    = "storage.backend"
	keyStorageDataDir    = "storage.data_dir"
	keySchedulerEnabled  = "scheduler.enabled"
	keyWorkersSize       = "workers.size"
	keyServerAddr        = "server.addr"
)

// Environment overrides.
//
//nolint:gosec // G101: These are variable names, not actual credentials.
const (
	EnvGitHubToken     = "PRDMACHINE_GITHUB_TOKEN"
	EnvWebhookSecret   = "PRDMACHINE_WEBHOOK_SECRET"
	EnvDataDir         = "PRDMACHINE_DATA_DIR"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
)

// schedulerTaskKeys maps task IDs to their config table (underscore version for TOML).
var schedulerTaskKeys = map[string]string{
	domain.TaskIDDistill:        "distill",
	domain.TaskIDConflictDetect: "conflict_detect",
	domain.TaskIDDriftDetect:    "drift_detect",
}

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindInt
	kindDuration
)

// knownKeys lists every settable key with the type it is stored as.
func knownKeys() map[string]valueKind {
	keys := map[string]valueKind{
		keyRepoDefault:       kindString,
		keyRepoLocalPath:     kindString,
		keyRepoCanonicalPath: kindString,
		keyRepoSummaryPath:   kindString,
		keyRepoPlanPath:      kindString,
		keyLLMProvider:       kindString,
		keyLLMModel:          kindString,
		keyLLMBaseURL:        kindString,
		keyLLMAPIKey:         kindString,
		keyLLMTimeout:        kindDuration,
		keyLLMRecordFormat:   kindString,
		keyGitHubToken:       kindString,
		keyGitHubBaseURL:     kindString,
		keyGitHubSecret:      kindString,
		keyNotifyWebhook:     kindString,
		keyStorageBackend:    kindString,
		keyStorageDataDir:    kindString,
		keySchedulerEnabled:  kindBool,
		keyWorkersSize:       kindInt,
		keyServerAddr:        kindString,
	}
	for _, table := range schedulerTaskKeys {
		keys["scheduler."+table+".enabled"] = kindBool
		keys["scheduler."+table+".interval"] = kindDuration
	}
	return keys
}

// KnownKeys returns every settable key in sorted order.
func KnownKeys() []string {
	keys := make([]string, 0, len(knownKeys()))
	for k := range knownKeys() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	validate    *validator.Validate
	getenv      func(string) string
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		validate:    validator.New(),
		getenv:      os.Getenv,
	}
}

// Get returns the effective settings: defaults, then the file, then
// environment overrides.
func (s *SettingsService) Get() (*domain.Settings, error) {
	return s.resolve(settingsLayer{store: s.configStore}), nil
}

// Set stores one dotted key. The value is parsed according to the key's
// type and the resulting settings must still validate.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := knownKeys()[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	parsed, err := parseSettingValue(kind, value)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
	}
	if key == keyLLMProvider && !domain.AIProvider(value).IsValid() {
		return fmt.Errorf("%w: unknown llm provider %q", domain.ErrInvalidInput, value)
	}

	candidate := s.resolve(settingsLayer{store: s.configStore, key: key, value: parsed})
	if err := s.check(candidate); err != nil {
		return err
	}

	// Durations are stored in their string form so the file stays readable.
	if d, isDuration := parsed.(time.Duration); isDuration {
		parsed = d.String()
	}
	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Validate checks the effective settings.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.check(settings)
}

// Path returns the configuration file path.
func (s *SettingsService) Path() string {
	return s.configStore.Path()
}

// Keys lists every key Set accepts.
func (s *SettingsService) Keys() []string {
	return KnownKeys()
}

// GetSchedulerConfig returns the scheduler configuration.
func (s *SettingsService) GetSchedulerConfig() domain.SchedulerConfig {
	settings, _ := s.Get()
	return settings.Scheduler.ToSchedulerConfig()
}

func (s *SettingsService) check(settings *domain.Settings) error {
	if err := s.validate.Struct(settings); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, describeValidation(err))
	}
	return nil
}

func (s *SettingsService) resolve(src settingsLayer) *domain.Settings {
	d := domain.DefaultSettings()

	settings := &domain.Settings{
		Repository: domain.RepositorySettings{
			Default:       src.getString(keyRepoDefault, d.Repository.Default),
			LocalPath:     src.getString(keyRepoLocalPath, d.Repository.LocalPath),
			CanonicalPath: src.getString(keyRepoCanonicalPath, d.Repository.CanonicalPath),
			SummaryPath:   src.getString(keyRepoSummaryPath, d.Repository.SummaryPath),
			PlanPath:      src.getString(keyRepoPlanPath, d.Repository.PlanPath),
		},
		LLM: domain.LLMSettings{
			Provider:     src.getProvider(keyLLMProvider, d.LLM.Provider),
			BaseURL:      src.getString(keyLLMBaseURL, ""), // No default - empty is valid for cloud providers
			APIKey:       src.getString(keyLLMAPIKey, ""),
			Timeout:      src.getDuration(keyLLMTimeout, d.LLM.Timeout),
			RecordFormat: domain.RecordFormat(src.getString(keyLLMRecordFormat, string(d.LLM.RecordFormat))),
		},
		GitHub: domain.GitHubSettings{
			Token:         src.getString(keyGitHubToken, ""),
			BaseURL:       src.getString(keyGitHubBaseURL, ""),
			WebhookSecret: src.getString(keyGitHubSecret, ""),
		},
		Notify: domain.NotifySettings{
			WebhookURL: src.getString(keyNotifyWebhook, ""),
		},
		Storage: domain.StorageSettings{
			Backend: domain.StorageBackend(src.getString(keyStorageBackend, string(d.Storage.Backend))),
			DataDir: src.getString(keyStorageDataDir, d.Storage.DataDir),
		},
		Scheduler: domain.SchedulerSettings{
			Enabled: src.getBool(keySchedulerEnabled, d.Scheduler.Enabled),
		},
		Workers: domain.WorkerSettings{
			Size: src.getInt(keyWorkersSize, d.Workers.Size),
		},
		Server: domain.ServerSettings{
			Addr: src.getString(keyServerAddr, d.Server.Addr),
		},
	}

	// The model default follows the provider.
	settings.LLM.Model = src.getString(keyLLMModel, domain.DefaultLLMModels()[settings.LLM.Provider])

	settings.Scheduler.Distill = src.getTask(domain.TaskIDDistill, d.Scheduler.Distill)
	settings.Scheduler.ConflictDetect = src.getTask(domain.TaskIDConflictDetect, d.Scheduler.ConflictDetect)
	settings.Scheduler.DriftDetect = src.getTask(domain.TaskIDDriftDetect, d.Scheduler.DriftDetect)

	s.applyEnv(settings)
	return settings
}

func (s *SettingsService) applyEnv(settings *domain.Settings) {
	if v := s.getenv(EnvGitHubToken); v != "" {
		settings.GitHub.Token = v
	}
	if v := s.getenv(EnvWebhookSecret); v != "" {
		settings.GitHub.WebhookSecret = v
	}
	if v := s.getenv(EnvDataDir); v != "" {
		settings.Storage.DataDir = v
	}
	if settings.LLM.APIKey != "" {
		return
	}
	switch settings.LLM.Provider {
	case domain.AIProviderOpenAI:
		settings.LLM.APIKey = s.getenv(EnvOpenAIAPIKey)
	case domain.AIProviderAnthropic:
		settings.LLM.APIKey = s.getenv(EnvAnthropicAPIKey)
	}
}

// settingsLayer reads from the config store, with one optional pending
// key that shadows the stored value.
type settingsLayer struct {
	store driven.ConfigStore
	key   string
	value any
}

func (l settingsLayer) get(key string) (any, bool) {
	if l.key != "" && key == l.key {
		return l.value, true
	}
	return l.store.Get(key)
}

func (l settingsLayer) getString(key, defaultVal string) string {
	val, ok := l.get(key)
	if !ok {
		return defaultVal
	}
	str, ok := val.(string)
	if !ok || str == "" {
		return defaultVal
	}
	return str
}

func (l settingsLayer) getInt(key string, defaultVal int) int {
	val, ok := l.get(key)
	if !ok {
		return defaultVal
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultVal
	}
}

func (l settingsLayer) getBool(key string, defaultVal bool) bool {
	val, ok := l.get(key)
	if !ok {
		return defaultVal
	}
	b, ok := val.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func (l settingsLayer) getDuration(key string, defaultVal time.Duration) time.Duration {
	val, ok := l.get(key)
	if !ok {
		return defaultVal
	}
	switch v := val.(type) {
	case time.Duration:
		return v
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return defaultVal
		}
		return d
	default:
		return defaultVal
	}
}

func (l settingsLayer) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	provider := domain.AIProvider(l.getString(key, string(defaultVal)))
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (l settingsLayer) getTask(taskID string, defaultVal domain.TaskSettings) domain.TaskSettings {
	prefix := "scheduler." + schedulerTaskKeys[taskID] + "."
	return domain.TaskSettings{
		Enabled:  l.getBool(prefix+"enabled", defaultVal.Enabled),
		Interval: l.getDuration(prefix+"interval", defaultVal.Interval),
	}
}

func parseSettingValue(kind valueKind, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case kindBool:
		return strconv.ParseBool(raw)
	case kindInt:
		return strconv.Atoi(raw)
	case kindDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

// describeValidation renders validator errors as "Field: tag" pairs.
func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
