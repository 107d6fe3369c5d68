package domain

import "time"

// AIProvider identifies a text generation provider.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI cloud API (or any compatible endpoint).
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is the Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// DefaultLLMModels returns the model used when none is configured.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-haiku-latest",
	}
}

// StorageBackend selects the document store implementation.
type StorageBackend string

// Available storage backends.
const (
	StorageSQLite StorageBackend = "sqlite"
	StorageMemory StorageBackend = "memory"
)

// Settings is the complete application configuration.
type Settings struct {
	Repository RepositorySettings
	LLM        LLMSettings
	GitHub     GitHubSettings
	Notify     NotifySettings
	Storage    StorageSettings
	Scheduler  SchedulerSettings
	Workers    WorkerSettings
	Server     ServerSettings
}

// RepositorySettings describes the tracked repository and its documents.
type RepositorySettings struct {
	// Default is the owner/name used when a command omits --repo.
	Default string `validate:"omitempty,contains=/"`

	// LocalPath, when set, reads files from a local checkout instead of the API.
	LocalPath string `validate:"omitempty,dir"`

	// CanonicalPath is the canonical document path (PRD.md).
	CanonicalPath string `validate:"required"`

	// SummaryPath is the derived summary path (README.md).
	SummaryPath string `validate:"required"`

	// PlanPath is the derived implementation plan path (IP.md).
	PlanPath string `validate:"required"`
}

// PathFor returns the configured path of a document type.
func (r RepositorySettings) PathFor(t DocumentType) string {
	switch t {
	case DocumentTypeSummary:
		return r.SummaryPath
	case DocumentTypePlan:
		return r.PlanPath
	default:
		return r.CanonicalPath
	}
}

// RecordFormat is the line layout requested for structured generator output.
type RecordFormat string

// Available record formats.
const (
	// RecordFormatDelimited is pipe-separated fields behind a tag.
	RecordFormatDelimited RecordFormat = "delimited"

	// RecordFormatJSONLines is one JSON object per line.
	RecordFormatJSONLines RecordFormat = "jsonl"
)

// LLMSettings holds text generation provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider `validate:"omitempty,oneof=openai anthropic ollama"`

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint (for Ollama or compatible servers).
	BaseURL string `validate:"omitempty,url"`

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string

	// Timeout bounds a single generation call.
	Timeout time.Duration `validate:"gte=0"`

	// RecordFormat selects how conflicts, drift and stories are returned.
	RecordFormat RecordFormat `validate:"omitempty,oneof=delimited jsonl"`
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// GitHubSettings holds repository API access configuration.
type GitHubSettings struct {
	// Token is a personal access token.
	Token string

	// BaseURL targets a GitHub Enterprise API when set.
	BaseURL string `validate:"omitempty,url"`

	// WebhookSecret validates webhook signatures. Empty accepts unsigned deliveries.
	WebhookSecret string
}

// NotifySettings holds alert delivery configuration.
type NotifySettings struct {
	// WebhookURL is the default notification target for new documents.
	WebhookURL string `validate:"omitempty,url"`
}

// StorageSettings holds persistence configuration.
type StorageSettings struct {
	// Backend selects sqlite or memory.
	Backend StorageBackend `validate:"oneof=sqlite memory"`

	// DataDir is where the sqlite database lives.
	DataDir string
}

// SchedulerSettings configures the background tasks.
type SchedulerSettings struct {
	Enabled        bool
	Distill        TaskSettings
	ConflictDetect TaskSettings
	DriftDetect    TaskSettings
}

// TaskSettings configures one background task.
type TaskSettings struct {
	Enabled  bool
	Interval time.Duration `validate:"gte=1m"`
}

// ToSchedulerConfig converts the settings into the scheduler's task map.
func (s SchedulerSettings) ToSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: s.Enabled,
		Tasks: map[string]TaskConfig{
			TaskIDDistill:        {Enabled: s.Distill.Enabled, Interval: s.Distill.Interval},
			TaskIDConflictDetect: {Enabled: s.ConflictDetect.Enabled, Interval: s.ConflictDetect.Interval},
			TaskIDDriftDetect:    {Enabled: s.DriftDetect.Enabled, Interval: s.DriftDetect.Interval},
		},
	}
}

// WorkerSettings sizes the trigger worker pool.
type WorkerSettings struct {
	Size int `validate:"min=1,max=64"`
}

// ServerSettings configures the webhook and metrics listener.
type ServerSettings struct {
	Addr string `validate:"hostname_port"`
}

// DefaultSettings returns sensible defaults for all settings.
func DefaultSettings() Settings {
	sched := DefaultSchedulerConfig()
	task := func(id string) TaskSettings {
		tc := sched.Task(id)
		return TaskSettings{Enabled: tc.Enabled, Interval: tc.Interval}
	}

	return Settings{
		Repository: RepositorySettings{
			CanonicalPath: "PRD.md",
			SummaryPath:   "README.md",
			PlanPath:      "IP.md",
		},
		LLM: LLMSettings{
			Provider:     AIProviderOpenAI,
			Model:        DefaultLLMModels()[AIProviderOpenAI],
			Timeout:      2 * time.Minute,
			RecordFormat: RecordFormatDelimited,
		},
		Storage: StorageSettings{
			Backend: StorageSQLite,
		},
		Scheduler: SchedulerSettings{
			Enabled:        sched.Enabled,
			Distill:        task(TaskIDDistill),
			ConflictDetect: task(TaskIDConflictDetect),
			DriftDetect:    task(TaskIDDriftDetect),
		},
		Workers: WorkerSettings{Size: 4},
		Server:  ServerSettings{Addr: ":8080"},
	}
}
