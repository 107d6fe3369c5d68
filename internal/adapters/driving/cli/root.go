// Package cli provides the prdmachine command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// version is set at build time.
var version = "dev"

// Command annotations that limit what Bootstrap builds.
const (
	skipBootstrap = "skip-bootstrap"
	settingsOnly  = "settings-only"
)

// Runtime starts the long-running surfaces.
type Runtime interface {
	// Serve runs the scheduler, trigger workers and the HTTP listener on
	// addr until ctx ends.
	Serve(ctx context.Context, addr string) error

	// Watch turns file changes under root into push triggers for repo
	// until ctx ends.
	Watch(ctx context.Context, repo, root string, patterns []string) error
}

// Services holds the collaborators commands run against.
// Any field may be nil when it is not configured.
type Services struct {
	Evolution driving.EvolutionService
	Settings  driving.SettingsService
	Scheduler driving.Scheduler
	Runtime   Runtime

	// DefaultRepo is used when a command omits --repo.
	DefaultRepo string

	// Checks are connection tests run by "config check".
	Checks []Check

	// Close releases resources once the command finishes.
	Close func() error
}

// Check tests one external connection.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// BootstrapOptions tells Bootstrap what the command needs.
type BootstrapOptions struct {
	// ConfigPath is the config file (the default location when empty).
	ConfigPath string

	// SettingsOnly asks for the settings service alone.
	SettingsOnly bool
}

// Bootstrap builds Services before a command runs.
type Bootstrap func(ctx context.Context, opts BootstrapOptions) (*Services, error)

var (
	bootstrap Bootstrap

	evolutionService driving.EvolutionService
	settingsService  driving.SettingsService
	scheduler        driving.Scheduler
	runtime          Runtime
	defaultRepo      string
	checks           []Check
	closeServices    func() error
)

// Persistent flags.
var (
	verbose    bool
	configPath string
	repoFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "prdmachine",
	Short: "Keep product documents in step with the code",
	Long: `prdmachine tracks a repository's canonical PRD and the documents derived
from it. It distills repository activity into new versions, detects
conflicts and drift, aligns derived documents and exports work items.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.prdmachine/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&repoFlag, "repo", "r", "", "Repository as owner/name (default from config)")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetBootstrap registers the function that builds services before a command runs.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices installs services directly, bypassing Bootstrap.
func SetServices(s *Services) {
	evolutionService = s.Evolution
	settingsService = s.Settings
	scheduler = s.Scheduler
	runtime = s.Runtime
	defaultRepo = s.DefaultRepo
	checks = s.Checks
	closeServices = s.Close
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if bootstrap == nil || cmd.Annotations[skipBootstrap] != "" {
		return nil
	}
	s, err := bootstrap(cmd.Context(), BootstrapOptions{
		ConfigPath:   configPath,
		SettingsOnly: cmd.Annotations[settingsOnly] != "",
	})
	if err != nil {
		return err
	}
	SetServices(s)
	return nil
}

func teardown() error {
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	closeServices = nil
	return err
}

func requireEvolution() error {
	if evolutionService == nil {
		return errors.New("evolution service not configured")
	}
	return nil
}

// targetRepo resolves --repo against the configured default.
func targetRepo() (string, error) {
	if repoFlag != "" {
		return repoFlag, nil
	}
	if defaultRepo != "" {
		return defaultRepo, nil
	}
	return "", errors.New("no repository: pass --repo or set repository.default")
}

// docError prefixes err with the document identity.
func docError(repo, path string, err error) error {
	if path == "" {
		return fmt.Errorf("%s: %w", repo, err)
	}
	return fmt.Errorf("%s:%s: %w", repo, path, err)
}
