package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and change the configuration file. Environment variables override
the file: PRDMACHINE_GITHUB_TOKEN, PRDMACHINE_WEBHOOK_SECRET,
PRDMACHINE_DATA_DIR, OPENAI_API_KEY and ANTHROPIC_API_KEY.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE:  runConfigPath,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set one dotted key, e.g. "llm.provider anthropic". Secret keys prompt
for the value without echo when it is omitted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConfigSet,
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable keys",
	RunE:  runConfigKeys,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and test connections",
	RunE:  runConfigCheck,
}

// secretKeys are masked on display and prompted for without echo.
var secretKeys = []string{"llm.api_key", "github.token", "github.webhook_secret"}

func init() {
	for _, c := range []*cobra.Command{configCmd, configShowCmd, configPathCmd, configSetCmd, configKeysCmd} {
		c.Annotations = map[string]string{settingsOnly: "true"}
	}
	configCmd.AddCommand(configShowCmd, configPathCmd, configSetCmd, configKeysCmd, configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func requireSettings() error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if err := requireSettings(); err != nil {
		return err
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Repository]")
	cmd.Printf("  Default: %s\n", orUnset(settings.Repository.Default))
	cmd.Printf("  Local path: %s\n", orUnset(settings.Repository.LocalPath))
	cmd.Printf("  Canonical: %s\n", settings.Repository.CanonicalPath)
	cmd.Printf("  Summary: %s\n", settings.Repository.SummaryPath)
	cmd.Printf("  Plan: %s\n", settings.Repository.PlanPath)
	cmd.Println()

	cmd.Println("[LLM]")
	cmd.Printf("  Provider: %s\n", settings.LLM.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.LLM.Model)
	if settings.LLM.BaseURL != "" || settings.LLM.Provider.IsLocal() {
		cmd.Printf("  Base URL: %s\n", orUnset(settings.LLM.BaseURL))
	}
	if settings.LLM.Provider.RequiresAPIKey() {
		cmd.Printf("  API Key: %s\n", secret(settings.LLM.APIKey))
	}
	cmd.Printf("  Timeout: %s\n", settings.LLM.Timeout)
	cmd.Printf("  Record format: %s\n", settings.LLM.RecordFormat)
	status := "configured"
	if !settings.LLM.IsConfigured() {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Println()

	cmd.Println("[GitHub]")
	cmd.Printf("  Token: %s\n", secret(settings.GitHub.Token))
	if settings.GitHub.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.GitHub.BaseURL)
	}
	cmd.Printf("  Webhook secret: %s\n", secret(settings.GitHub.WebhookSecret))
	cmd.Println()

	cmd.Println("[Notify]")
	cmd.Printf("  Webhook URL: %s\n", orUnset(settings.Notify.WebhookURL))
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Backend: %s\n", settings.Storage.Backend)
	if settings.Storage.Backend == domain.StorageSQLite {
		cmd.Printf("  Data dir: %s\n", orUnset(settings.Storage.DataDir))
	}
	cmd.Println()

	cmd.Println("[Scheduler]")
	cmd.Printf("  Enabled: %s\n", yesNo(settings.Scheduler.Enabled))
	for _, task := range []struct {
		name string
		cfg  domain.TaskSettings
	}{
		{domain.TaskIDDistill, settings.Scheduler.Distill},
		{domain.TaskIDConflictDetect, settings.Scheduler.ConflictDetect},
		{domain.TaskIDDriftDetect, settings.Scheduler.DriftDetect},
	} {
		cmd.Printf("  %s: %s every %s\n", task.name, yesNo(task.cfg.Enabled), task.cfg.Interval)
	}
	cmd.Println()

	cmd.Println("[Workers]")
	cmd.Printf("  Size: %d\n", settings.Workers.Size)
	cmd.Println()

	cmd.Println("[Server]")
	cmd.Printf("  Address: %s\n", settings.Server.Addr)
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'prdmachine config set' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	if err := requireSettings(); err != nil {
		return err
	}
	cmd.Println(settingsService.Path())
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := requireSettings(); err != nil {
		return err
	}

	key := args[0]
	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		if !isSecretKey(key) {
			return fmt.Errorf("%w: missing value for %s", domain.ErrInvalidInput, key)
		}
		cmd.Printf("Enter %s: ", key)
		value = readPassword()
		cmd.Println()
	}

	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	if isSecretKey(key) {
		value = secret(value)
	}
	cmd.Printf("Set %s = %s\n", key, value)
	return nil
}

func runConfigKeys(cmd *cobra.Command, _ []string) error {
	if err := requireSettings(); err != nil {
		return err
	}
	for _, k := range settingsService.Keys() {
		cmd.Println(k)
	}
	return nil
}

func runConfigCheck(cmd *cobra.Command, _ []string) error {
	if err := requireSettings(); err != nil {
		return err
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	var failed []string
	for _, check := range checks {
		cmd.Printf("Checking %s... ", check.Name)
		if err := check.Run(cmd.Context()); err != nil {
			cmd.Printf("FAILED: %v\n", err)
			failed = append(failed, check.Name)
			continue
		}
		cmd.Println("OK")
	}
	if len(failed) > 0 {
		return fmt.Errorf("checks failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

func isSecretKey(key string) bool {
	return slices.Contains(secretKeys, key)
}

func secret(v string) string {
	if v == "" {
		return "(not set)"
	}
	return maskAPIKey(v)
}

func orUnset(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword() string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
