package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook listener and scheduled tasks",
	Long: `Run until interrupted. The HTTP listener accepts GitHub webhooks on
/webhooks/github and JSON triggers on /triggers, and serves /metrics and
/healthz. Enabled scheduled tasks run in the background and triggers are
processed by a worker pool, one at a time per document.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Turn local file changes into push triggers",
	Long: `Watch a local checkout (default: repository.local_path, or the current
directory) and submit a push trigger for each burst of changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Scheduled task commands",
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run [task-id]",
	Short: "Run a scheduled task now",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRun,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled tasks",
	Args:  cobra.NoArgs,
	RunE:  runScheduleList,
}

var scheduleHistoryCmd = &cobra.Command{
	Use:   "history [task-id]",
	Short: "Show a task's recent runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleHistory,
}

var (
	serveAddr       string
	watchPatterns   []string
	scheduleHistory int
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr)")
	watchCmd.Flags().StringSliceVar(&watchPatterns, "pattern", nil, "Glob of files that count as changes (repeatable)")
	scheduleHistoryCmd.Flags().IntVarP(&scheduleHistory, "limit", "n", 10, "Maximum runs to show")

	scheduleCmd.AddCommand(scheduleRunCmd, scheduleListCmd, scheduleHistoryCmd)
	rootCmd.AddCommand(serveCmd, watchCmd, scheduleCmd)
}

func requireRuntime() error {
	if runtime == nil {
		return errors.New("runtime not configured")
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := requireRuntime(); err != nil {
		return err
	}
	logger.SetTimestamps(true)

	addr := serveAddr
	if addr == "" && settingsService != nil {
		if settings, err := settingsService.Get(); err == nil {
			addr = settings.Server.Addr
		}
	}
	if addr == "" {
		addr = domain.DefaultSettings().Server.Addr
	}

	cmd.Printf("Listening on %s\n", addr)
	return runtime.Serve(cmd.Context(), addr)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := requireRuntime(); err != nil {
		return err
	}
	logger.SetTimestamps(true)
	repo, err := targetRepo()
	if err != nil {
		return err
	}

	dir := "."
	switch {
	case len(args) == 1:
		dir = args[0]
	case settingsService != nil:
		if settings, err := settingsService.Get(); err == nil && settings.Repository.LocalPath != "" {
			dir = settings.Repository.LocalPath
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("root path error: %w", err)
	}

	cmd.Printf("Watching %s for %s (Ctrl+C to stop)\n", abs, repo)
	return runtime.Watch(cmd.Context(), repo, abs, watchPatterns)
}

func requireScheduler() error {
	if scheduler == nil {
		return errors.New("scheduler not configured")
	}
	return nil
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	if err := requireScheduler(); err != nil {
		return err
	}
	if err := scheduler.RunNow(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("task %s: %w", args[0], err)
	}
	cmd.Printf("Task %s completed\n", args[0])
	return nil
}

func runScheduleList(cmd *cobra.Command, _ []string) error {
	var cfg domain.SchedulerConfig
	if settingsService != nil {
		settings, err := settingsService.Get()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		cfg = settings.Scheduler.ToSchedulerConfig()
	} else {
		cfg = domain.DefaultSchedulerConfig()
	}

	out := cmd.OutOrStdout()
	var rows [][]string
	for _, id := range domain.TaskIDs() {
		tc := cfg.Task(id)
		rows = append(rows, []string{id, domain.TaskNames[id], flag(out, cfg.Enabled && tc.Enabled), tc.Interval.String()})
	}
	cmd.Print(renderTable(out, []string{"TASK", "NAME", "ENABLED", "INTERVAL"}, rows))
	if !cfg.Enabled {
		cmd.Println("Scheduler is disabled (scheduler.enabled = false).")
	}
	return nil
}

func runScheduleHistory(cmd *cobra.Command, args []string) error {
	if err := requireScheduler(); err != nil {
		return err
	}

	runs, err := scheduler.History(cmd.Context(), args[0], scheduleHistory)
	if err != nil {
		return fmt.Errorf("task %s: %w", args[0], err)
	}
	if len(runs) == 0 {
		cmd.Printf("Task %s has not run yet\n", args[0])
		return nil
	}

	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = truncate(r.Error, 60)
		}
		started := r.StartedAt
		rows = append(rows, []string{
			when(&started), r.Duration().Round(time.Millisecond).String(),
			strconv.Itoa(r.Documents), result,
		})
	}
	cmd.Print(renderTable(out, []string{"STARTED", "DURATION", "DOCUMENTS", "RESULT"}, rows))
	return nil
}
