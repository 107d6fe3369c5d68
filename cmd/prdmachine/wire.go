package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/prdmachine/internal/adapters/driven/ai"
	"github.com/custodia-labs/prdmachine/internal/adapters/driven/config/file"
	"github.com/custodia-labs/prdmachine/internal/adapters/driven/notify/webhook"
	"github.com/custodia-labs/prdmachine/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/prdmachine/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/prdmachine/internal/adapters/driving/cli"
	"github.com/custodia-labs/prdmachine/internal/adapters/driving/server"
	"github.com/custodia-labs/prdmachine/internal/connectors/filesystem"
	"github.com/custodia-labs/prdmachine/internal/connectors/github"
	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/core/services"
	"github.com/custodia-labs/prdmachine/internal/logger"
	"github.com/custodia-labs/prdmachine/internal/metrics"
)

// drainTimeout bounds how long serve waits for in-flight triggers on shutdown.
const drainTimeout = 30 * time.Second

func bootstrap(ctx context.Context, opts cli.BootstrapOptions) (*cli.Services, error) {
	configStore, err := openConfigStore(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore)
	if opts.SettingsOnly {
		return &cli.Services{Settings: settingsService}, nil
	}

	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	docStore, schedStore, closeStore, err := openStores(settings.Storage)
	if err != nil {
		return nil, err
	}

	var checks []cli.Check

	generator, err := ai.CreateTextGenerator(&settings.LLM)
	if err != nil {
		logger.Warn("LLM not available: %v", err)
		generator = nil
	} else {
		generator = metrics.InstrumentGenerator(generator)
	}
	llm := settings.LLM
	checks = append(checks, cli.Check{Name: "llm", Run: func(ctx context.Context) error {
		return ai.ValidateLLMConfig(ctx, &llm)
	}})

	client, err := github.NewClient(ctx, github.Config{
		Token:   settings.GitHub.Token,
		BaseURL: settings.GitHub.BaseURL,
	})
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("creating GitHub client: %w", err)
	}
	checks = append(checks, cli.Check{Name: "github", Run: client.ValidateCredentials})

	var source driven.ContentSource = github.NewContentSource(client)
	if settings.Repository.LocalPath != "" {
		local, err := filesystem.NewContentSource(settings.Repository.Default, settings.Repository.LocalPath)
		if err != nil {
			_ = closeStore()
			return nil, fmt.Errorf("opening local checkout: %w", err)
		}
		source = local
	}

	evolution := services.NewEvolutionService(services.EvolutionDeps{
		Store:        docStore,
		Generator:    generator,
		Source:       source,
		Tracker:      github.NewIssueTracker(client),
		Notifier:     metrics.InstrumentNotifier(webhook.NewNotifier(webhook.DefaultTimeout)),
		Decoder:      services.DecoderFor(settings.LLM.RecordFormat),
		Paths:        settings.Repository,
		NotifyTarget: settings.Notify.WebhookURL,
		Workers:      settings.Workers.Size,
	})

	scheduler := services.NewScheduler(settings.Scheduler.ToSchedulerConfig(), schedStore, evolution, settings.Workers.Size)
	scheduler.OnResult(metrics.ObserveTask)

	return &cli.Services{
		Evolution: evolution,
		Settings:  settingsService,
		Scheduler: scheduler,
		Runtime: &runtime{
			evolution:     evolution,
			scheduler:     scheduler,
			runScheduler:  settings.Scheduler.Enabled,
			webhookSecret: settings.GitHub.WebhookSecret,
		},
		DefaultRepo: settings.Repository.Default,
		Checks:      checks,
		Close:       closeStore,
	}, nil
}

func openConfigStore(path string) (driven.ConfigStore, error) {
	if path != "" {
		return file.NewConfigStoreAt(path)
	}
	return file.NewConfigStore("")
}

func openStores(cfg domain.StorageSettings) (driven.DocumentStore, driven.SchedulerStore, func() error, error) {
	if cfg.Backend == domain.StorageMemory {
		logger.Debug("using in-memory storage")
		return memory.NewDocumentStore(), memory.NewSchedulerStore(), func() error { return nil }, nil
	}

	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}
	logger.Debug("using sqlite storage at %s", store.Path())
	return store.DocumentStore(), store.SchedulerStore(), store.Close, nil
}

// runtime implements cli.Runtime on top of the trigger dispatcher.
type runtime struct {
	evolution     *services.EvolutionService
	scheduler     *services.Scheduler
	runScheduler  bool
	webhookSecret string
}

func (r *runtime) dispatcher(ctx context.Context) *services.TriggerDispatcher {
	return services.NewTriggerDispatcher(ctx, r.evolution,
		services.WithRetry(services.DefaultTriggerAttempts, services.DefaultTriggerBackoff),
		services.WithResultObserver(metrics.ObserveTrigger))
}

// drain waits for queued triggers, then cancels their context.
func drain(d *services.TriggerDispatcher, cancel context.CancelFunc) error {
	defer cancel()
	ctx, stop := context.WithTimeout(context.Background(), drainTimeout)
	defer stop()
	if err := d.Wait(ctx); err != nil {
		logger.Warn("abandoning %d pending triggers", d.Pending())
		return fmt.Errorf("draining triggers: %w", err)
	}
	return nil
}

func (r *runtime) Serve(ctx context.Context, addr string) error {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	d := r.dispatcher(workCtx)
	srv := server.New(server.Config{
		Addr:          addr,
		WebhookSecret: r.webhookSecret,
		Debug:         logger.IsVerbose(),
	}, d)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if r.runScheduler {
		g.Go(func() error {
			err := r.scheduler.Start(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			return r.scheduler.Stop()
		})
	}

	err := g.Wait()
	return errors.Join(err, drain(d, cancelWork))
}

func (r *runtime) Watch(ctx context.Context, repo, root string, patterns []string) error {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	d := r.dispatcher(workCtx)

	w, err := filesystem.NewWatcher(filesystem.WatcherConfig{
		Repo:     repo,
		Root:     root,
		Patterns: patterns,
	}, d)
	if err != nil {
		cancelWork()
		return err
	}

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, drain(d, cancelWork))
}
