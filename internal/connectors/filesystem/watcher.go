package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/prdmachine/internal/adapters/driven/storage/ids"
	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// DefaultDebounce is how long the checkout must stay quiet before a burst
// of changes becomes one trigger.
const DefaultDebounce = 2 * time.Second

// skippedDirs are never watched.
var skippedDirs = []string{".git", "node_modules", "vendor", ".venv", "__pycache__"}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Repo is the repository triggers are raised for.
	Repo string

	// Root is the checkout directory.
	Root string

	// Patterns restrict which files count as changes, as doublestar globs
	// over slash-separated paths relative to Root. Empty matches every file.
	Patterns []string

	// Debounce overrides DefaultDebounce.
	Debounce time.Duration
}

// Watcher turns file changes in a checkout into push triggers.
type Watcher struct {
	cfg        WatcherConfig
	dispatcher driving.TriggerDispatcher
	now        func() time.Time

	mu      sync.Mutex
	pending []string
	timer   *time.Timer
}

// NewWatcher validates cfg and returns a watcher that submits to dispatcher.
func NewWatcher(cfg WatcherConfig, dispatcher driving.TriggerDispatcher) (*Watcher, error) {
	if cfg.Repo == "" {
		return nil, fmt.Errorf("%w: watcher needs a repository", domain.ErrInvalidInput)
	}
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", abs)
	}
	cfg.Root = abs

	for _, p := range cfg.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: bad watch pattern %q", domain.ErrInvalidInput, p)
		}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return &Watcher{cfg: cfg, dispatcher: dispatcher, now: time.Now}, nil
}

// Run watches until ctx is cancelled. Changes still waiting for the
// debounce window are flushed before it returns.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.cfg.Root); err != nil {
		return err
	}
	logger.Info("watching %s for %s", w.cfg.Root, w.cfg.Repo)

	defer w.flush()
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if w.isNewDir(event) {
				if err := w.addRecursive(fsw, event.Name); err != nil {
					logger.Warn("watch %s: %v", event.Name, err)
				}
				continue
			}
			if rel, ok := w.relevant(event); ok {
				w.record(rel)
			}

		case wErr, ok := <-fsw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			logger.Warn("fsnotify error: %v", wErr)
		}
	}
}

// addRecursive watches dir and every directory below it.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish between the event and the walk.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.cfg.Root && slices.Contains(skippedDirs, d.Name()) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) isNewDir(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) {
		return false
	}
	info, err := os.Stat(event.Name)
	return err == nil && info.IsDir() && !slices.Contains(skippedDirs, info.Name())
}

// relevant reports whether event is a content change to a matching file
// and returns its slash-separated path relative to the root.
func (w *Watcher) relevant(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return "", false
	}

	rel, err := filepath.Rel(w.cfg.Root, event.Name)
	if err != nil || !filepath.IsLocal(rel) {
		return "", false
	}
	rel = filepath.ToSlash(rel)

	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") || slices.Contains(skippedDirs, part) {
			return "", false
		}
	}
	// Editor swap and backup files.
	if strings.HasSuffix(rel, "~") || strings.HasSuffix(rel, ".swp") {
		return "", false
	}

	if len(w.cfg.Patterns) == 0 {
		return rel, true
	}
	for _, p := range w.cfg.Patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return rel, true
		}
	}
	return "", false
}

// record adds a changed file and restarts the debounce window.
func (w *Watcher) record(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !slices.Contains(w.pending, rel) {
		w.pending = append(w.pending, rel)
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.cfg.Debounce, w.flush)
		return
	}
	w.timer.Reset(w.cfg.Debounce)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// flush submits the pending changes as one push trigger.
func (w *Watcher) flush() {
	w.mu.Lock()
	files := w.pending
	w.pending = nil
	w.timer = nil
	w.mu.Unlock()

	if len(files) == 0 {
		return
	}
	slices.Sort(files)

	trigger := w.trigger(files)
	if !w.dispatcher.Submit(trigger) {
		logger.Debug("local change trigger for %s already pending", w.cfg.Repo)
		return
	}
	logger.Info("submitted local changes to %s: %s", w.cfg.Repo, strings.Join(files, ", "))
}

func (w *Watcher) trigger(files []string) driving.Trigger {
	return driving.Trigger{
		Type: domain.EventPush,
		Repo: w.cfg.Repo,
		Payload: map[string]any{
			driving.PayloadCommitID:      "local-" + ids.Ordered(w.now()),
			driving.PayloadCommitMessage: "Local changes: " + strings.Join(files, ", "),
			driving.PayloadChangedFiles:  files,
		},
	}
}
