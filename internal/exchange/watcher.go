package exchange

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatcherConfig configures the drop-folder watcher.
type WatcherConfig struct {
	// Folder is the directory the practice software writes into.
	Folder string
	// FileName restricts processing to one file name. Empty means any
	// file with a recognized exchange extension.
	FileName string
	// SettleDelay is how long to wait after a write event before
	// reading, so partially written files settle first.
	SettleDelay time.Duration
}

// DefaultWatcherConfig returns defaults matching common practice-software
// setups, which write a single well-known file.
func DefaultWatcherConfig(folder string) WatcherConfig {
	return WatcherConfig{
		Folder:      folder,
		SettleDelay: 250 * time.Millisecond,
	}
}

// Watcher tails the exchange drop folder and feeds write events to the
// handler. Content-level dedupe lives in the handler's inbox, so the
// watcher can afford to over-report.
type Watcher struct {
	config  WatcherConfig
	handler *Handler
	logger  *zap.Logger
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher for the configured folder. The folder
// must exist; the practice software creates it at install time.
func NewWatcher(cfg WatcherConfig, handler *Handler, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultWatcherConfig(cfg.Folder).SettleDelay
	}

	info, err := os.Stat(cfg.Folder)
	if err != nil {
		return nil, fmt.Errorf("watch folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch folder %s is not a directory", cfg.Folder)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(cfg.Folder); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", cfg.Folder, err)
	}

	return &Watcher{
		config:  cfg,
		handler: handler,
		logger:  logger,
		fsw:     fsw,
		done:    make(chan struct{}),
	}, nil
}

// Start processes any file already sitting in the folder, then follows
// events until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
	w.logger.Info("exchange watcher started",
		zap.String("folder", w.config.Folder),
		zap.String("file_filter", w.config.FileName))
}

// Done is closed when the watcher loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer w.fsw.Close()

	w.processExisting(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("exchange watcher stopped")
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.wantsFile(event.Name) {
				continue
			}

			// Editors and practice software often emit several write
			// events per save; wait for the file to settle.
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.config.SettleDelay):
			}
			w.handler.HandleFile(ctx, event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// processExisting picks up a file written while the service was down.
func (w *Watcher) processExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.config.Folder)
	if err != nil {
		w.logger.Warn("cannot scan watch folder", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.config.Folder, entry.Name())
		if w.wantsFile(path) {
			w.handler.HandleFile(ctx, path)
		}
	}
}

func (w *Watcher) wantsFile(path string) bool {
	name := filepath.Base(path)
	if w.config.FileName != "" {
		return strings.EqualFold(name, w.config.FileName)
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gdt", ".bdt", ".001":
		return true
	}
	return false
}
