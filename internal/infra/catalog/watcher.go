package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"toolgate/internal/infra/telemetry"
)

const reloadDebounce = 200 * time.Millisecond

// Provider holds the current config snapshot and keeps it fresh by watching
// the config file. Editors that replace-and-rename are handled by watching
// the parent directory and filtering events down to the config path.
type Provider struct {
	logger     *zap.Logger
	loader     *Loader
	configPath string

	mu      sync.RWMutex
	current Config

	reloadMu  sync.Mutex
	onReload  func(Config)
	watchOnce sync.Once
}

// NewProvider loads the initial snapshot; a load failure here is fatal since
// there is nothing to serve.
func NewProvider(configPath string, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loader := NewLoader(logger)
	initial, err := loader.Load(configPath)
	if err != nil {
		return nil, err
	}
	return &Provider{
		logger:     logger.Named("catalog_provider"),
		loader:     loader,
		configPath: configPath,
		current:    initial,
	}, nil
}

// Snapshot returns the current config.
func (p *Provider) Snapshot() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Watch starts the file watcher and invokes onReload after every successful
// reload. Subsequent calls are no-ops; the watcher stops with the context.
func (p *Provider) Watch(ctx context.Context, onReload func(Config)) {
	p.onReload = onReload
	p.watchOnce.Do(func() {
		go p.runWatcher(ctx)
	})
}

// Reload forces a reload outside the watch loop. A failed reload keeps the
// previous snapshot.
func (p *Provider) Reload() error {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	next, err := p.loader.Load(p.configPath)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.current = next
	p.mu.Unlock()

	p.logger.Info("config reloaded",
		telemetry.EventField(telemetry.EventConfigReload),
		zap.String("path", p.configPath),
		zap.Int("endpoints", len(next.Endpoints)),
	)
	if p.onReload != nil {
		p.onReload(next)
	}
	return nil
}

func (p *Provider) runWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Warn("config watcher failed", zap.Error(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(p.configPath)); err != nil {
		p.logger.Warn("config watcher add failed",
			zap.String("path", p.configPath),
			zap.Error(err),
		)
		return
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-watcher.Errors:
			if err != nil {
				p.logger.Warn("config watcher error", zap.Error(err))
			}
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(p.configPath) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(reloadDebounce)
		case <-timerChan(timer):
			timer = nil
			if err := p.Reload(); err != nil {
				p.logger.Warn("config reload failed",
					zap.String("path", p.configPath),
					zap.Error(err),
				)
			}
		}
	}
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
