// Package protocolwatcher reloads custom emergency protocols when the
// protocol config file changes on disk.
package protocolwatcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/swarmcoord/internal/adapters/fs"
	"github.com/bft-labs/swarmcoord/pkg/log"
	"github.com/bft-labs/swarmcoord/pkg/swarmcoord"
)

// Plugin watches the protocol config file's directory and calls
// ProtocolReloader.Reload after each burst of changes to the file.
type Plugin struct {
	mu sync.Mutex

	debounceDelay time.Duration

	source    *fs.ProtocolFileSource
	reloader  swarmcoord.ProtocolReloader
	logger    swarmcoord.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	debounce  *time.Timer
	reloads   int
	lastError error
}

// Config holds configuration options for the protocol watcher.
type Config struct {
	// DebounceDelay is how long to wait after the last change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{DebounceDelay: 100 * time.Millisecond}
}

// New creates a protocol watcher.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{debounceDelay: cfg.DebounceDelay}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "protocolwatcher"
}

// Initialize starts watching cfg.ProtocolConfigPath. Without a path or a
// reloader the plugin stays idle.
func (p *Plugin) Initialize(ctx context.Context, cfg swarmcoord.PluginConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard
	}

	p.mu.Lock()
	p.logger = logger
	p.reloader = cfg.Protocols
	p.mu.Unlock()

	if cfg.ProtocolConfigPath == "" || cfg.Protocols == nil {
		logger.Warn("protocol watcher disabled: no protocol config path")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(cfg.ProtocolConfigPath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		logger.Warn("protocol watcher disabled: cannot watch directory",
			log.String("dir", dir),
			log.Err(err))
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.source = fs.NewProtocolFileSource(cfg.ProtocolConfigPath)
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher, filepath.Base(cfg.ProtocolConfigPath))

	logger.Info("protocol watcher started", log.String("path", cfg.ProtocolConfigPath))
	return nil
}

// Shutdown stops the watcher and any pending reload.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// Reloads returns how many reloads have succeeded.
func (p *Plugin) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

// LastError returns the error of the most recent failed reload, if any.
func (p *Plugin) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, name string) {
	defer p.wg.Done()
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			// Remove is ignored; a file deleted mid-save must not wipe the custom set.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("protocol watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.reload(ctx)
	})
}

func (p *Plugin) reload(ctx context.Context) {
	p.mu.Lock()
	source, reloader, logger := p.source, p.reloader, p.logger
	p.mu.Unlock()

	custom, err := source.LoadProtocols(ctx)
	if err != nil {
		p.mu.Lock()
		p.lastError = err
		p.mu.Unlock()
		logger.Error("protocol reload failed, keeping current protocols",
			log.String("path", source.Path()),
			log.Err(err))
		return
	}

	n := reloader.Reload(custom)

	p.mu.Lock()
	p.reloads++
	p.lastError = nil
	p.mu.Unlock()
	logger.Info("protocols reloaded",
		log.Int("custom", len(custom)),
		log.Int("total", n))
}

var _ swarmcoord.Plugin = (*Plugin)(nil)
