// Package daemon runs the background synchronizer that keeps the local
// board state warm while the CLI is in use.
//
// The daemon:
// 1. Binds the remote gateway to the cache store as its fetcher set
// 2. Holds the websocket connection and feeds events to the reconciler
// 3. Periodically revalidates stale cache entries
// 4. Mirrors fresh cache values into the offline SQLite copy
// 5. Reloads configuration when the config file changes
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teamboard/boardsync/internal/cache"
	"github.com/teamboard/boardsync/internal/config"
	"github.com/teamboard/boardsync/internal/gateway"
	"github.com/teamboard/boardsync/internal/mirror"
	"github.com/teamboard/boardsync/internal/realtime"
)

// Options configures the daemon.
type Options struct {
	// RefreshInterval is how often stale cache entries are revalidated.
	RefreshInterval time.Duration

	// DebounceInterval batches rapid config file changes together.
	DebounceInterval time.Duration

	// ConfigPath, when non-empty, is watched for changes.
	ConfigPath string

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		RefreshInterval:  30 * time.Second,
		DebounceInterval: 250 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon wires the gateway, cache, websocket and mirror together.
type Daemon struct {
	store   *cache.Store
	client  *gateway.Client
	socket  *realtime.Client
	mirror  *mirror.Mirror
	options *Options

	watcher      *fsnotify.Watcher
	reloadQueue  map[string]time.Time
	reloadMu     sync.Mutex
	onReload     func(*config.Config)
	refreshEvery chan time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon. store and client are required; socket and m may be
// nil when the websocket or the offline mirror are disabled.
func New(store *cache.Store, client *gateway.Client, socket *realtime.Client, m *mirror.Mirror, options *Options) (*Daemon, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if options == nil {
		options = DefaultOptions()
	}
	if options.Logger == nil {
		options.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		store:        store,
		client:       client,
		socket:       socket,
		mirror:       m,
		options:      options,
		reloadQueue:  make(map[string]time.Time),
		refreshEvery: make(chan time.Duration, 1),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// OnReload installs a callback invoked with the freshly loaded config after
// a config file change. Must be called before Start.
func (d *Daemon) OnReload(fn func(*config.Config)) {
	d.onReload = fn
}

// Start begins background synchronization. It blocks until ctx is cancelled
// or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.options.Logger.Println("Starting daemon")

	d.client.BindStore(d.store)

	if d.options.ConfigPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		d.watcher = watcher
		// Watch the directory: editors replace files rather than writing
		// in place, which would drop a watch on the file itself.
		if err := watcher.Add(filepath.Dir(d.options.ConfigPath)); err != nil {
			return fmt.Errorf("failed to watch config directory: %w", err)
		}
		d.options.Logger.Printf("Watching config: %s", d.options.ConfigPath)

		d.wg.Add(2)
		go d.watchConfigEvents()
		go d.processReloadQueue()
	}

	d.wg.Add(1)
	go d.refreshStale()

	if d.mirror != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.mirror.Follow(d.ctx, d.store)
		}()
	}

	select {
	case <-ctx.Done():
		d.options.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts the daemon down.
func (d *Daemon) Stop() error {
	d.options.Logger.Println("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.options.Logger.Printf("Error closing watcher: %v", err)
		}
	}
	if d.socket != nil {
		if err := d.socket.Close(); err != nil {
			d.options.Logger.Printf("Error closing websocket: %v", err)
		}
	}

	d.wg.Wait()

	d.options.Logger.Println("Daemon stopped")
	return nil
}

// refreshStale revalidates stale cache entries on a ticker. The interval can
// be swapped at runtime after a config reload.
func (d *Daemon) refreshStale() {
	defer d.wg.Done()

	interval := d.options.RefreshInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case next := <-d.refreshEvery:
			if next > 0 && next != interval {
				interval = next
				ticker.Reset(interval)
				d.options.Logger.Printf("Refresh interval now %v", interval)
			}

		case <-ticker.C:
			stale := d.store.StaleKeys()
			for _, key := range stale {
				if err := d.store.Invalidate(key); err != nil && err != cache.ErrNoFetcher {
					d.options.Logger.Printf("Error revalidating %s: %v", key, err)
				}
			}
			if len(stale) > 0 {
				d.options.Logger.Printf("Revalidated %d stale entries", len(stale))
			}
		}
	}
}

// watchConfigEvents monitors filesystem events and queues config reloads.
func (d *Daemon) watchConfigEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.options.ConfigPath) {
				continue
			}
			d.options.Logger.Printf("Config event: %s %s", event.Op, event.Name)
			d.reloadMu.Lock()
			d.reloadQueue[event.Name] = time.Now()
			d.reloadMu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.options.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processReloadQueue applies queued config reloads with debouncing.
func (d *Daemon) processReloadQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.options.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.applyPendingReload()
		}
	}
}

func (d *Daemon) applyPendingReload() {
	d.reloadMu.Lock()
	pending := false
	now := time.Now()
	for path, queuedAt := range d.reloadQueue {
		if now.Sub(queuedAt) < d.options.DebounceInterval {
			continue
		}
		delete(d.reloadQueue, path)
		pending = true
	}
	d.reloadMu.Unlock()

	if !pending {
		return
	}

	cfg, err := config.Load(d.options.ConfigPath)
	if err != nil {
		d.options.Logger.Printf("Config reload failed: %v", err)
		return
	}
	d.options.Logger.Println("Config reloaded")

	select {
	case d.refreshEvery <- cfg.RefreshInterval:
	default:
	}
	if d.onReload != nil {
		d.onReload(cfg)
	}
}
