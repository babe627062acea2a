package syncd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/qrconquest/conquest/internal/session"
)

// Config holds configuration for the daemon.
type Config struct {
	// FlushInterval is how often to retry the queue while online.
	FlushInterval time.Duration

	// ProbeInterval is how often to probe connectivity.
	ProbeInterval time.Duration

	// DebounceInterval is how long to wait after a kick before
	// flushing, batching rapid enqueues together.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		FlushInterval:    time.Minute,
		ProbeInterval:    10 * time.Second,
		DebounceInterval: 250 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates wake signals and queue flushing.
//
// It owns its own store handle (passed in by the caller, who also
// closes it) and shares no memory with the foreground CLI.
type Daemon struct {
	flusher *Flusher
	probe   session.Probe
	dataDir string
	config  *Config

	watcher *fsnotify.Watcher
	kicks   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon flushing through the given Flusher. dataDir is
// where the kick file lives.
func New(flusher *Flusher, probe session.Probe, dataDir string, config *Config) (*Daemon, error) {
	if flusher == nil {
		return nil, fmt.Errorf("flusher cannot be nil")
	}
	if probe == nil {
		return nil, fmt.Errorf("probe cannot be nil")
	}
	if dataDir == "" {
		return nil, fmt.Errorf("dataDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		flusher: flusher,
		probe:   probe,
		dataDir: dataDir,
		config:  config,
		watcher: watcher,
		kicks:   make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
//  1. Attempt an initial flush (there may be entries from a previous run)
//  2. Watch the kick file for foreground enqueue signals
//  3. Monitor connectivity and flush on the offline-to-online edge
//  4. Retry the queue periodically while entries remain
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting sync daemon")

	if err := d.watcher.Add(d.dataDir); err != nil {
		return fmt.Errorf("failed to watch data directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", KickPath(d.dataDir))

	// There may be captures queued since the last run
	d.flush("startup")

	d.wg.Add(3)
	go d.watchKicks()
	go d.processKicks()
	go d.monitorConnectivity()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping sync daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Sync daemon stopped")
	return nil
}

// flush runs one flush pass, logging the trigger that caused it.
func (d *Daemon) flush(trigger string) {
	stats, err := d.flusher.Flush(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Flush (%s) failed: %v", trigger, err)
		return
	}
	if stats.Attempted > 0 {
		d.config.Logger.Printf("Flush (%s): delivered=%d purged=%d remaining=%d",
			trigger, stats.Delivered, stats.Purged, stats.Remaining)
	}
}

// watchKicks monitors filesystem events on the data directory and
// forwards kick-file touches to the debounce loop.
func (d *Daemon) watchKicks() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Base(event.Name) != kickFileName {
				continue
			}

			// Coalesce: one pending kick is enough
			select {
			case d.kicks <- struct{}{}:
			default:
			}

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processKicks debounces kick signals and triggers flushes, plus runs
// the periodic retry ticker.
func (d *Daemon) processKicks() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-d.kicks:
			// Let rapid enqueues batch into one pass
			timer := time.NewTimer(d.config.DebounceInterval)
			select {
			case <-timer.C:
			case <-d.ctx.Done():
				timer.Stop()
				return
			}
			d.flush("kick")

		case <-ticker.C:
			d.flush("interval")
		}
	}
}

// monitorConnectivity probes the server and flushes whenever the
// device transitions from offline to online.
func (d *Daemon) monitorConnectivity() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ProbeInterval)
	defer ticker.Stop()

	online := d.probe.Online(d.ctx)

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			now := d.probe.Online(d.ctx)
			if now && !online {
				d.config.Logger.Println("Connectivity restored")
				d.flush("reconnect")
			}
			online = now
		}
	}
}
