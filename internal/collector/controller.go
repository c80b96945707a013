package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"meetingsnap/internal/common/logger"
	"meetingsnap/internal/host"
	"meetingsnap/internal/snapshot"
)

// ErrNotInitialized is returned by Ready before the first Init.
var ErrNotInitialized = errors.New("controller not initialized")

// DefaultTeardownTimeout bounds the report sent for a teardown signal.
const DefaultTeardownTimeout = 10 * time.Second

// State is the initialization state of a Controller.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Closer releases a transport at teardown. *delivery.BeaconQueue implements it.
type Closer interface {
	Close(ctx context.Context) error
}

// ControllerConfig wires a Controller. Host, Snapshot, Preferences, Loader,
// Binder and Reporter are required.
type ControllerConfig struct {
	Host        host.Host
	Snapshot    *snapshot.Snapshot
	Preferences *Preferences
	Loader      *Loader
	Binder      *Binder
	Reporter    *Reporter

	// Transport is closed once, by the first Teardown.
	Transport       Closer
	TeardownTimeout time.Duration
	Logger          *slog.Logger
}

// Controller runs the initialization chain once per session and reports the
// snapshot on demand and at teardown.
type Controller struct {
	cfg ControllerConfig

	mu    sync.Mutex
	state State
	gen   uint64
	ready chan struct{}

	closeOnce sync.Once
}

// NewController returns an uninitialized controller.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = DefaultTeardownTimeout
	}
	return &Controller{cfg: cfg}
}

// State returns the current initialization state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Init starts the preferences load, live load and control sync chain and
// binds the form controls. Without force it does nothing once a chain has
// been started. A forced Init while a chain is running starts another; only
// the newest chain marks the controller Ready.
func (c *Controller) Init(ctx context.Context, force bool) {
	c.mu.Lock()
	if !force && c.state != Uninitialized {
		c.mu.Unlock()
		logger.LogDebug(c.cfg.Logger, "Already initialized, skipping", "state", c.state)
		return
	}
	c.gen++
	gen := c.gen
	ready := make(chan struct{})
	c.ready = ready
	c.state = Initializing
	c.mu.Unlock()

	logger.LogInfo(c.cfg.Logger, "Initializing", "force", force, "generation", gen)

	if email := c.cfg.Host.UserEmail(); email != "" {
		c.cfg.Snapshot.Update(func(f *snapshot.Fields) { f.Organizer = email })
	}

	go func() {
		defer close(ready)
		c.cfg.Preferences.Load(ctx)
		c.cfg.Loader.Load(ctx)
		c.cfg.Binder.Sync(ctx)

		c.mu.Lock()
		if c.gen == gen {
			c.state = Ready
		}
		c.mu.Unlock()
		logger.LogDebug(c.cfg.Logger, "Initialization chain finished", "generation", gen)
	}()

	c.cfg.Binder.Bind(ctx)
}

// Ready waits for the most recently started chain to finish.
func (c *Controller) Ready(ctx context.Context) error {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	if ready == nil {
		return ErrNotInitialized
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetMeetingDataAndSend initializes when needed, waits for the chain and
// reports a freshly loaded snapshot. The only error is ctx ending while
// waiting.
func (c *Controller) GetMeetingDataAndSend(ctx context.Context, force bool) error {
	if force || c.State() != Ready {
		c.Init(ctx, force)
	}
	if err := c.Ready(ctx); err != nil {
		return fmt.Errorf("waiting for initialization: %w", err)
	}
	c.cfg.Reporter.Report(ctx, true)
	return nil
}

// Teardown reports a freshly loaded snapshot, then waits for pending
// preference saves and closes the transport.
func (c *Controller) Teardown(ctx context.Context) {
	logger.LogInfo(c.cfg.Logger, "Teardown, reporting meeting data")
	c.cfg.Reporter.Report(ctx, true)

	if err := c.cfg.Preferences.Flush(ctx); err != nil {
		logger.LogWarn(c.cfg.Logger, "Pending preference saves did not finish", "error", err)
	}
	if c.cfg.Transport == nil {
		return
	}
	c.closeOnce.Do(func() {
		if err := c.cfg.Transport.Close(ctx); err != nil {
			logger.LogWarn(c.cfg.Logger, "Transport did not drain", "error", err)
		}
	})
}

// WatchTeardown runs Teardown for every signal received until ctx ends or
// signals is closed. Each teardown gets its own TeardownTimeout.
func (c *Controller) WatchTeardown(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			logger.LogInfo(c.cfg.Logger, "Received teardown signal", "signal", sig.String())
			tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.TeardownTimeout)
			c.Teardown(tctx)
			cancel()
		}
	}
}
