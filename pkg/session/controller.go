package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"contest-site/pkg/models"
	"contest-site/pkg/preload"
)

// ErrStopped is returned by Wait when the session was torn down before the page was revealed
var ErrStopped = errors.New("preload session stopped")

// Runner runs one preload. *preload.Engine implements it.
type Runner interface {
	Run(ctx context.Context, m models.Manifest, cb preload.Callbacks) error
}

// Policy selects when the page is revealed
type Policy struct {
	// EnforceMaxWait caps the wait at MaxWait. Without it the page waits for every asset.
	EnforceMaxWait bool
	MaxWait        time.Duration
	// CountdownCoversImages starts the countdown with the session, so it also bounds image
	// loading and the page can be revealed before every image is loaded. By default the
	// countdown starts once all images are loaded.
	CountdownCoversImages bool
}

// Timer is the part of *time.Timer the controller uses
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger of the controller
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAfterFunc replaces the timer used for the countdown
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.afterFunc = fn
		}
	}
}

// Controller binds one preload run to the lifetime of the site and publishes
// the state the loading overlay renders
type Controller struct {
	runner    Runner
	manifest  models.Manifest
	policy    Policy
	afterFunc AfterFunc
	logger    *slog.Logger
	id        string

	mu          sync.Mutex
	started     bool
	stopped     bool
	state       models.SessionState
	armed       bool
	timer       Timer
	subscribers []func(models.SessionState)

	// seq numbers state changes so subscribers never see an older state after a newer one
	seq       uint64
	notifyMu  sync.Mutex
	delivered uint64

	revealed chan struct{}
	finished chan struct{}
	stopCh   chan struct{}
}

// New creates a controller for the manifest. Nothing loads until Start is called.
func New(r Runner, m models.Manifest, p Policy, opts ...Option) *Controller {
	c := &Controller{
		runner:    r,
		manifest:  m,
		policy:    p,
		afterFunc: realAfterFunc,
		logger:    slog.Default(),
		id:        uuid.NewString(),
		state:     models.SessionState{IsLoading: true},
		revealed:  make(chan struct{}),
		finished:  make(chan struct{}),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("session", c.id)
	return c
}

// ID returns the session identifier used in logs
func (c *Controller) ID() string {
	return c.id
}

// Start begins the preload run in the background. It returns false if the session was
// already started or stopped. Cancelling ctx cancels the asset loads themselves.
func (c *Controller) Start(ctx context.Context) bool {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return false
	}
	c.started = true
	c.mu.Unlock()

	c.logger.Info("preload session started",
		"assets", c.manifest.Total(),
		"bounded", c.policy.EnforceMaxWait,
		"max_wait", c.policy.MaxWait,
	)

	if c.policy.EnforceMaxWait && c.policy.CountdownCoversImages {
		c.armCountdown()
	}

	go c.run(ctx)
	return true
}

// Manifest returns the assets the session preloads
func (c *Controller) Manifest() models.Manifest {
	return c.manifest
}

// State returns a snapshot of the session state
func (c *Controller) State() models.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn to receive every state change
func (c *Controller) Subscribe(fn func(models.SessionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Revealed is closed when IsLoading turns false
func (c *Controller) Revealed() <-chan struct{} {
	return c.revealed
}

// Finished is closed when the preload run returned, which can be well after the reveal
func (c *Controller) Finished() <-chan struct{} {
	return c.finished
}

// Wait blocks until the page is revealed
func (c *Controller) Wait(ctx context.Context) error {
	select {
	case <-c.revealed:
		return nil
	default:
	}

	select {
	case <-c.revealed:
		return nil
	case <-c.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop tears the session down. A pending countdown is cancelled and later updates
// from the run are ignored. Loads already in flight are left to finish.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
	}
	close(c.stopCh)
	c.logger.Debug("preload session stopped")
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.finished)

	err := c.runner.Run(ctx, c.manifest, preload.Callbacks{
		OnProgress:     c.onProgress,
		OnImagesLoaded: c.onImagesLoaded,
	})
	if err != nil {
		c.logger.Info("preload run ended early", "error", err)
	}

	c.reveal("preload complete")
}

func (c *Controller) onProgress(loaded, total int) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}

	progress := models.LoadProgress{Loaded: loaded, Total: total}.Percent()
	if progress < c.state.Progress {
		c.mu.Unlock()
		return
	}
	c.state.Progress = progress
	c.unlockAndPublish()
}

func (c *Controller) onImagesLoaded() {
	if c.policy.EnforceMaxWait && !c.policy.CountdownCoversImages {
		c.armCountdown()
	}
}

// armCountdown schedules the reveal outside of mu, so an AfterFunc may run f synchronously
func (c *Controller) armCountdown() {
	c.mu.Lock()
	if c.stopped || !c.state.IsLoading || c.armed {
		c.mu.Unlock()
		return
	}
	c.armed = true
	c.mu.Unlock()

	c.logger.Debug("countdown started", "max_wait", c.policy.MaxWait)
	timer := c.afterFunc(c.policy.MaxWait, func() {
		c.reveal("max wait reached")
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.timer = timer
	// the session may have been revealed or stopped while the timer was created
	if c.stopped || !c.state.IsLoading {
		timer.Stop()
	}
}

// reveal flips IsLoading to false. Only the first call after Start has an effect.
func (c *Controller) reveal(reason string) {
	c.mu.Lock()
	if c.stopped || !c.state.IsLoading {
		c.mu.Unlock()
		return
	}

	c.state.IsLoading = false
	if c.timer != nil {
		c.timer.Stop()
	}
	close(c.revealed)
	c.logger.Info("page revealed", "reason", reason, "progress", c.state.Progress)
	c.unlockAndPublish()
}

// unlockAndPublish must be called with mu held. It releases mu and delivers the
// current state to subscribers outside of it. A snapshot that lost the race to a newer
// one is dropped; the newer snapshot already contains its changes.
func (c *Controller) unlockAndPublish() {
	c.seq++
	seq := c.seq
	state := c.state
	subscribers := make([]func(models.SessionState), len(c.subscribers))
	copy(subscribers, c.subscribers)
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.delivered {
		return
	}
	c.delivered = seq

	for _, fn := range subscribers {
		fn(state)
	}
}
