// Package preload drives a manifest of images and videos to a ready state.
//
// A run has two phases. All images load concurrently and the run waits for every one of them.
// Videos then load one at a time in descending priority, each one only after the previous
// finished. A failed asset is logged and counted like a loaded one, so a broken file never
// stops the run.
package preload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"contest-site/pkg/models"
)

// Loader loads single assets. Each call returns exactly once: nil when the asset is
// ready, an error when it failed.
type Loader interface {
	LoadImage(ctx context.Context, url string) error
	LoadVideo(ctx context.Context, url string, level models.ReadinessLevel) error
}

// ProgressFunc receives the number of completed assets after each completion
type ProgressFunc func(loaded, total int)

// Callbacks are the optional notifications of a run. All of them are called on the
// goroutine that called Run.
type Callbacks struct {
	OnProgress ProgressFunc
	// OnImagesLoaded fires once, after every image completed and before the first video starts
	OnImagesLoaded func()
	OnAsset        func(models.AssetResult)
}

var errLoaderPanic = errors.New("loader panicked")

// Engine runs preloads against a Loader
type Engine struct {
	loader       Loader
	logger       *slog.Logger
	readiness    models.ReadinessLevel
	assetTimeout time.Duration
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used for diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithReadiness sets the readiness level passed to video loads
func WithReadiness(level models.ReadinessLevel) Option {
	return func(e *Engine) {
		if level != "" {
			e.readiness = level
		}
	}
}

// WithAssetTimeout bounds how long a single asset may take. A load that exceeds it is
// recorded as failed and the run moves on; zero disables the bound.
func WithAssetTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.assetTimeout = d
	}
}

// NewEngine creates an Engine for the given loader
func NewEngine(loader Loader, opts ...Option) *Engine {
	e := &Engine{
		loader:    loader,
		logger:    slog.Default(),
		readiness: models.ReadinessCanPlay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Readiness returns the level video loads resolve at
func (e *Engine) Readiness() models.ReadinessLevel {
	return e.readiness
}

// Run loads every asset of the manifest and returns once all of them completed.
// Asset failures never end the run early. If ctx is cancelled the run stops issuing
// new loads and returns ctx.Err() after the loads in flight have settled.
func (e *Engine) Run(ctx context.Context, m models.Manifest, cb Callbacks) error {
	progress := models.LoadProgress{Total: m.Total()}

	complete := func(result models.AssetResult) {
		if result.Failed() {
			e.logger.Warn("asset failed to preload",
				"url", result.URL,
				"kind", result.Kind,
				"error", result.Err,
			)
		} else {
			e.logger.Debug("asset preloaded", "url", result.URL, "kind", result.Kind, "duration", result.Duration)
		}

		progress.Loaded++
		if cb.OnAsset != nil {
			cb.OnAsset(result)
		}
		if cb.OnProgress != nil {
			cb.OnProgress(progress.Loaded, progress.Total)
		}
	}

	e.logger.Info("preloading images", "count", len(m.Images))

	// Results are counted here rather than in the image goroutines so progress is
	// reported from a single goroutine.
	results := make(chan models.AssetResult, len(m.Images))
	var g errgroup.Group
	for _, src := range m.Images {
		src := src
		g.Go(func() error {
			results <- e.settle(ctx, src, models.AssetKindImage, func(ctx context.Context) error {
				return e.loader.LoadImage(ctx, src)
			})
			return nil
		})
	}
	for range m.Images {
		complete(<-results)
	}
	// Failures travel in results; the group only joins the image goroutines.
	g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	e.logger.Info("images loaded")
	if cb.OnImagesLoaded != nil {
		cb.OnImagesLoaded()
	}

	videos := PlaybackOrder(m.Videos)
	e.logger.Info("preloading videos", "count", len(videos), "readiness", e.readiness)
	for _, v := range videos {
		v := v
		if err := ctx.Err(); err != nil {
			return err
		}
		complete(e.settle(ctx, v.URL, models.AssetKindVideo, func(ctx context.Context) error {
			return e.loader.LoadVideo(ctx, v.URL, e.readiness)
		}))
	}

	e.logger.Info("all assets preloaded", "loaded", progress.Loaded, "total", progress.Total)
	return nil
}

// PlaybackOrder returns a copy of videos sorted by descending priority.
// Videos with equal priority keep their manifest order.
func PlaybackOrder(videos []models.VideoAsset) []models.VideoAsset {
	ordered := make([]models.VideoAsset, len(videos))
	copy(ordered, videos)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return ordered
}

// settle turns one load into an AssetResult
func (e *Engine) settle(ctx context.Context, url string, kind models.AssetKind, load func(context.Context) error) models.AssetResult {
	start := time.Now()
	err := e.attempt(ctx, load)

	result := models.AssetResult{
		URL:      url,
		Kind:     kind,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Err = fmt.Errorf("load %s %s: %w", kind, url, err)
	}
	return result
}

func (e *Engine) attempt(ctx context.Context, load func(context.Context) error) error {
	if e.assetTimeout <= 0 {
		return guard(ctx, load)
	}

	ctx, cancel := context.WithTimeout(ctx, e.assetTimeout)
	defer cancel()

	// A loader that ignores ctx must not hold up the run past the timeout
	done := make(chan error, 1)
	go func() {
		done <- guard(ctx, load)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func guard(ctx context.Context, load func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errLoaderPanic, r)
		}
	}()
	return load(ctx)
}
