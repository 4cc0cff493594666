package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/snapcache/internal/cache"
	"github.com/GriffinCanCode/snapcache/internal/task"
)

// Renderer displays a document to whoever asked for it.
type Renderer interface {
	// RenderDocument shows a cached document. baseURL resolves relative
	// references left in it.
	RenderDocument(ctx context.Context, html []byte, mimeType, encoding string, baseURL *url.URL) error
	// LoadLive shows the page straight from the network.
	LoadLive(ctx context.Context, req *http.Request) error
}

// Options control one Load.
type Options struct {
	// IgnoreExistingCache renders live even when an entry exists and
	// rebuilds it.
	IgnoreExistingCache bool
	// RebuildCache schedules a rebuild even when the cached entry was used.
	RebuildCache bool
}

// Scheduler starts builds.
type Scheduler interface {
	Submit(req *http.Request, opts task.Options) *task.Task
}

// Loader serves requests from the cache and schedules builds.
type Loader struct {
	cache     *cache.Cache
	scheduler Scheduler
	build     task.Options
	logger    *zap.Logger
}

// New creates a Loader. build is the template for every scheduled task.
func New(c *cache.Cache, scheduler Scheduler, build task.Options, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		cache:     c,
		scheduler: scheduler,
		build:     build,
		logger:    logger,
	}
}

// Load renders req from the cache when possible, otherwise live. It returns
// the build scheduled alongside, or nil when the cached entry was used as
// is. The task is returned even when rendering fails.
func (l *Loader) Load(ctx context.Context, req *http.Request, r Renderer, opts Options) (*task.Task, error) {
	if req.Method != "" && req.Method != http.MethodGet {
		return nil, fmt.Errorf("unsupported method %s", req.Method)
	}
	if req.URL == nil || !req.URL.IsAbs() {
		return nil, fmt.Errorf("request URL must be absolute")
	}

	stripped := cache.StripFragment(req)
	key := cache.KeyFor(stripped)
	log := l.logger.With(zap.String("url", key.String()))

	if !opts.IgnoreExistingCache {
		if entry, ok := l.cache.Get(ctx, key); ok {
			log.Debug("loading from cache", zap.Bool("partial", entry.Partial))

			var t *task.Task
			if opts.RebuildCache {
				t = l.schedule(req, true)
			}
			if err := r.RenderDocument(ctx, entry.HTML, entry.MIMEType, entry.TextEncoding, stripped.URL); err != nil {
				return t, fmt.Errorf("render cached document: %w", err)
			}
			return t, nil
		}
		log.Debug("no cache found, loading live")
	}

	err := r.LoadLive(ctx, req)
	t := l.schedule(req, opts.RebuildCache || opts.IgnoreExistingCache)
	if err != nil {
		return t, fmt.Errorf("load live: %w", err)
	}
	return t, nil
}

func (l *Loader) schedule(req *http.Request, alwaysRebuild bool) *task.Task {
	opts := l.build
	opts.AlwaysRebuild = opts.AlwaysRebuild || alwaysRebuild
	// The build outlives the request that triggered it.
	return l.scheduler.Submit(req.Clone(context.Background()), opts)
}
