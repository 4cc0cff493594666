package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/snapcache/internal/cache"
	"github.com/GriffinCanCode/snapcache/internal/fetch"
	"github.com/GriffinCanCode/snapcache/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/snapcache/internal/loader"
	"github.com/GriffinCanCode/snapcache/internal/task"
)

// Fetcher loads live pages and reports origin health.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, header http.Header) (*fetch.Resource, error)
	Origins() map[string]resilience.State
}

// Handlers contains all HTTP handlers
type Handlers struct {
	loader    *loader.Loader
	builds    *task.Manager
	cache     *cache.Cache
	fetcher   Fetcher
	gatherer  prometheus.Gatherer
	build     task.Options
	userAgent string
	logger    *zap.Logger
	started   time.Time
}

// Deps are the collaborators of the handler set.
type Deps struct {
	Loader   *loader.Loader
	Builds   *task.Manager
	Cache    *cache.Cache
	Fetcher  Fetcher
	Gatherer prometheus.Gatherer
	// Build is the template for builds submitted through the API.
	Build  task.Options
	Logger *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handlers{
		loader:    deps.Loader,
		builds:    deps.Builds,
		cache:     deps.Cache,
		fetcher:   deps.Fetcher,
		gatherer:  deps.Gatherer,
		build:     deps.Build,
		userAgent: deps.Build.UserAgent,
		logger:    deps.Logger,
		started:   time.Now(),
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.GET("/page", h.Page)

	r.GET("/builds", h.ListBuilds)
	r.POST("/builds", h.SubmitBuild)
	r.GET("/builds/:id", h.GetBuild)
	r.DELETE("/builds/:id", h.CancelBuild)

	r.GET("/cache", h.GetCacheEntry)
	r.DELETE("/cache", h.EvictCacheEntry)

	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

// Root identifies the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "snapcache",
	})
}

// Health reports build activity and the state of every origin breaker
func (h *Handlers) Health(c *gin.Context) {
	counts := make(map[string]int)
	for _, s := range h.builds.List() {
		counts[s.State.String()]++
	}

	origins := make(map[string]string)
	if h.fetcher != nil {
		for origin, state := range h.fetcher.Origins() {
			origins[origin] = state.String()
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"builds":  counts,
		"origins": origins,
	})
}

type pageQuery struct {
	URL         string `form:"url" binding:"required"`
	IgnoreCache bool   `form:"ignore_cache"`
	Rebuild     bool   `form:"rebuild"`
}

// Page serves a snapshot when one exists and the live page otherwise
func (h *Handlers) Page(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	req, err := newPageRequest(c.Request.Context(), q.URL)
	if err != nil {
		badRequest(c, err)
		return
	}

	renderer := &pageRenderer{fetcher: h.fetcher, userAgent: h.userAgent}
	t, err := h.loader.Load(c.Request.Context(), req, renderer, loader.Options{
		IgnoreExistingCache: q.IgnoreCache,
		RebuildCache:        q.Rebuild,
	})
	if t != nil {
		c.Header(headerBuild, t.ID())
	}
	if err != nil && !renderer.rendered() {
		h.logger.Warn("page load failed", zap.String("url", q.URL), zap.Error(err))
		c.JSON(liveStatus(err), gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.Header(headerCache, renderer.status)
	c.Data(http.StatusOK, renderer.contentType, renderer.body)
}

type buildRequest struct {
	URL           string `json:"url" binding:"required"`
	AlwaysRebuild bool   `json:"always_rebuild"`
}

// SubmitBuild schedules a cache build
func (h *Handlers) SubmitBuild(c *gin.Context) {
	var body buildRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := newPageRequest(context.Background(), body.URL)
	if err != nil {
		badRequest(c, err)
		return
	}

	opts := h.build
	opts.AlwaysRebuild = opts.AlwaysRebuild || body.AlwaysRebuild
	t := h.builds.Submit(req, opts)

	c.Header(headerBuild, t.ID())
	c.JSON(http.StatusAccepted, t.Status())
}

// ListBuilds lists tracked builds, oldest first
func (h *Handlers) ListBuilds(c *gin.Context) {
	builds := h.builds.List()
	c.JSON(http.StatusOK, gin.H{
		"builds": builds,
		"count":  len(builds),
	})
}

// GetBuild reports one build
func (h *Handlers) GetBuild(c *gin.Context) {
	t, ok := h.builds.Get(c.Param("id"))
	if !ok {
		notFound(c, "build not found")
		return
	}
	c.JSON(http.StatusOK, t.Status())
}

// CancelBuild requests cancellation of a build
func (h *Handlers) CancelBuild(c *gin.Context) {
	id := c.Param("id")
	if err := h.builds.Cancel(id); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			notFound(c, "build not found")
			return
		}
		internalError(c, err)
		return
	}

	t, _ := h.builds.Get(id)
	c.JSON(http.StatusAccepted, t.Status())
}

type cacheQuery struct {
	URL string `form:"url" binding:"required"`
}

// GetCacheEntry returns the metadata of a snapshot
func (h *Handlers) GetCacheEntry(c *gin.Context) {
	key, ok := h.cacheKey(c)
	if !ok {
		return
	}
	entry, found := h.cache.Get(c.Request.Context(), key)
	if !found {
		notFound(c, "not cached")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"key":   key.String(),
		"entry": entry,
		"size":  len(entry.HTML),
	})
}

// EvictCacheEntry removes a snapshot
func (h *Handlers) EvictCacheEntry(c *gin.Context) {
	key, ok := h.cacheKey(c)
	if !ok {
		return
	}
	if err := h.cache.Evict(c.Request.Context(), key); err != nil {
		internalError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) cacheKey(c *gin.Context) (cache.Key, bool) {
	var q cacheQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return "", false
	}
	key, err := cache.ParseKey(q.URL)
	if err != nil {
		badRequest(c, err)
		return "", false
	}
	return key, true
}
