package task

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/snapcache/internal/cache"
	"github.com/GriffinCanCode/snapcache/internal/debugdump"
	"github.com/GriffinCanCode/snapcache/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/snapcache/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/snapcache/internal/inline"
	"github.com/GriffinCanCode/snapcache/internal/shared/id"
	"github.com/GriffinCanCode/snapcache/internal/transform"
)

// ErrAlreadyStarted is returned by a second Start or Run.
var ErrAlreadyStarted = errors.New("task already started")

// State is the lifecycle state of a build.
type State int32

const (
	Created State = iota
	Running
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := Created; st <= Failed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown task state %q", text)
}

// Stage names a checkpoint; cancellation is observed after each one.
type Stage string

const (
	StageUserAgent   Stage = "user-agent"
	StageFetch       Stage = "fetch"
	StagePreprocess  Stage = "preprocess"
	StageInline      Stage = "inline"
	StagePostprocess Stage = "postprocess"
	StageDebugDump   Stage = "debug-dump"
	StagePrepare     Stage = "prepare"
	StageCommit      Stage = "commit"
)

// Result is handed to the completion callback. It is not delivered for a
// cancelled build.
type Result struct {
	Request       *http.Request
	AlreadyCached bool
	Entry         *cache.Entry
	Report        inline.Report
	Err           error
}

// Inliner embeds external resources into a document.
type Inliner interface {
	Inline(ctx context.Context, html string, base *url.URL) (string, inline.Report)
}

// Deps are the collaborators shared by every build.
type Deps struct {
	Cache   *cache.Cache
	Fetcher inline.Fetcher
	Inliner Inliner
	Dumper  *debugdump.Dumper
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	Tracer  *tracing.Tracer
	Now     func() time.Time
}

// Options configure one build.
type Options struct {
	// AlwaysRebuild skips the existing-entry check.
	AlwaysRebuild bool
	UserAgent     string
	Preprocessor  transform.Transformer
	Postprocessor transform.Transformer
	OnComplete    func(Result)
	// OnStage runs at every checkpoint, before cancellation is checked.
	OnStage func(Stage)
}

// Task is one attempt at building the cache entry for a request. A Task is
// not reusable.
type Task struct {
	id   string
	req  *http.Request
	key  cache.Key
	opts Options
	deps Deps

	state     atomic.Int32
	cancelled atomic.Bool
	done      chan struct{}

	mu         sync.Mutex
	started    bool
	cancelFn   context.CancelFunc
	stage      Stage
	result     Result
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
}

// New creates a task for req. The request URL must be absolute.
func New(req *http.Request, deps Deps, opts Options) *Task {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	stripped := cache.StripFragment(req)

	t := &Task{
		id:        id.NewBuildID().String(),
		req:       req,
		key:       cache.KeyFor(stripped),
		opts:      opts,
		deps:      deps,
		done:      make(chan struct{}),
		createdAt: deps.Now(),
	}
	t.deps.Logger = deps.Logger.With(zap.String("task_id", t.id), zap.String("url", t.key.String()))
	return t
}

func (t *Task) ID() string { return t.id }
func (t *Task) Request() *http.Request { return t.req }
func (t *Task) Key() cache.Key { return t.key }
func (t *Task) AlwaysRebuild() bool { return t.opts.AlwaysRebuild }
func (t *Task) State() State { return State(t.state.Load()) }
func (t *Task) IsRunning() bool { return t.State() == Running }
func (t *Task) IsFinished() bool { return t.State().Terminal() }
func (t *Task) IsCancelled() bool { return t.cancelled.Load() }
func (t *Task) Done() <-chan struct{} { return t.done }

// Result returns the outcome once the task is finished.
func (t *Task) Result() (Result, bool) {
	if !t.IsFinished() {
		return Result{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, true
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (State, error) {
	select {
	case <-t.done:
		return t.State(), nil
	case <-ctx.Done():
		return t.State(), ctx.Err()
	}
}

// Start runs the build on a new goroutine.
func (t *Task) Start(ctx context.Context) error {
	runCtx, ok, err := t.begin(ctx)
	if err != nil || !ok {
		return err
	}
	go t.execute(runCtx)
	return nil
}

// Run runs the build on the calling goroutine.
func (t *Task) Run(ctx context.Context) error {
	runCtx, ok, err := t.begin(ctx)
	if err != nil || !ok {
		return err
	}
	t.execute(runCtx)
	return nil
}

// Cancel requests cancellation. A running build stops at its next
// checkpoint and in-flight fetches are aborted; a task that has not started
// yet becomes Cancelled as soon as it is started.
func (t *Task) Cancel() {
	t.cancelled.Store(true)

	t.mu.Lock()
	cancel := t.cancelFn
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *Task) begin(parent context.Context) (context.Context, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil, false, ErrAlreadyStarted
	}
	t.started = true
	t.startedAt = t.deps.Now()

	if t.cancelled.Load() || parent.Err() != nil {
		t.deps.Logger.Debug("task cancelled before start")
		t.finishLocked(Cancelled, Result{Request: t.req})
		return nil, false, nil
	}

	ctx, cancel := context.WithCancel(parent)
	t.cancelFn = cancel
	t.state.Store(int32(Running))
	return ctx, true, nil
}

func (t *Task) execute(ctx context.Context) {
	timer := monitoring.NewTimer(t.deps.Metrics)
	span, ctx := t.deps.Tracer.StartSpan(ctx, "build")
	span.SetTag("url", t.key.String())
	span.SetTag("task_id", t.id)

	outcome, result := t.build(ctx, span)

	span.SetTag("outcome", outcome)
	if result.Err != nil {
		span.SetError(result.Err)
	}
	span.Finish()
	t.deps.Tracer.Submit(span)
	timer.Stop(outcome)

	switch outcome {
	case monitoring.OutcomeCancelled:
		t.finish(Cancelled, result)
	case monitoring.OutcomeFailed:
		t.callback(result)
		t.finish(Failed, result)
	default:
		t.callback(result)
		t.finish(Completed, result)
	}
}

// build runs the stages and reports the outcome. It never mutates the
// lifecycle state.
func (t *Task) build(ctx context.Context, span *tracing.Span) (string, Result) {
	log := t.deps.Logger
	result := Result{Request: t.req}

	cancelled := func(stage Stage) bool {
		t.mu.Lock()
		t.stage = stage
		t.mu.Unlock()
		span.Log(string(stage), nil)
		if t.opts.OnStage != nil {
			t.opts.OnStage(stage)
		}
		if t.cancelled.Load() || ctx.Err() != nil {
			log.Info("build cancelled", zap.String("after", string(stage)))
			return true
		}
		return false
	}

	if t.opts.AlwaysRebuild {
		log.Debug("always rebuild")
	} else if t.deps.Cache.Has(ctx, t.key) {
		log.Info("cache exists, skipping build")
		result.AlreadyCached = true
		return monitoring.OutcomeCached, result
	} else {
		log.Debug("no cache found, building")
	}

	header := t.req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if t.opts.UserAgent != "" {
		header.Set("User-Agent", t.opts.UserAgent)
	}
	if cancelled(StageUserAgent) {
		return monitoring.OutcomeCancelled, result
	}

	res, err := t.deps.Fetcher.Fetch(ctx, t.key.String(), header)
	if err != nil {
		if t.cancelled.Load() || ctx.Err() != nil {
			return monitoring.OutcomeCancelled, result
		}
		return t.failed(result, fmt.Errorf("fetch page: %w", err))
	}
	html, err := res.Text()
	if err != nil {
		return t.failed(result, err)
	}
	if cancelled(StageFetch) {
		return monitoring.OutcomeCancelled, result
	}

	html = transform.Apply(t.opts.Preprocessor, html)
	if cancelled(StagePreprocess) {
		return monitoring.OutcomeCancelled, result
	}

	base := inline.BaseDir(t.req.URL)
	html, report := t.deps.Inliner.Inline(ctx, html, base)
	result.Report = report
	if cancelled(StageInline) {
		return monitoring.OutcomeCancelled, result
	}

	html = transform.Apply(t.opts.Postprocessor, html)
	if cancelled(StagePostprocess) {
		return monitoring.OutcomeCancelled, result
	}

	if t.deps.Dumper != nil {
		path, err := t.deps.Dumper.Write(t.key.String(), html)
		if err != nil {
			log.Warn("failed to save inlined page", zap.Error(err))
		} else {
			log.Info("saved inlined page", zap.String("path", path))
		}
		if cancelled(StageDebugDump) {
			return monitoring.OutcomeCancelled, result
		}
	}

	entry := cache.NewEntry(t.key.String(), html, report.Unresolved(), t.deps.Now())
	if cancelled(StagePrepare) {
		return monitoring.OutcomeCancelled, result
	}

	// Commit outlives cancellation of ctx; the checkpoint above already
	// decided to go ahead.
	commitCtx := context.WithoutCancel(ctx)
	if err := t.deps.Cache.Put(commitCtx, t.key, entry); err != nil {
		return t.failed(result, err)
	}
	if t.deps.Cache.Has(commitCtx, t.key) {
		log.Info("cache stored",
			zap.Int("bytes", len(entry.HTML)),
			zap.Int("inlined", report.Inlined),
			zap.Int("unresolved", report.Unresolved()),
		)
	} else {
		log.Warn("cache entry not readable after store")
	}
	result.Entry = entry
	if cancelled(StageCommit) {
		return monitoring.OutcomeCancelled, result
	}

	return monitoring.OutcomeCompleted, result
}

func (t *Task) failed(result Result, err error) (string, Result) {
	t.deps.Logger.Error("build failed", zap.Error(err))
	result.Err = err
	return monitoring.OutcomeFailed, result
}

func (t *Task) callback(result Result) {
	if t.opts.OnComplete != nil {
		t.opts.OnComplete(result)
	}
}

func (t *Task) finish(state State, result Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishLocked(state, result)
}

func (t *Task) finishLocked(state State, result Result) {
	t.result = result
	t.finishedAt = t.deps.Now()
	t.state.Store(int32(state))
	if t.cancelFn != nil {
		t.cancelFn()
	}
	close(t.done)
}

// Status is a point-in-time view of a task.
type Status struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	State         State      `json:"state"`
	Stage         Stage      `json:"stage,omitempty"`
	AlwaysRebuild bool       `json:"always_rebuild"`
	AlreadyCached bool       `json:"already_cached"`
	Unresolved    int        `json:"unresolved"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Status snapshots the task.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Status{
		ID:            t.id,
		URL:           t.key.String(),
		State:         t.State(),
		Stage:         t.stage,
		AlwaysRebuild: t.opts.AlwaysRebuild,
		CreatedAt:     t.createdAt,
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		s.StartedAt = &started
	}
	if s.State.Terminal() {
		finished := t.finishedAt
		s.FinishedAt = &finished
		s.AlreadyCached = t.result.AlreadyCached
		s.Unresolved = t.result.Report.Unresolved()
		if t.result.Err != nil {
			s.Error = t.result.Err.Error()
		}
	}
	return s
}
