package task

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrNotFound is returned for an unknown task ID.
var ErrNotFound = errors.New("task not found")

// Manager runs tasks with bounded parallelism and keeps them addressable by
// ID until they are pruned.
type Manager struct {
	deps    Deps
	sem     *semaphore.Weighted
	ctx     context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	maxKept int

	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// NewManager creates a manager allowing workers concurrent builds.
func NewManager(deps Deps, workers int) *Manager {
	if workers <= 0 {
		workers = 1
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		deps:    deps,
		sem:     semaphore.NewWeighted(int64(workers)),
		ctx:     ctx,
		stop:    stop,
		maxKept: 1024,
		tasks:   make(map[string]*Task),
	}
}

// Deps returns the collaborators handed to new tasks.
func (m *Manager) Deps() Deps {
	return m.deps
}

// NewTask creates a task bound to the manager's collaborators without
// registering or starting it.
func (m *Manager) NewTask(req *http.Request, opts Options) *Task {
	return New(req, m.deps, opts)
}

// Submit registers a task for req and schedules it. The build waits for a
// free worker; cancelling it while queued finishes it as Cancelled.
func (m *Manager) Submit(req *http.Request, opts Options) *Task {
	t := m.NewTask(req, opts)
	m.track(t)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.sem.Acquire(m.ctx, 1); err != nil {
			t.Cancel()
			_ = t.Run(m.ctx)
			return
		}
		defer m.sem.Release(1)
		if err := t.Run(m.ctx); err != nil {
			m.deps.Logger.Warn("task not run", zap.String("task_id", t.ID()), zap.Error(err))
		}
	}()
	return t
}

// Get looks up a task.
func (m *Manager) Get(id string) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok
}

// List returns the status of every tracked task, oldest first.
func (m *Manager) List() []Status {
	m.mu.RLock()
	tasks := make([]*Task, 0, len(m.order))
	for _, id := range m.order {
		tasks = append(tasks, m.tasks[id])
	}
	m.mu.RUnlock()

	out := make([]Status, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Status())
	}
	// Build IDs sort by creation time.
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Cancel cancels the task with the given ID.
func (m *Manager) Cancel(id string) error {
	t, ok := m.Get(id)
	if !ok {
		return ErrNotFound
	}
	t.Cancel()
	return nil
}

// Shutdown cancels every task and waits for the workers to exit or ctx to
// expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()

	m.mu.RLock()
	for _, t := range m.tasks {
		t.Cancel()
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) track(t *Task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks[t.ID()] = t
	m.order = append(m.order, t.ID())

	// Drop the oldest finished tasks once over capacity.
	for len(m.order) > m.maxKept {
		pruned := false
		for i, id := range m.order {
			if m.tasks[id].IsFinished() {
				delete(m.tasks, id)
				m.order = append(m.order[:i], m.order[i+1:]...)
				pruned = true
				break
			}
		}
		if !pruned {
			return
		}
	}
}
