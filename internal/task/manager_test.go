package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/snapcache/internal/cache"
)

func TestManagerSubmit(t *testing.T) {
	fx := newFixture()
	other := "https://example.com/docs/other.html"
	fx.fetcher.resources[other] = "<html><body>other</body></html>"

	m := NewManager(fx.deps, 2)
	first := m.Submit(newRequest(t, pageURL), Options{})
	second := m.Submit(newRequest(t, other), Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, task := range []*Task{first, second} {
		state, err := task.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, Completed, state)
	}

	got, ok := m.Get(first.ID())
	require.True(t, ok)
	assert.Same(t, first, got)

	statuses := m.List()
	require.Len(t, statuses, 2)
	assert.Equal(t, first.ID(), statuses[0].ID)
	assert.Equal(t, second.ID(), statuses[1].ID)

	assert.True(t, fx.cache.Has(context.Background(), cache.Key(other)))
	require.NoError(t, m.Shutdown(ctx))
}

func TestManagerCancel(t *testing.T) {
	fx := newFixture()
	m := NewManager(fx.deps, 1)

	assert.ErrorIs(t, m.Cancel("missing"), ErrNotFound)

	entered := make(chan struct{})
	release := make(chan struct{})
	blocker := m.Submit(newRequest(t, pageURL), Options{
		AlwaysRebuild: true,
		OnStage: func(s Stage) {
			if s == StageUserAgent {
				close(entered)
				<-release
			}
		},
	})
	<-entered
	queued := m.Submit(newRequest(t, "https://example.com/docs/queued.html"), Options{})
	require.NoError(t, m.Cancel(queued.ID()))
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := queued.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, state)

	state, err = blocker.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, Completed, state)
	require.NoError(t, m.Shutdown(ctx))
}

func TestManagerShutdownCancelsQueued(t *testing.T) {
	fx := newFixture()
	m := NewManager(fx.deps, 1)

	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	running := m.Submit(newRequest(t, pageURL), Options{
		OnStage: func(s Stage) {
			if s == StageUserAgent {
				close(entered)
				<-release
			}
		},
	})
	<-entered
	queued := m.Submit(newRequest(t, "https://example.com/docs/queued.html"), Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Shutdown(ctx), context.DeadlineExceeded)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	state, err := queued.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, state)
	assert.False(t, running.IsFinished())
}
