package loader

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/snapcache/internal/cache"
	"github.com/GriffinCanCode/snapcache/internal/task"
)

const pageURL = "https://example.com/docs/page.html"

type rendered struct {
	live     bool
	html     string
	mimeType string
	encoding string
	baseURL  string
}

type fakeRenderer struct {
	calls []rendered
	err   error
}

func (r *fakeRenderer) RenderDocument(_ context.Context, html []byte, mimeType, encoding string, baseURL *url.URL) error {
	r.calls = append(r.calls, rendered{html: string(html), mimeType: mimeType, encoding: encoding, baseURL: baseURL.String()})
	return r.err
}

func (r *fakeRenderer) LoadLive(_ context.Context, req *http.Request) error {
	r.calls = append(r.calls, rendered{live: true, baseURL: req.URL.String()})
	return r.err
}

type fakeScheduler struct {
	cache     *cache.Cache
	submitted []task.Options
	urls      []string
}

func (s *fakeScheduler) Submit(req *http.Request, opts task.Options) *task.Task {
	s.submitted = append(s.submitted, opts)
	s.urls = append(s.urls, req.URL.String())
	return task.New(req, task.Deps{Cache: s.cache}, opts)
}

func setup(t *testing.T, cached bool) (*Loader, *fakeScheduler) {
	t.Helper()
	c := cache.New(cache.NewMemoryStore(), nil, nil)
	if cached {
		require.NoError(t, c.Put(context.Background(), cache.Key(pageURL),
			cache.NewEntry(pageURL, "<html>cached</html>", 0, time.Now())))
	}
	s := &fakeScheduler{cache: c}
	return New(c, s, task.Options{UserAgent: "snapcache-test"}, nil), s
}

func request(t *testing.T, rawURL string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	return req
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		cached        bool
		opts          Options
		wantLive      bool
		wantTask      bool
		alwaysRebuild bool
	}{
		{name: "cached", cached: true},
		{name: "cached with rebuild", cached: true, opts: Options{RebuildCache: true}, wantTask: true, alwaysRebuild: true},
		{name: "cached but ignored", cached: true, opts: Options{IgnoreExistingCache: true}, wantLive: true, wantTask: true, alwaysRebuild: true},
		{name: "miss", wantLive: true, wantTask: true},
		{name: "miss with rebuild", opts: Options{RebuildCache: true}, wantLive: true, wantTask: true, alwaysRebuild: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, s := setup(t, tt.cached)
			r := &fakeRenderer{}

			got, err := l.Load(context.Background(), request(t, pageURL+"#intro"), r, tt.opts)
			require.NoError(t, err)

			require.Len(t, r.calls, 1)
			assert.Equal(t, tt.wantLive, r.calls[0].live)
			if tt.wantLive {
				assert.Equal(t, pageURL+"#intro", r.calls[0].baseURL)
			} else {
				assert.Equal(t, "<html>cached</html>", r.calls[0].html)
				assert.Equal(t, cache.MIMETypeHTML, r.calls[0].mimeType)
				assert.Equal(t, cache.EncodingUTF8, r.calls[0].encoding)
				assert.Equal(t, pageURL, r.calls[0].baseURL)
			}

			if !tt.wantTask {
				assert.Nil(t, got)
				assert.Empty(t, s.submitted)
				return
			}
			require.NotNil(t, got)
			require.Len(t, s.submitted, 1)
			assert.Equal(t, tt.alwaysRebuild, s.submitted[0].AlwaysRebuild)
			assert.Equal(t, "snapcache-test", s.submitted[0].UserAgent)
			assert.Equal(t, cache.Key(pageURL), got.Key())
		})
	}
}

func TestLoadRenderError(t *testing.T) {
	errRender := errors.New("renderer gone")

	l, s := setup(t, false)
	got, err := l.Load(context.Background(), request(t, pageURL), &fakeRenderer{err: errRender}, Options{})
	assert.ErrorIs(t, err, errRender)
	assert.NotNil(t, got)
	assert.Len(t, s.submitted, 1)

	l, s = setup(t, true)
	got, err = l.Load(context.Background(), request(t, pageURL), &fakeRenderer{err: errRender}, Options{})
	assert.ErrorIs(t, err, errRender)
	assert.Nil(t, got)
	assert.Empty(t, s.submitted)
}

func TestLoadRejectsBadRequests(t *testing.T) {
	l, s := setup(t, false)

	post, err := http.NewRequest(http.MethodPost, pageURL, nil)
	require.NoError(t, err)
	_, err = l.Load(context.Background(), post, &fakeRenderer{}, Options{})
	assert.Error(t, err)

	_, err = l.Load(context.Background(), request(t, "/relative"), &fakeRenderer{}, Options{})
	assert.Error(t, err)
	assert.Empty(t, s.submitted)
}
