package inline

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/snapcache/internal/fetch"
	"github.com/GriffinCanCode/snapcache/internal/infrastructure/monitoring"
)

// fakeFetcher serves canned resources and records what was asked for.
type fakeFetcher struct {
	mu        sync.Mutex
	resources map[string]*fetch.Resource
	calls     map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		resources: make(map[string]*fetch.Resource),
		calls:     make(map[string]int),
	}
}

func (f *fakeFetcher) add(rawURL, charset string, body []byte) {
	f.resources[rawURL] = &fetch.Resource{URL: rawURL, Body: body, Charset: charset}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string, header http.Header) (*fetch.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++

	res, ok := f.resources[rawURL]
	if !ok {
		return nil, &fetch.FetchError{URL: rawURL, StatusCode: http.StatusNotFound, Reason: "Not Found"}
	}
	return res, nil
}

func (f *fakeFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

const pageURL = "https://example.com/docs/page.html"

func TestInlineAllPhases(t *testing.T) {
	f := newFakeFetcher()
	f.add("https://example.com/docs/css/app.css", "utf-8", []byte("body { background: url(img/bg.png); }"))
	f.add("https://example.com/docs/css/img/bg.png", "", []byte("BG"))
	f.add("https://example.com/docs/js/app.js", "", []byte(`console.log("hi");`))
	f.add("https://example.com/img/logo.gif", "", []byte("GIF"))

	html := `<html><head>
<link rel="stylesheet" href="css/app.css" />
<script type="text/javascript" src="js/app.js"></script>
<script src="https://cdn.example.com/lib.js"></script>
<style>h1 { background: url('/img/logo.gif'); }</style>
</head><body></body></html>`

	engine := NewEngine(f, Options{})
	out, report := engine.Inline(context.Background(), html, BaseDir(mustParse(t, pageURL)))

	assert.Contains(t, out, "<style rel=\"stylesheet\"  >\nbody { background: url(\"data:image/png;base64,"+b64("BG")+"\"); }\n</style>")
	assert.Contains(t, out, "<script type=\"text/javascript\" >\nconsole.log(\"hi\");\n</script>")
	assert.Contains(t, out, `<script src="https://cdn.example.com/lib.js"></script>`)
	assert.Contains(t, out, `h1 { background: url("data:image/gif;base64,`+b64("GIF")+`"); }`)

	assert.NotContains(t, out, `href="css/app.css"`)
	assert.NotContains(t, out, `src="js/app.js"`)
	assert.Empty(t, Scan(out, Image), "no relative url() left")

	assert.Equal(t, 4, report.Inlined)
	assert.Zero(t, report.Unresolved())
	assert.Zero(t, f.count("https://cdn.example.com/lib.js"))
}

func TestInlinePartialFailure(t *testing.T) {
	f := newFakeFetcher()
	f.add("https://example.com/docs/ok.png", "", []byte("PNG"))

	link := `<link rel="stylesheet" href="missing.css" />`
	html := link + "\n<div style=\"background: url(ok.png)\"></div>"

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	engine := NewEngine(f, Options{Metrics: metrics})
	out, report := engine.Inline(context.Background(), html, BaseDir(mustParse(t, pageURL)))

	assert.Contains(t, out, link, "unreachable stylesheet left untouched")
	assert.Contains(t, out, `url("data:image/png;base64,`+b64("PNG")+`")`)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, Stylesheet, report.Failures[0].Kind)
	assert.Equal(t, "https://example.com/docs/missing.css", report.Failures[0].URL)
	var fe *fetch.FetchError
	assert.ErrorAs(t, report.Failures[0].Err, &fe)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ResourceFetch.WithLabelValues("stylesheet", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ResourceFetch.WithLabelValues("image", "ok")))
}

func TestInlineRootRelativeStylesheet(t *testing.T) {
	f := newFakeFetcher()
	f.add("https://example.com/assets/app.css", "", []byte("p { margin: 0; }"))

	html := `<link rel="stylesheet" href="/assets/app.css"/>`
	out, report := NewEngine(f, Options{}).Inline(context.Background(), html, BaseDir(mustParse(t, pageURL)))

	assert.Equal(t, "<style rel=\"stylesheet\" >\np { margin: 0; }\n</style>", out)
	assert.Equal(t, 1, f.count("https://example.com/assets/app.css"))
	assert.Zero(t, f.count("https://example.com/docs/assets/app.css"))
	assert.Zero(t, report.Unresolved())
}

func TestInlineStylesheetImagesUseStylesheetDirectory(t *testing.T) {
	f := newFakeFetcher()
	f.add("https://example.com/theme/main.css", "", []byte(".hero { background: url(\"../pics/hero.jpg\"); }"))
	f.add("https://example.com/pics/hero.jpg", "", []byte("JPEG"))

	html := `<link rel="stylesheet" href="/theme/main.css" />`
	out, report := NewEngine(f, Options{}).Inline(context.Background(), html, BaseDir(mustParse(t, pageURL)))

	assert.Contains(t, out, `url("data:image/jpg;base64,`+b64("JPEG")+`")`)
	assert.NotContains(t, out, "hero.jpg")
	assert.Equal(t, 2, report.Inlined)
}

func TestInlineSharedTargetFetchedOnce(t *testing.T) {
	f := newFakeFetcher()
	f.add("https://example.com/docs/dot.png", "", []byte("DOT"))

	html := `<i style="background: url(dot.png)"></i><b style="background: url('dot.png')"></b>`
	out, report := NewEngine(f, Options{}).Inline(context.Background(), html, BaseDir(mustParse(t, pageURL)))

	assert.Equal(t, 1, f.count("https://example.com/docs/dot.png"))
	assert.Equal(t, 2, strings.Count(out, "data:image/png;base64,"+b64("DOT")))
	assert.Equal(t, 2, report.Inlined)
}

func TestInlineImageWithoutExtension(t *testing.T) {
	png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"
	f := newFakeFetcher()
	f.add("https://example.com/docs/avatar", "", []byte(png))

	out, _ := NewEngine(f, Options{}).Inline(context.Background(), `url(avatar)`, BaseDir(mustParse(t, pageURL)))

	assert.Equal(t, `url("data:image/png;base64,`+b64(png)+`")`, out)
}

func TestInlineUndecodableStylesheetIsSkipped(t *testing.T) {
	f := newFakeFetcher()
	f.add("https://example.com/docs/bad.css", "x-unknown", []byte("a{}"))

	html := `<link rel="stylesheet" href="bad.css" />`
	out, report := NewEngine(f, Options{}).Inline(context.Background(), html, BaseDir(mustParse(t, pageURL)))

	assert.Equal(t, html, out)
	require.Len(t, report.Failures, 1)
	var ee *fetch.EncodingError
	assert.ErrorAs(t, report.Failures[0].Err, &ee)
}

func TestInlineStripsComments(t *testing.T) {
	f := newFakeFetcher()

	html := `<style>/* a { background: url(ghost.png); } */ p {}</style>`
	out, report := NewEngine(f, Options{}).Inline(context.Background(), html, BaseDir(mustParse(t, pageURL)))

	assert.Equal(t, `<style> p {}</style>`, out)
	assert.Zero(t, f.count("https://example.com/docs/ghost.png"))
	assert.Zero(t, report.Unresolved())
}

func TestInlineStrayCommentOpenerKeepsPage(t *testing.T) {
	f := newFakeFetcher()
	f.add("https://example.com/docs/a.css", "", []byte("p { color: red; }"))

	html := "<p>Routes match /api/*</p>\n" +
		`<link rel="stylesheet" href="a.css"/>` + "\n" +
		"<h1>Title</h1>\n" +
		"<script>/* analytics */</script>"
	out, report := NewEngine(f, Options{}).Inline(context.Background(), html, BaseDir(mustParse(t, pageURL)))

	assert.Equal(t, "<p>Routes match /api/*</p>\n"+
		"<style rel=\"stylesheet\" >\np { color: red; }\n</style>\n"+
		"<h1>Title</h1>\n"+
		"<script></script>", out)
	assert.Equal(t, 1, report.Inlined)
	assert.Zero(t, report.Unresolved())
}

func TestInlineStrayCommentOpenerKeepsFailedLink(t *testing.T) {
	f := newFakeFetcher()

	link := `<link rel="stylesheet" href="gone.css"/>`
	html := "<p>/api/*</p>\n" + link + "\n<p>done */</p>"
	out, report := NewEngine(f, Options{}).Inline(context.Background(), html, BaseDir(mustParse(t, pageURL)))

	assert.Equal(t, html, out)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "https://example.com/docs/gone.css", report.Failures[0].URL)
}

func TestInlineStylesheetImageFailureCountedOnce(t *testing.T) {
	f := newFakeFetcher()
	f.add("https://example.com/theme/main.css", "", []byte(".x { background: url(missing.png); }"))

	html := `<link rel="stylesheet" href="/theme/main.css" />`
	out, report := NewEngine(f, Options{}).Inline(context.Background(), html, BaseDir(mustParse(t, pageURL)))

	assert.Contains(t, out, "url(missing.png)")
	assert.Equal(t, 1, report.Inlined)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, Image, report.Failures[0].Kind)
	assert.Equal(t, "missing.png", report.Failures[0].Name)

	// The stylesheet's directory is tried first, then the page's.
	assert.Equal(t, 1, f.count("https://example.com/theme/missing.png"))
	assert.Equal(t, 1, f.count("https://example.com/docs/missing.png"))
}

func TestInlineStylesheetImageRecoveredAgainstPage(t *testing.T) {
	f := newFakeFetcher()
	f.add("https://example.com/theme/main.css", "", []byte(".x { background: url(shared.png); }"))
	f.add("https://example.com/docs/shared.png", "", []byte("PNG"))

	html := `<link rel="stylesheet" href="/theme/main.css" />`
	out, report := NewEngine(f, Options{}).Inline(context.Background(), html, BaseDir(mustParse(t, pageURL)))

	assert.Contains(t, out, `url("data:image/png;base64,`+b64("PNG")+`")`)
	assert.Equal(t, 2, report.Inlined)
	assert.Zero(t, report.Unresolved())
}

func TestInlineFetchMetricCountsDistinctTargets(t *testing.T) {
	f := newFakeFetcher()
	f.add("https://example.com/docs/dot.png", "", []byte("DOT"))

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	html := `url(dot.png) url('dot.png') url("dot.png") url(none.png) url(none.png)`
	_, report := NewEngine(f, Options{Metrics: metrics}).Inline(context.Background(), html, BaseDir(mustParse(t, pageURL)))

	assert.Equal(t, 3, report.Inlined)
	assert.Equal(t, 2, report.Unresolved())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ResourceFetch.WithLabelValues("image", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ResourceFetch.WithLabelValues("image", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.UnresolvedRefs))
}

func TestApplyDropsStaleAnchors(t *testing.T) {
	buf := "aaa url(x.png) bbb url(y.png)"
	refs := Scan(buf, Image)
	require.Len(t, refs, 2)

	stale := refs[1]
	stale.Anchor = "url(z.png)"

	out, dropped := apply(buf, []edit{
		{ref: stale, replacement: "Y"},
		{ref: refs[0], replacement: "X"},
	})

	assert.Equal(t, "aaa X bbb url(y.png)", out)
	require.Len(t, dropped, 1)
	assert.Equal(t, "url(z.png)", dropped[0].Anchor)
}

func TestInlineOverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/static/site.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css; charset=iso-8859-1")
		_, _ = w.Write([]byte("p::after { content: \"caf\xe9\"; background: url(bg.gif); }"))
	})
	mux.HandleFunc("/static/bg.gif", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("GIF89a"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := fetch.New(fetch.Options{Timeout: 5 * time.Second})
	html := `<link rel="stylesheet" href="/static/site.css" />`

	out, report := NewEngine(fetcher, Options{}).Inline(context.Background(), html, BaseDir(mustParse(t, srv.URL+"/pages/a.html")))

	assert.Contains(t, out, `content: "café"`)
	assert.Contains(t, out, `url("data:image/gif;base64,`+b64("GIF89a")+`")`)
	assert.Zero(t, report.Unresolved())
}
