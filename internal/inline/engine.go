package inline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/snapcache/internal/fetch"
	"github.com/GriffinCanCode/snapcache/internal/infrastructure/monitoring"
)

// ErrAnchorNotFound marks an edit whose anchor no longer matches the buffer.
var ErrAnchorNotFound = errors.New("anchor not found")

// Fetcher retrieves one resource.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, header http.Header) (*fetch.Resource, error)
}

// Failure is a reference left untouched.
type Failure struct {
	Kind Kind
	Name string
	URL  string
	Err  error
}

// Report summarises one Inline call.
type Report struct {
	Inlined  int
	Failures []Failure
}

// Unresolved is the number of references that could not be inlined.
func (r Report) Unresolved() int {
	return len(r.Failures)
}

func (r *Report) merge(other Report) {
	r.Inlined += other.Inlined
	r.Failures = append(r.Failures, other.Failures...)
}

// Options configures an Engine.
type Options struct {
	// Concurrency bounds the fetches in flight per phase.
	Concurrency int
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
}

// Engine embeds stylesheets, scripts and CSS images into a document.
type Engine struct {
	fetcher     Fetcher
	concurrency int
	logger      *zap.Logger
	metrics     *monitoring.Metrics
}

// NewEngine creates an Engine.
func NewEngine(fetcher Fetcher, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		fetcher:     fetcher,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

// Inline runs the style, script and image phases over html, in that order.
// base is the directory the page's relative names resolve against. A
// reference that cannot be inlined is left as is and reported; Inline never
// fails the document.
func (e *Engine) Inline(ctx context.Context, html string, base *url.URL) (string, Report) {
	var report Report
	for _, kind := range []Kind{Stylesheet, Script, Image} {
		var r Report
		html, r = e.phase(ctx, html, base, kind)
		report.merge(r)
	}
	e.metrics.RecordUnresolved(report.Unresolved())

	e.logger.Debug("inlining finished",
		zap.String("base", base.String()),
		zap.Int("inlined", report.Inlined),
		zap.Int("unresolved", report.Unresolved()),
	)
	return html, report
}

type edit struct {
	ref         Reference
	replacement string
}

// fetched is the outcome for one distinct target URL of a phase.
type fetched struct {
	target  *url.URL
	content string
	report  Report
	err     error
}

func (e *Engine) phase(ctx context.Context, buf string, base *url.URL, kind Kind) (string, Report) {
	var report Report

	buf = StripBlockComments(buf)
	refs := Scan(buf, kind)
	if len(refs) == 0 {
		return buf, report
	}

	// One fetch per distinct target, shared by every reference to it.
	targets := make(map[string]*fetched)
	var order []string
	refTarget := make([]string, len(refs))
	for i, ref := range refs {
		target, err := Resolve(base, ref.Name)
		if err != nil {
			report.Failures = append(report.Failures, e.fail(ref, ref.Name, fmt.Errorf("resolve: %w", err)))
			continue
		}
		key := target.String()
		refTarget[i] = key
		if _, ok := targets[key]; !ok {
			targets[key] = &fetched{target: target}
			order = append(order, key)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for _, key := range order {
		f := targets[key]
		g.Go(func() error {
			f.content, f.report, f.err = e.load(ctx, kind, f.target)
			e.metrics.RecordFetch(kind.String(), f.err == nil)
			return nil
		})
	}
	_ = g.Wait()

	for _, key := range order {
		report.merge(targets[key].report)
	}

	edits := make([]edit, 0, len(refs))
	for i, ref := range refs {
		key := refTarget[i]
		if key == "" {
			continue
		}
		f := targets[key]
		if f.err != nil {
			report.Failures = append(report.Failures, e.fail(ref, key, f.err))
			continue
		}
		edits = append(edits, edit{ref: ref, replacement: rewrite(ref, f.content, f.target)})
	}

	out, dropped := apply(buf, edits)
	for _, ref := range dropped {
		report.Failures = append(report.Failures, e.fail(ref, ref.Name, ErrAnchorNotFound))
	}
	report.Inlined += len(edits) - len(dropped)
	return out, report
}

// load fetches target and returns the text to splice in. Stylesheets have
// their own images inlined relative to the stylesheet's directory; images
// come back base64 encoded.
//
// An image a stylesheet could not inline stays in the spliced <style> text,
// where the page's image phase scans it again and reports the outcome, so
// only the stylesheet's successes are returned here.
func (e *Engine) load(ctx context.Context, kind Kind, target *url.URL) (string, Report, error) {
	res, err := e.fetcher.Fetch(ctx, target.String(), nil)
	if err != nil {
		return "", Report{}, err
	}

	if kind == Image {
		return imageData(target, res.Body), Report{}, nil
	}

	text, err := res.Text()
	if err != nil {
		return "", Report{}, err
	}

	if kind == Stylesheet {
		css, report := e.phase(ctx, text, BaseDir(target), Image)
		return css, Report{Inlined: report.Inlined}, nil
	}
	return text, Report{}, nil
}

func (e *Engine) fail(ref Reference, target string, err error) Failure {
	e.logger.Warn("reference not inlined",
		zap.String("kind", ref.Kind.String()),
		zap.String("name", ref.Name),
		zap.String("url", target),
		zap.Error(err),
	)
	return Failure{Kind: ref.Kind, Name: ref.Name, URL: target, Err: err}
}

// apply splices edits into buf using the offsets captured at scan time.
// Edits whose anchor does not match buf at those offsets are dropped.
func apply(buf string, edits []edit) (string, []Reference) {
	sort.SliceStable(edits, func(i, j int) bool {
		return edits[i].ref.Start < edits[j].ref.Start
	})

	var (
		sb      strings.Builder
		dropped []Reference
		last    int
	)
	sb.Grow(len(buf))
	for _, ed := range edits {
		r := ed.ref
		if r.Start < last || r.End > len(buf) || buf[r.Start:r.End] != r.Anchor {
			dropped = append(dropped, r)
			continue
		}
		sb.WriteString(buf[last:r.Start])
		sb.WriteString(ed.replacement)
		last = r.End
	}
	sb.WriteString(buf[last:])
	return sb.String(), dropped
}

var (
	hrefAttr  = regexp.MustCompile(`href="[^"]*"`)
	srcAttr   = regexp.MustCompile(`src="[^"]*"`)
	selfClose = regexp.MustCompile(`/ *>`)
)

func rewrite(ref Reference, content string, target *url.URL) string {
	switch ref.Kind {
	case Stylesheet:
		tag := strings.Replace(ref.Anchor, "<link", "<style", 1)
		tag = hrefAttr.ReplaceAllString(tag, "")
		tag = selfClose.ReplaceAllString(tag, ">")
		return tag + "\n" + content + "\n</style>"
	case Script:
		tag := srcAttr.ReplaceAllString(ref.Anchor, "")
		tag = strings.ReplaceAll(tag, "</script>", "")
		return tag + "\n" + content + "\n</script>"
	default:
		return content
	}
}

// imageData renders body as a CSS data URL. The subtype is the path's
// extension, or the detected subtype when the path has none.
func imageData(target *url.URL, body []byte) string {
	ext := strings.TrimPrefix(path.Ext(target.Path), ".")
	if ext == "" {
		ext = "octet-stream"
		if mediaType, _, err := mime.ParseMediaType(mimetype.Detect(body).String()); err == nil {
			if _, sub, ok := strings.Cut(mediaType, "/"); ok {
				ext = sub
			}
		}
	}
	return `url("data:image/` + ext + `;base64,` + base64.StdEncoding.EncodeToString(body) + `")`
}
