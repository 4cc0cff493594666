package http

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/GriffinCanCode/snapcache/internal/fetch"
	"github.com/GriffinCanCode/snapcache/internal/inline"
)

const (
	headerCache = "X-Snapshot-Cache"
	headerBuild = "X-Snapshot-Build"
)

var (
	headTag = regexp.MustCompile(`(?i)<head(\s[^>]*)?>`)
	baseTag = regexp.MustCompile(`(?i)<base\s`)
)

// pageRenderer captures what the loader chose to show so the handler can
// write it once the build (if any) is known.
type pageRenderer struct {
	fetcher   inline.Fetcher
	userAgent string

	status      string
	body        []byte
	contentType string
}

func (r *pageRenderer) RenderDocument(_ context.Context, doc []byte, mimeType, encoding string, baseURL *url.URL) error {
	r.status = "hit"
	r.contentType = mimeType + "; charset=" + strings.ToLower(encoding)
	r.body = []byte(withBase(string(doc), baseURL))
	return nil
}

func (r *pageRenderer) LoadLive(ctx context.Context, req *http.Request) error {
	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if r.userAgent != "" {
		header.Set("User-Agent", r.userAgent)
	}

	stripped := *req.URL
	stripped.Fragment = ""
	stripped.RawFragment = ""

	res, err := r.fetcher.Fetch(ctx, stripped.String(), header)
	if err != nil {
		return err
	}
	text, err := res.Text()
	if err != nil {
		return err
	}

	mimeType := res.MIMEType
	if mimeType == "" {
		mimeType = "text/html"
	}
	if mimeType == "text/html" {
		text = withBase(text, &stripped)
	}
	r.status = "miss"
	r.contentType = mimeType + "; charset=utf-8"
	r.body = []byte(text)
	return nil
}

func (r *pageRenderer) rendered() bool {
	return r.status != ""
}

// withBase points relative references that survived inlining back at the
// page's origin. Documents that already declare a base are left alone.
func withBase(doc string, base *url.URL) string {
	if base == nil || baseTag.MatchString(doc) {
		return doc
	}
	tag := fmt.Sprintf(`<base href="%s">`, html.EscapeString(base.String()))
	loc := headTag.FindStringIndex(doc)
	if loc == nil {
		return tag + doc
	}
	return doc[:loc[1]] + tag + doc[loc[1]:]
}

// liveStatus maps a live-load failure to a response code.
func liveStatus(err error) int {
	var fetchErr *fetch.FetchError
	if errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}
