package cache

import (
	"fmt"
	"net/http"
	"net/url"
)

// Key identifies a cached document: the request URL without its fragment.
type Key string

func (k Key) String() string { return string(k) }

// KeyForURL derives the key for u.
func KeyForURL(u *url.URL) Key {
	stripped := *u
	stripped.Fragment = ""
	stripped.RawFragment = ""
	return Key(stripped.String())
}

// KeyFor derives the key for req. Method and headers do not take part.
func KeyFor(req *http.Request) Key {
	return KeyForURL(req.URL)
}

// ParseKey parses an absolute URL and derives its key.
func ParseKey(raw string) (Key, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}
	return KeyForURL(u), nil
}

// StripFragment returns a copy of req whose URL has no fragment.
func StripFragment(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	out.URL.Fragment = ""
	out.URL.RawFragment = ""
	return out
}
