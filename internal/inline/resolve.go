package inline

import (
	"net/url"
	"strings"
)

// Resolve turns a reference name into an absolute URL. Root-relative names
// ("/x") resolve against the origin of base, everything else against base.
func Resolve(base *url.URL, name string) (*url.URL, error) {
	ref, err := url.Parse(name)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(name, "/") && !strings.HasPrefix(name, "//") {
		origin := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
		return origin.ResolveReference(ref), nil
	}
	return base.ResolveReference(ref), nil
}

// BaseDir returns the directory of u: the URL up to and including the last
// slash of its path, without query or fragment.
func BaseDir(u *url.URL) *url.URL {
	dir := *u
	dir.RawQuery = ""
	dir.ForceQuery = false
	dir.Fragment = ""
	dir.RawFragment = ""

	p := dir.Path
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[:i+1]
	} else {
		p = "/"
	}
	dir.Path = p
	dir.RawPath = ""
	return &dir
}
