// Package debugdump writes inlined pages to a scratch directory for manual
// inspection.
package debugdump

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var scheme = regexp.MustCompile(`^https?://`)

// Dumper writes pages under <dir>/InlinedPages. A nil Dumper is disabled.
type Dumper struct {
	root string
}

// New returns a Dumper rooted at dir, or nil when dir is empty.
func New(dir string) *Dumper {
	if dir == "" {
		return nil
	}
	return &Dumper{root: filepath.Join(dir, "InlinedPages")}
}

// Path returns where the page for rawURL is written: the URL without its
// http(s) scheme, plus ".html".
func (d *Dumper) Path(rawURL string) (string, error) {
	name := scheme.ReplaceAllString(rawURL, "") + ".html"
	p := filepath.Join(d.root, filepath.FromSlash(name))
	if p != d.root && !strings.HasPrefix(p, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("dump path for %s escapes %s", rawURL, d.root)
	}
	return p, nil
}

// Write stores html for rawURL and returns the file path.
func (d *Dumper) Write(rawURL, html string) (string, error) {
	if d == nil {
		return "", nil
	}
	p, err := d.Path(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create dump directory: %w", err)
	}
	if err := os.WriteFile(p, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("write dump: %w", err)
	}
	return p, nil
}
