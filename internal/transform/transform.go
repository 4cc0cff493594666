// Package transform provides the optional HTML hooks run before and after
// inlining.
package transform

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Transformer rewrites an HTML document.
type Transformer interface {
	Transform(html string) string
}

// Func adapts a plain function to Transformer.
type Func func(html string) string

func (f Func) Transform(html string) string { return f(html) }

// Chain applies its transformers in order.
type Chain []Transformer

func (c Chain) Transform(html string) string {
	for _, t := range c {
		html = Apply(t, html)
	}
	return html
}

// Apply runs t on html; a nil t is the identity.
func Apply(t Transformer, html string) string {
	if t == nil {
		return html
	}
	return t.Transform(html)
}

// RemoveSelectors deletes every element matching any of the CSS selectors.
// The document is re-serialised, so use it after inlining, not before: the
// stylesheet scanner expects link tags exactly as the server wrote them.
func RemoveSelectors(selectors ...string) Transformer {
	sel := strings.Join(selectors, ", ")
	return Func(func(html string) string {
		if sel == "" {
			return html
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return html
		}
		doc.Find(sel).Remove()
		out, err := doc.Html()
		if err != nil {
			return html
		}
		return out
	})
}
