package inline

import (
	"regexp"
	"strings"
)

// Kind is the shape of an embedding point.
type Kind int

const (
	Stylesheet Kind = iota
	Script
	Image
)

func (k Kind) String() string {
	switch k {
	case Stylesheet:
		return "stylesheet"
	case Script:
		return "script"
	case Image:
		return "image"
	default:
		return "unknown"
	}
}

// Reference is one embedding point found in a buffer. Anchor is the exact
// matched text and occupies buf[Start:End].
type Reference struct {
	Kind   Kind
	Name   string
	Anchor string
	Start  int
	End    int
}

var (
	blockComment = regexp.MustCompile(`/\*.*?\*/`)

	patterns = map[Kind]*regexp.Regexp{
		Stylesheet: regexp.MustCompile(`<link [^>]*href="(\S+\.css)"[^<>]*/>`),
		Script:     regexp.MustCompile(`<script [^>]*src="(\S+)"[^<>]*>\s*</script>`),
		Image:      regexp.MustCompile(`url\(([^:\s)]+)\)`),
	}
)

// StripBlockComments removes every /* ... */ span that opens and closes on
// the same line. A stray "/*" never swallows text past its own line.
func StripBlockComments(buf string) string {
	return blockComment.ReplaceAllString(buf, "")
}

// Scan returns the references of the given kind in buf, in order.
func Scan(buf string, kind Kind) []Reference {
	pattern, ok := patterns[kind]
	if !ok {
		return nil
	}

	var refs []Reference
	for _, m := range pattern.FindAllStringSubmatchIndex(buf, -1) {
		name := buf[m[2]:m[3]]

		switch kind {
		case Script:
			// RE2 has no lookahead, so absolute scripts are dropped here.
			if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
				continue
			}
		case Image:
			name = unquote(name)
			if name == "" {
				continue
			}
		}

		refs = append(refs, Reference{
			Kind:   kind,
			Name:   name,
			Anchor: buf[m[0]:m[1]],
			Start:  m[0],
			End:    m[1],
		})
	}
	return refs
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
