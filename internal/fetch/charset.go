package fetch

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

var (
	errUnknownCharset = errors.New("unknown charset")
	errInvalidUTF8    = errors.New("invalid UTF-8")
)

const utf8Name = "utf-8"

// decode converts body to a UTF-8 string. label is the declared charset; an
// empty label means UTF-8 unless sniffing is enabled and the bytes are not
// valid UTF-8.
func decode(body []byte, label string, sniff bool) (string, string, error) {
	label = strings.TrimSpace(strings.Trim(label, `"'`))

	if label == "" {
		if utf8.Valid(body) || !sniff {
			s, err := decodeUTF8(body)
			return s, utf8Name, err
		}
		label = detectCharset(body)
	}

	enc, name := charset.Lookup(label)
	if enc == nil {
		return "", label, errUnknownCharset
	}

	// Every UTF-8 alias goes straight through, never via a generic decoder.
	if name == utf8Name {
		s, err := decodeUTF8(body)
		return s, utf8Name, err
	}

	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", name, err
	}
	return string(out), name, nil
}

func decodeUTF8(body []byte) (string, error) {
	if !utf8.Valid(body) {
		return "", errInvalidUTF8
	}
	return string(body), nil
}

// detectCharset guesses the charset of undeclared bytes.
func detectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return utf8Name
	}
	return strings.ToLower(result.Charset)
}
