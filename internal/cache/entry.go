package cache

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMalformedEntry marks a stored record that is not a snapshot entry.
var ErrMalformedEntry = errors.New("malformed cache entry")

const (
	MIMETypeHTML = "text/html"
	EncodingUTF8 = "UTF-8"
)

// Metadata keys stored alongside the HTML body.
const (
	metaCacheDate    = "cacheDate"
	metaManaged      = "managed"
	metaMIMEType     = "mimeType"
	metaTextEncoding = "textEncoding"
	metaPartial      = "partial"
	metaUnresolved   = "unresolved"
	metaURL          = "url"
)

// Entry is a self-contained snapshot of one page.
type Entry struct {
	URL          string    `json:"url"`
	HTML         []byte    `json:"-"`
	MIMEType     string    `json:"mime_type"`
	TextEncoding string    `json:"text_encoding"`
	CacheDate    time.Time `json:"cache_date"`
	Managed      bool      `json:"managed"`
	// Partial is set when some references could not be inlined; Unresolved
	// counts them.
	Partial    bool `json:"partial"`
	Unresolved int  `json:"unresolved"`
}

// NewEntry builds the entry written by a successful build.
func NewEntry(rawURL, html string, unresolved int, now time.Time) *Entry {
	return &Entry{
		URL:          rawURL,
		HTML:         []byte(html),
		MIMEType:     MIMETypeHTML,
		TextEncoding: EncodingUTF8,
		CacheDate:    now,
		Managed:      true,
		Partial:      unresolved > 0,
		Unresolved:   unresolved,
	}
}

// Record is what a Store keeps: an opaque body plus string metadata.
type Record struct {
	Body     []byte
	Metadata map[string]string
}

func (e *Entry) toRecord() Record {
	return Record{
		Body: e.HTML,
		Metadata: map[string]string{
			metaCacheDate:    e.CacheDate.UTC().Format(time.RFC3339Nano),
			metaManaged:      strconv.FormatBool(e.Managed),
			metaMIMEType:     e.MIMEType,
			metaTextEncoding: e.TextEncoding,
			metaPartial:      strconv.FormatBool(e.Partial),
			metaUnresolved:   strconv.Itoa(e.Unresolved),
			metaURL:          e.URL,
		},
	}
}

// entryFromRecord decodes rec. A record without a parseable cache date or
// without the managed flag set is malformed.
func entryFromRecord(rec Record) (*Entry, error) {
	if rec.Metadata == nil {
		return nil, fmt.Errorf("%w: no metadata", ErrMalformedEntry)
	}

	date, err := time.Parse(time.RFC3339Nano, rec.Metadata[metaCacheDate])
	if err != nil {
		return nil, fmt.Errorf("%w: cache date: %v", ErrMalformedEntry, err)
	}
	managed, err := strconv.ParseBool(rec.Metadata[metaManaged])
	if err != nil || !managed {
		return nil, fmt.Errorf("%w: not a snapshot entry", ErrMalformedEntry)
	}

	e := &Entry{
		URL:          rec.Metadata[metaURL],
		HTML:         rec.Body,
		MIMEType:     rec.Metadata[metaMIMEType],
		TextEncoding: rec.Metadata[metaTextEncoding],
		CacheDate:    date,
		Managed:      true,
	}
	if e.MIMEType == "" {
		e.MIMEType = MIMETypeHTML
	}
	if e.TextEncoding == "" {
		e.TextEncoding = EncodingUTF8
	}
	e.Partial, _ = strconv.ParseBool(rec.Metadata[metaPartial])
	e.Unresolved, _ = strconv.Atoi(rec.Metadata[metaUnresolved])
	return e, nil
}
