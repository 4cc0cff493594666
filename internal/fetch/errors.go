package fetch

import (
	"fmt"
)

// FetchError reports a transport failure, a non-200 status or an empty body.
type FetchError struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("fetch %s: HTTP %d: %s", e.URL, e.StatusCode, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// EncodingError reports bytes that cannot be decoded with the negotiated
// charset, or a charset name that maps to no known encoding.
type EncodingError struct {
	URL     string
	Charset string
	Err     error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("decode %s as %q: %v", e.URL, e.Charset, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
