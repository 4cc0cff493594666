// Package middleware holds the gin middleware shared by the API: CORS and
// per-client rate limiting.
package middleware
