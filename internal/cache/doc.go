/*
Package cache stores self-contained page snapshots.

Entries are keyed by the request URL with its fragment removed, so
https://example.com/a#top and https://example.com/a share one entry. The
body is kept next to string metadata (cache date, managed flag, MIME type,
encoding, partial flag); a record missing a parseable cache date or the
managed flag is treated as a miss, never as an error.

Two stores are provided: MemoryStore, and SQLiteStore which compresses
bodies with zstd.
*/
package cache
