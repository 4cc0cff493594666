// Package http exposes snapcache over HTTP with gin.
//
// Routes:
//
//	GET    /page?url=&ignore_cache=&rebuild=  cached snapshot or live page
//	GET    /builds                            tracked builds
//	POST   /builds                            schedule a build
//	GET    /builds/:id                        build status
//	DELETE /builds/:id                        cancel a build
//	GET    /cache?url=                        snapshot metadata
//	DELETE /cache?url=                        evict a snapshot
//	GET    /health, /metrics
//
// /page answers with X-Snapshot-Cache (hit or miss) and, when a build was
// scheduled, X-Snapshot-Build carrying its ID.
package http
