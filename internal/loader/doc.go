// Package loader implements load-with-caching: a cached document is rendered
// without touching the network, anything else is loaded live while a build
// fills the cache for next time.
package loader
