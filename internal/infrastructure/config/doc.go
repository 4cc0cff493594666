// Package config provides 12-factor configuration management for snapcache.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Fetch: user agent, timeout, retries, rate limit, per-phase concurrency
//   - Cache: backing store selection (memory or sqlite)
//   - Build: worker pool size and rebuild policy
//   - Transform: stock post-processing selectors
//   - Debug: inlined page dump directory
//   - Logging: log level and output format
//   - RateLimit: per-IP API rate limiting
//
// Example Usage:
//
//	cfg, err := config.LoadFile("snapcache.yaml")
//	if err != nil {
//		return err
//	}
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST
//   - USER_AGENT, FETCH_TIMEOUT, FETCH_MAX_RETRIES, FETCH_RATE_LIMIT,
//     FETCH_CONCURRENCY, FETCH_SNIFF_CHARSET
//   - CACHE_BACKEND, CACHE_PATH
//   - BUILD_WORKERS, BUILD_ALWAYS_REBUILD
//   - POSTPROCESS_REMOVE
//   - DEBUG_DUMP_DIR
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_ENABLED, RATE_LIMIT_RPS, RATE_LIMIT_BURST
package config
