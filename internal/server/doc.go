// Package server wires snapcache together.
//
// Server Lifecycle:
//  1. Load configuration from defaults, an optional YAML file and the environment
//  2. Initialize logger, metrics registry and tracer
//  3. Open the cache store (memory or SQLite)
//  4. Build the fetcher, inlining engine and build manager
//  5. Setup HTTP routes and middleware
//  6. Start HTTP server
//  7. Graceful shutdown: drain requests, cancel builds, close the store
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
