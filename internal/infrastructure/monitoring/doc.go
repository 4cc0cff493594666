/*
Package monitoring provides Prometheus metrics for the snapshot cache.

# Overview

Collectors are registered on an injected registry so tests and embedded
users can run several instances side by side. Every recording method accepts
a nil receiver.

# Metrics

- HTTP requests (count, latency) by route
- Builds by outcome and their duration
- Running builds gauge
- Subresource fetches by kind and outcome
- Cache lookups by result

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	timer := monitoring.NewTimer(metrics)
	// ... build ...
	timer.Stop(monitoring.OutcomeCompleted)
*/
package monitoring
