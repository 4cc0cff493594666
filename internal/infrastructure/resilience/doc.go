/*
Package resilience provides circuit breakers for outbound fetches.

# Overview

A Breaker stops calling an origin that keeps failing and probes it again
after a cool-down. A Group keeps one Breaker per origin so a dead CDN does not
slow down stylesheets served from a healthy host.

# Usage

	group := resilience.NewGroup(resilience.Settings{
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	err := group.Get("https://cdn.example.com").Guard(func() error {
		return fetchOnce()
	})

# States

- Closed: Normal operation, requests pass through
- Open: Origin considered down, requests fail immediately
- Half-Open: Limited probes decide whether to close again

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
