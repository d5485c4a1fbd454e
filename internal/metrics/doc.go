// Package metrics exposes engine counters over a Prometheus registry.
package metrics
