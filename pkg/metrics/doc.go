// Package metrics exposes Prometheus collectors for orchestrator passes
package metrics
