// Package types contains the core data model shared across felix:
// maintenance events, jobs, lifecycle states, phase outcomes and the
// retry policy record.
package types
