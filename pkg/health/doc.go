// Package health defines the post-maintenance health capability. The
// concrete diagnostic suite is pluggable; the default checker always
// passes.
package health
