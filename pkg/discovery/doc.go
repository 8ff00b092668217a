// Package discovery produces the job set for an orchestrator pass and
// the normalized event rows behind the discover/report commands.
package discovery
