// Package orchestrator drives maintenance jobs through the per-host
// state machine on a bounded worker pool. One pass discovers the job
// set, gates each job, and fans the survivors out to workers that own
// their host end-to-end.
package orchestrator
