// Package audit implements the append-only JSONL event log. Every phase
// transition and every (attempted) mutating action on an external system
// is recorded as one line. Appends are serialized so lines never
// interleave and the per-host record order is monotonic in time.
package audit
