// Package phases contains the per-host phase drivers: drain, schedule,
// maintenance polling, health and finalize. Each driver audits its
// actions, honors the pass's dry-run flag and cancellation signal, and
// reports failures as typed phase errors.
package phases
