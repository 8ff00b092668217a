package health

import (
	"context"
	"time"
)

// Result is the outcome of a health check.
type Result struct {
	Passed    bool
	Reason    string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the post-maintenance health predicate. Implementations
// must be repeatable, must not mutate external state, and must honor
// the caller's context deadline.
type Checker interface {
	Check(ctx context.Context, hostname string) Result
}

// AlwaysPass is the placeholder checker used until a diagnostic suite
// is wired in.
type AlwaysPass struct{}

// Check reports success unconditionally.
func (AlwaysPass) Check(_ context.Context, _ string) Result {
	now := time.Now()
	return Result{Passed: true, CheckedAt: now}
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, hostname string) Result

func (f CheckerFunc) Check(ctx context.Context, hostname string) Result {
	return f(ctx, hostname)
}
