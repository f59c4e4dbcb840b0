// Package guardrails holds cross cutting safety helpers for ingest ticks
package guardrails

import (
	"context"
	"time"
)

// Timeouts is an optional budget bundle for a single tick of work.
// Zero values mean no extra timeout at that level
type Timeouts struct {
	// Tick is the overall time budget for one coordinator pass
	Tick time.Duration

	// Fetch caps one source history fetch
	Fetch time.Duration

	// Embed caps one embed-and-store round trip
	Embed time.Duration
}

// WithTick returns a context limited by the tick budget without extending any parent deadline.
// If Tick is zero it returns a cancelable child that simply inherits the parent deadline
func WithTick(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Tick)
}

// ForFetch returns a sub context for the fetch phase bounded by Fetch and any remaining parent budget
func ForFetch(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Fetch)
}

// ForEmbed returns a sub context for the embed phase bounded by Embed and any remaining parent budget
func ForEmbed(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Embed)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		d := time.Until(dl)
		if d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout chooses the tighter of the requested duration and any parent remainder.
// Never extends the parent deadline.
// When d is zero it returns a simple cancelable child inheriting the parent deadline
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
