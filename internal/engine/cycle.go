package engine

import "context"

// DefaultMaxPublishDepth bounds how deeply publishes may nest.
const DefaultMaxPublishDepth = 32

// Nesting happens when a callback publishes on behalf of the event it is
// handling. A rule that reacts to lamp_state_changed by switching a lamp
// publishes lamp_state_changed again from inside its own callback:
//
//	lamp 1 updated → lamp_state_changed → rule switches lamp 1
//	→ lamp_state_changed → rule switches lamp 1 → ... ← CYCLE
//
// The depth travels in the context.Context of each dispatch chain, so
// publishes from unrelated goroutines never count against each other.
// Once a chain passes the limit the innermost publish fails with a cycle
// error, which unwinds through the callbacks as ordinary handler failures.

type depthKey struct{}

// publishDepth returns how many publishes enclose ctx.
func publishDepth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// nested returns the context callbacks of a publish at depth d run in.
// Cancellation of the publisher's context is not inherited: a callback
// finishes its work even if the request that triggered it went away.
func nested(ctx context.Context, d int) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), depthKey{}, d+1)
}

func maxDepth(n int) int {
	if n <= 0 {
		return DefaultMaxPublishDepth
	}
	return n
}
