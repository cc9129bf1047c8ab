// Package engine implements the autodomum event loop.
//
// The engine owns the shared Context, a registry of callbacks keyed by event
// Kind, and a time-ordered queue of delayed events.
//
// Loop:
// Run drives a single goroutine. Each tick it
//  1. recomputes the Context (hour, minute, holiday, next sunrise/sunset,
//     daylight) and publishes Sunrise or Sunset when daylight flips
//  2. waits up to the poll timeout (default one second) for the earliest
//     delayed event to become due, and publishes it
//
// Startup is published after the first recompute. Shutdown is published when
// the context passed to Run is cancelled. A panic outside a callback ends the
// loop with a LOOP_FATAL error and no Shutdown.
//
// Dispatch:
// Publish calls every callback registered for the event's exact Kind, in
// registration order, on the calling goroutine. Callbacks that fail or panic
// are logged and skipped. Registration is copy-on-write, so a publish in
// progress iterates a stable snapshot.
//
// Each callback's Context carries its dispatch (Context.Dispatch). Publishing
// with it through PublishContext nests the new publish under the current one;
// chains nested deeper than the limit fail with a CYCLE error. Depth is per
// chain, so concurrent publishers never affect each other.
//
// Callbacks should not start goroutines that touch the Context's time fields;
// only the attribute bag is safe for concurrent writes.
package engine
