// Package event implements the process-wide intent and result router.
//
// The router is the single point of dispatch between producers of intent
// (CLI, HTTP, project watcher, scenario harness) and consumers of state
// changes (scheduler, renderer, journal).
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Intents and posted callbacks are queued from any goroutine and executed in
// order on the one goroutine that calls Router.Run. Timer callbacks from the
// playback scheduler reach the loop through Router.Post, so every mutation of
// timeline and playback state happens on that goroutine.
//
// Loop Prevention:
//   - Internal events (results) are delivered directly to subscribers and
//     are never accepted by Enqueue.
//   - External events (intents) are marked Processed before delivery. An
//     External event that arrives already processed is dropped, so a
//     subscriber that re-emits what it was handed cannot create a cycle.
//   - Nested emission deeper than MaxDepth is refused with a
//     CascadeDepthError.
//
// Ordering:
// Every delivered event is stamped with a strictly increasing Seq from the
// router's logical clock. Subscribers are called in subscription order.
package event
