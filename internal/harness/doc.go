// Package harness runs scripted editing and playback sessions.
//
// A scenario seeds a timeline, sends intents, advances a manual clock, and
// asserts on the resulting event trace and final state. Runs are
// deterministic: clip IDs come from a sequence generator (c-1, c-2, ...),
// simulated media keeps time with the manual clock, and all dispatch happens
// on the calling goroutine. Traces can therefore be compared against golden
// files.
//
// # Scenario Format
//
//	name: delete_while_playing
//	description: "Deleting the active clip restarts at the same time"
//	clips:
//	  - kind: image
//	    source: a.png
//	    duration: 2
//	playback:
//	  end_policy: stop
//	  tick_interval: 100ms
//	steps:
//	  - intent: playback.play
//	  - advance: 500ms
//	  - intent: clip.delete
//	    data: { id: c-1 }
//	    expect: { case: ok }
//	assertions:
//	  - type: trace_order
//	    events: [clip.delete, timeline.changed, clip.removed]
//	  - type: final_state
//	    expect: { state: stopped }
//
// A scenario may name a project file instead of listing clips inline.
//
// # Assertion Types
//
//   - trace_contains: an event of the given type whose payload contains data
//   - trace_order: event types occur in the given order
//   - trace_count: an event type occurs exactly count times
//   - final_timeline: version, clips, total_duration and ids of the last snapshot
//   - final_state: fields of the final playback state
//
// Cursor and render-frame events are left out of the trace unless the
// scenario sets high_rate.
package harness
