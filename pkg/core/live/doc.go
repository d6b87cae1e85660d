// Package live implements the live-avatar session: a small state machine
// that simulates a voice conversation with the companion.
//
// # State Machine
//
// A session moves through three states:
//
//	Idle --(toggle, entitled)--> Connecting --(connect delay)--> Speaking --(speaking duration)--> Idle
//	Connecting/Speaking --(toggle | dispose)--> Idle
//
// The Controller owns every resource a session acquires: the media stream,
// the scheduled timers and the visualizer frame subscription. All of them
// are released on every exit path.
//
// # Timers
//
// Timers are created through a Clock so tests can drive time manually.
// Every callback captures the session generation at schedule time and
// does nothing if a start or stop has happened since.
//
// # Visualizer
//
// The Visualizer reads an amplitude distribution from a SampleSource once
// per frame and paints radial bars onto a Surface. At most one frame
// subscription is outstanding at any time.
//
// # Entitlement
//
// Starting a session is gated by a Gate. A denied attempt changes nothing
// and invokes the Upseller exactly once.
package live
