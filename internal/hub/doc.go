// Package hub fans events out to the subscribers of named channels.
//
// Each channel keeps its own subscriber set behind its own mutex, so publishing on
// "telemetry" never waits for a subscribe on "actuation". A publish sends to every
// subscriber concurrently with a per-send timeout and returns once all sends have
// finished; subscribers whose send failed are dropped and their connection closed.
// A new subscriber always receives the channel snapshot before any later event.
package hub
