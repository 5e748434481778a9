// Package session manages live model sessions.
//
// A Session snapshots the ModelConfig (enabled declarations plus guidance)
// when it opens and owns a context that acts as its liveness token. Tool
// calls received on a session go through the plugin dispatcher with that
// context, so when the session closes any acknowledgement still waiting on
// its delay is dropped instead of being sent.
//
// Acknowledgement batches are fanned out through an AckBroadcaster to
// whoever is streaming the session's acks (the gateway's SSE endpoint).
package session
