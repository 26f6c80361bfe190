// Package live implements the real-time subscription layer of the gateway.
//
// A client opens a persistent connection and becomes a Session. Each inbound
// JSON frame names a handler (init, query, all, get, watch, stop) and a
// resource; the Dispatcher resolves the resource in an immutable Registry
// and calls the matching Resource operation.
//
// Two resource families exist:
//   - CollectionResource serves a store collection: ad hoc queries plus
//     parameter-bound watches with optional backfill of missed changes.
//   - BusResource serves the internal pub/sub bus: watch and stop only.
//
// Every watch produces a Watcher owned by exactly one Session. Feed callbacks
// push events onto the watcher's queue; a pump goroutine replays backfill
// first and then drains the queue, so backfilled and live events for the
// same key never interleave. Watchers are grouped under a structural hash of
// their parameters, which is what stop uses to find them again.
//
// Session teardown (transport close, transport error or a failed send)
// disposes every watcher the session owns.
package live
