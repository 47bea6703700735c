// Package engine implements the application sync worker.
//
// The worker is the only writer to the application cache. It receives change
// events from the backing application database and mutation requests from
// the manager, and processes them one at a time on a single goroutine.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Database callbacks and manager requests are both turned into Events and
// enqueued on an unbounded FIFO queue. Worker.Run dequeues them in arrival
// order and processes each one to completion before taking the next:
//
//  1. Translate: fetch and convert backing properties into records
//     (outside the cache lock; the worker is the only writer so nothing
//     can race the lookup)
//  2. Apply: mutate the cache and rebuild favorites under one lock
//  3. Notify: publish record notifications, then FavoritesChanged
//
// Events are never coalesced or reordered.
//
// Requests Are Not Optimistic:
// Pin, reorder, top and launch requests only call the backing database.
// The cache changes when the database echoes an Updated event, through the
// same translation path as any other change.
//
// Empty Input:
// A handler given an empty batch, or a batch that changes nothing, returns
// without publishing anything.
package engine
