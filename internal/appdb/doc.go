// Package appdb provides a SQLite-backed application database that
// implements appinfo.Database.
//
// Every write made through a DB is followed by the matching change event
// (Added, Updated with only the changed properties, Deleted). Changes made
// by other processes are picked up by Rescan, which a Watcher triggers when
// the database files change on disk.
//
// # Event Ordering
//
// Writes and event emission share one mutex, so listeners observe events
// in commit order. Listeners are called with that mutex held and must not
// call back into the DB synchronously.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package appdb
