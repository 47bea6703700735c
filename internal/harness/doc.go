// Package harness runs scripted sync scenarios against the real worker.
//
// A scenario seeds an in-memory backing database, starts a worker over a
// fresh cache, then plays a list of steps: backing database events and
// manager requests. After every step the worker's queue is drained on the
// calling goroutine, so the run is fully deterministic.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: pin_favorite
//	description: "Pinning goes through the database echo"
//	apps:
//	  - id: /usr/share/applications/firefox.desktop
//	    name: Firefox
//	    favorite: 1
//	    props: { Category: Network }
//	steps:
//	  - request: pin
//	    id: /usr/share/applications/gimp.desktop
//	  - event: updated
//	    delta:
//	      /usr/share/applications/gimp.desktop: { Category: Graphics }
//	assertions:
//	  - type: favorites
//	    ids: [/usr/share/applications/firefox.desktop]
//
// App props use backing database property names and overlay the defaults
// of a plain visible application.
//
// # Steps
//
// Events: added (apps), updated (delta), updated_all (ids, optional
// silent delta), deleted (ids), open_failed.
//
// Requests: pin, unpin, reorder (rank), top (rank), launch. Setting echo
// to false on a step stops the database echoing writes from that step on.
//
// # Assertion Types
//
//   - record_count: number of cached records
//   - favorites: exact favorites order
//   - record: subset match on one cached record's fields
//   - absent: a record is not cached
//   - notification_count: notifications of one kind
//   - call_count: database writes of one op
//
// # Trace
//
// The trace lists, per step, the step itself, the database writes it
// caused, then the notifications it produced, with seq values from a
// deterministic clock. RunWithGolden compares the trace and the final
// cache against testdata/golden/<name>.golden.
package harness
