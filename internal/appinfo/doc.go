// Package appinfo holds the vocabulary shared between the application cache
// and the backing application database.
//
// This package contains types only: backing database property identifiers,
// the typed values those properties carry, the cached application Record,
// and the Database/Listener contracts that connect the two sides. Every other
// internal package imports appinfo; appinfo imports nothing internal.
//
// Key constraints:
//   - A record's identifier is its desktop file path and never changes
//   - Property values are either String or Int, never floats
//   - Records are plain values; copying one never aliases cache storage
package appinfo
