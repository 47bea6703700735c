// Package cache holds the in-memory application cache: the Record Store and
// the Favorites projection derived from it.
//
// # Locking
//
// One RWMutex guards both structures together. Writers go through
// Store.Update, which applies a batch of mutations and rebuilds the
// favorites projection inside the same critical section, so a reader can
// never see favorites from a different generation than the records.
// Readers receive copies; nothing handed out aliases cache storage.
//
// The cache does not decide what to write. The sync engine is its only
// writer and owns ingestion filtering and change translation.
package cache
