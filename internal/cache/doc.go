// Package cache implements a two-tier key/value cache for expensive results
// such as LLM answers and dataset statistics.
//
// The memory tier is a bounded hot set guarded by the manager's mutex. The
// persistent tier keeps one JSON file per key (<key>.json holding
// {"timestamp", "value"}) on a storage.FileProvider and is the source of truth
// across restarts. Every key held in memory is also persisted with an equal or
// newer timestamp.
//
// Entries expire once now - timestamp >= max age. Expiry is lazy on Get and
// eager on SweepExpired, which also runs when a Manager is created. When the
// memory tier is full, inserting a new key evicts the entry with the smallest
// timestamp; promotion from disk keeps the persisted timestamp.
//
// Values are stored as JSON. Get returns a fresh decoded copy (objects as
// map[string]any, numbers as float64); GetInto decodes into a typed target.
package cache
