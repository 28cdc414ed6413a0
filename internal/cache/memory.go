package cache

import "time"

type memEntry struct {
	ts  time.Time
	raw []byte
}

// memoryTier is the bounded hot set. It is not safe for concurrent use; the
// Manager holds its mutex around every call.
type memoryTier struct {
	capacity int
	entries  map[string]memEntry
}

func newMemoryTier(capacity int) *memoryTier {
	return &memoryTier{capacity: capacity, entries: make(map[string]memEntry, capacity)}
}

// put stores e under key. Inserting a new key into a full tier first evicts the
// entry with the smallest timestamp (ties broken by smallest key) and returns
// its key. Replacing an existing key never evicts.
func (t *memoryTier) put(key string, e memEntry) (evicted string, ok bool) {
	if _, exists := t.entries[key]; !exists && len(t.entries) >= t.capacity {
		evicted, ok = t.oldest()
		if ok {
			delete(t.entries, evicted)
		}
	}
	t.entries[key] = e
	return evicted, ok
}

func (t *memoryTier) oldest() (string, bool) {
	var (
		key   string
		ts    time.Time
		found bool
	)
	for k, e := range t.entries {
		if !found || e.ts.Before(ts) || (e.ts.Equal(ts) && k < key) {
			key, ts, found = k, e.ts, true
		}
	}
	return key, found
}

func (t *memoryTier) get(key string) (memEntry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

func (t *memoryTier) remove(key string) bool {
	_, ok := t.entries[key]
	delete(t.entries, key)
	return ok
}

// removeIf deletes every entry matching fn and returns their keys.
func (t *memoryTier) removeIf(fn func(key string, e memEntry) bool) []string {
	var removed []string
	for k, e := range t.entries {
		if fn(k, e) {
			delete(t.entries, k)
			removed = append(removed, k)
		}
	}
	return removed
}

func (t *memoryTier) len() int { return len(t.entries) }

func (t *memoryTier) keys() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return keys
}
