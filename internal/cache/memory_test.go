package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryTierEvictsSmallestTimestamp(t *testing.T) {
	base := time.Unix(1000, 0)
	tier := newMemoryTier(2)

	_, evicted := tier.put("a", memEntry{ts: base})
	assert.False(t, evicted)
	tier.put("b", memEntry{ts: base.Add(time.Second)})

	key, evicted := tier.put("c", memEntry{ts: base.Add(2 * time.Second)})
	assert.True(t, evicted)
	assert.Equal(t, "a", key)
	assert.ElementsMatch(t, []string{"b", "c"}, tier.keys())
}

func TestMemoryTierReplaceNeverEvicts(t *testing.T) {
	base := time.Unix(1000, 0)
	tier := newMemoryTier(2)
	tier.put("a", memEntry{ts: base})
	tier.put("b", memEntry{ts: base.Add(time.Second)})

	_, evicted := tier.put("a", memEntry{ts: base.Add(5 * time.Second)})
	assert.False(t, evicted)
	assert.Equal(t, 2, tier.len())
}

func TestMemoryTierTieBreakIsDeterministic(t *testing.T) {
	ts := time.Unix(1000, 0)
	for i := 0; i < 20; i++ {
		tier := newMemoryTier(3)
		tier.put("m", memEntry{ts: ts})
		tier.put("c", memEntry{ts: ts})
		tier.put("x", memEntry{ts: ts})

		key, _ := tier.put("new", memEntry{ts: ts})
		assert.Equal(t, "c", key)
	}
}

func TestMemoryTierRemoveIf(t *testing.T) {
	ts := time.Unix(1000, 0)
	tier := newMemoryTier(10)
	tier.put("qa_1", memEntry{ts: ts})
	tier.put("qa_2", memEntry{ts: ts})
	tier.put("stats", memEntry{ts: ts})

	removed := tier.removeIf(func(k string, _ memEntry) bool { return k != "stats" })
	assert.ElementsMatch(t, []string{"qa_1", "qa_2"}, removed)
	assert.True(t, tier.remove("stats"))
	assert.False(t, tier.remove("stats"))
}
