package engine

import "sort"

// Locator addresses a Set record's byte span within generation file Gen.
// Only Set records are ever located; Remove records exist solely to
// neutralize prior Sets and are never read back.
type Locator struct {
	Gen    uint64
	Offset int64
	Len    int64
}

// index is the in-memory key -> Locator map. It keeps a plain Go map for
// O(1) lookups and derives a sorted key order on demand for compaction, so
// iteration is deterministic within a single pass without paying map-sort
// cost on every Set/Get.
type index struct {
	entries map[string]Locator
}

func newIndex() *index {
	return &index{entries: make(map[string]Locator)}
}

func (ix *index) get(key string) (Locator, bool) {
	loc, ok := ix.entries[key]
	return loc, ok
}

// set installs key -> loc, returning the displaced locator if one existed.
func (ix *index) set(key string, loc Locator) (Locator, bool) {
	old, existed := ix.entries[key]
	ix.entries[key] = loc
	return old, existed
}

// remove deletes key, returning the locator it held if present.
func (ix *index) remove(key string) (Locator, bool) {
	old, existed := ix.entries[key]
	if existed {
		delete(ix.entries, key)
	}
	return old, existed
}

func (ix *index) len() int {
	return len(ix.entries)
}

// sortedKeys returns every key in ascending order, giving compaction a
// stable, deterministic iteration order for a single pass.
func (ix *index) sortedKeys() []string {
	keys := make([]string, 0, len(ix.entries))
	for k := range ix.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
