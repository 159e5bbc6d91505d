package memory

import (
	"github.com/google/btree"
)

// degree is the B-tree node degree.
const degree = 16

type entry struct {
	key   string
	value string
}

func lessEntry(a, b entry) bool {
	return a.key < b.key
}

// Size returns the accounted size of a key/value pair.
func Size(key, value string) int64 {
	return int64(len(key) + len(value))
}

// Cache is an ordered map with incremental byte accounting.
type Cache struct {
	tree  *btree.BTreeG[entry]
	bytes int64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{tree: btree.NewG[entry](degree, lessEntry)}
}

// Get returns the value stored under key.
func (c *Cache) Get(key string) (string, bool) {
	e, ok := c.tree.Get(entry{key: key})
	return e.value, ok
}

// Has reports whether key is resident.
func (c *Cache) Has(key string) bool {
	return c.tree.Has(entry{key: key})
}

// Set stores key=value and adjusts the byte count.
func (c *Cache) Set(key, value string) {
	if old, ok := c.tree.ReplaceOrInsert(entry{key: key, value: value}); ok {
		c.bytes -= Size(old.key, old.value)
	}
	c.bytes += Size(key, value)
}

// Delete removes key and returns its previous value.
func (c *Cache) Delete(key string) (string, bool) {
	old, ok := c.tree.Delete(entry{key: key})
	if !ok {
		return "", false
	}
	c.bytes -= Size(old.key, old.value)
	return old.value, true
}

// Bytes returns the accounted size of all resident entries.
func (c *Cache) Bytes() int64 {
	return c.bytes
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	return c.tree.Len()
}

// Ascend calls fn for each entry in key order until fn returns false.
func (c *Cache) Ascend(fn func(key, value string) bool) {
	c.tree.Ascend(func(e entry) bool {
		return fn(e.key, e.value)
	})
}

// Clone returns an independent copy. The underlying tree is shared
// copy-on-write, so later mutations of either cache never show in the other.
func (c *Cache) Clone() *Cache {
	return &Cache{
		tree:  c.tree.Clone(),
		bytes: c.bytes,
	}
}
