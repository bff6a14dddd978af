package co2kit

// Cache remembers the last raw value that was durably written to the sink,
// one slot per possible metric code. It is owned by a single session; there
// is no locking because only one device session is ever active.
//
// A fresh cache has no entry for any code, so the very first reading for a
// code is always dispatched, including a legitimate raw value of zero.
type Cache struct {
	values [256]uint16
	seen   [256]bool
}

func NewCache() *Cache {
	return &Cache{}
}

// Get returns the last committed raw value for the code. ok is false when
// nothing was ever committed for it.
func (c *Cache) Get(code byte) (raw uint16, ok bool) {
	return c.values[code], c.seen[code]
}

// Commit records raw as the last durably written value for the code. Callers
// must only commit after a sink write confirmed success.
func (c *Cache) Commit(code byte, raw uint16) {
	c.values[code] = raw
	c.seen[code] = true
}

// Changed reports whether raw differs from the last committed value for the
// code, which is the condition for dispatching it to a sink.
func (c *Cache) Changed(code byte, raw uint16) bool {
	last, ok := c.Get(code)
	return !ok || last != raw
}
