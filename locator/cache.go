package locator

import "github.com/jmrcs97/FlowCapture-sub000/dom"

// cache memoizes resolution results per node identity. It holds no
// reference to the node itself: entries whose node left the document are
// dropped on lookup and by a periodic sweep.
type cache struct {
	tree       dom.Tree
	entries    map[dom.Node]*cacheEntry
	ops        int
	sweepEvery int
}

type cacheEntry struct {
	primary    *Locator
	candidates *Candidates
}

func newCache(tree dom.Tree, sweepEvery int) *cache {
	return &cache{
		tree:       tree,
		entries:    make(map[dom.Node]*cacheEntry),
		sweepEvery: sweepEvery,
	}
}

func (c *cache) get(n dom.Node) *cacheEntry {
	c.tick()
	e, ok := c.entries[n]
	if !ok {
		return nil
	}
	if !c.tree.IsAttached(n) {
		delete(c.entries, n)
		return nil
	}
	return e
}

func (c *cache) entry(n dom.Node) *cacheEntry {
	e, ok := c.entries[n]
	if !ok {
		e = &cacheEntry{}
		c.entries[n] = e
	}
	return e
}

func (c *cache) tick() {
	c.ops++
	if c.sweepEvery > 0 && c.ops%c.sweepEvery == 0 {
		c.sweep()
	}
}

// sweep evicts every entry whose node is no longer attached.
func (c *cache) sweep() int {
	evicted := 0
	for n := range c.entries {
		if !c.tree.IsAttached(n) {
			delete(c.entries, n)
			evicted++
		}
	}
	return evicted
}

func (c *cache) clear() {
	clear(c.entries)
	c.ops = 0
}

func (c *cache) len() int { return len(c.entries) }
