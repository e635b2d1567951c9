package util

// Collection keeps items in insertion order. Lookups by key switch to a map
// once it holds more than a handful of items.
type Collection[K comparable, T interface{ GetKey() K }] struct {
	Items  []T
	m      map[K]T
	Length int
}

const collectionIndexThreshold = 8

func (c *Collection[K, T]) Add(item T) {
	c.Items = append(c.Items, item)
	c.Length++
	if c.m == nil && c.Length <= collectionIndexThreshold {
		return
	}
	if c.m == nil {
		c.m = make(map[K]T, c.Length)
		for _, v := range c.Items {
			c.m[v.GetKey()] = v
		}
		return
	}
	c.m[item.GetKey()] = item
}

func (c *Collection[K, T]) Get(key K) (item T, ok bool) {
	if c.m != nil {
		item, ok = c.m[key]
		return
	}
	for _, item = range c.Items {
		if item.GetKey() == key {
			return item, true
		}
	}
	return
}

// MinBy returns the accepted item with the smallest rank, the earliest one on
// ties. ok is false when no item is accepted.
func (c *Collection[K, T]) MinBy(rank func(T) (int64, bool)) (found T, ok bool) {
	var best int64
	for _, item := range c.Items {
		r, accept := rank(item)
		if accept && (!ok || r < best) {
			found, best, ok = item, r, true
		}
	}
	return
}

func (c *Collection[K, T]) Clear() {
	c.Items = nil
	c.m = nil
	c.Length = 0
}
