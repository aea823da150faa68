package par

import "sync"

// Cache runs an action once per key and caches the result.
// Callers asking for a key whose action is in flight wait for it.
// Actions for different keys run independently.
type Cache[K comparable, V any] struct {
	m sync.Map
}

type cacheEntry[V any] struct {
	done   chan struct{}
	result V
}

// Do calls the function f if and only if Do is being called for the first
// time with this key. No call to Do with a given key returns until the one
// call to f returns. Do returns the value returned by the one call to f.
func (c *Cache[K, V]) Do(key K, f func() V) V {
	e := &cacheEntry[V]{done: make(chan struct{})}
	actual, loaded := c.m.LoadOrStore(key, e)
	entry := actual.(*cacheEntry[V])
	if loaded {
		<-entry.done
		return entry.result
	}
	defer close(entry.done)
	entry.result = f()
	return entry.result
}

// Get returns the cached result associated with key
// and reports whether there is such a result.
//
// If the result for key is being computed, Get does not wait for the
// computation to finish.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	actual, ok := c.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	e := actual.(*cacheEntry[V])
	select {
	case <-e.done:
		return e.result, true
	default:
		var zero V
		return zero, false
	}
}

// Store populates key with v unless the key already has an entry, and
// reports whether v was stored. Entries are never replaced.
func (c *Cache[K, V]) Store(key K, v V) bool {
	e := &cacheEntry[V]{done: make(chan struct{}), result: v}
	close(e.done)
	_, loaded := c.m.LoadOrStore(key, e)
	return !loaded
}

// Range calls f for every completed entry, in no particular order.
func (c *Cache[K, V]) Range(f func(key K, v V)) {
	c.m.Range(func(k, actual any) bool {
		e := actual.(*cacheEntry[V])
		select {
		case <-e.done:
			f(k.(K), e.result)
		default:
		}
		return true
	})
}
