package pipeline

import "sync"

// productLocks is a per-product advisory lock. It serializes pipeline runs
// so two concurrent advance calls cannot both start phases for the same
// product. Entries are reference counted and removed when released.
type productLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newProductLocks() *productLocks {
	return &productLocks{entries: make(map[string]*lockEntry)}
}

// TryAcquire attempts to take the lock for productID without blocking.
// It returns a release func on success, or nil when another run holds it.
func (l *productLocks) TryAcquire(productID string) func() {
	l.mu.Lock()
	e, ok := l.entries[productID]
	if !ok {
		e = &lockEntry{}
		l.entries[productID] = e
	}
	e.refs++
	l.mu.Unlock()

	if !e.mu.TryLock() {
		l.release(productID, e)
		return nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.release(productID, e)
		})
	}
}

func (l *productLocks) release(productID string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, productID)
	}
}
