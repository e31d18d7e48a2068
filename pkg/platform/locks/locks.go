// Package locks provides per-key mutual exclusion. The onboarding core uses
// it to serialize all mutations for one session so concurrent events cannot
// interleave across a state transition, checklist write, or counter bump.
package locks

import "sync"

// Keyed hands out one mutex per key. Mutexes are never evicted; the key space
// is bounded by active sessions and entries are two words each.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*sync.Mutex)}
}

func (k *Keyed) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// WithLock runs fn while holding the mutex for key.
func (k *Keyed) WithLock(key string, fn func() error) error {
	m := k.get(key)
	m.Lock()
	defer m.Unlock()
	return fn()
}
