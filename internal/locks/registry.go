// Package locks hands out one mutual-exclusion lock per account identifier.
package locks

import "sync"

// Registry maps account ids to locks. The same *sync.Mutex is returned for
// the same id across calls; registry mutation is serialized by a
// registry-wide mutex so two concurrent first-accesses of a new account
// cannot create two distinct locks.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*sync.Mutex)}
}

// For returns the lock for the given account id, creating it on first use.
func (r *Registry) For(accountID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[accountID] = lock
	}
	return lock
}

// LockPair acquires the locks for two accounts in lexicographic id order,
// so two transfers targeting each other's accounts cannot deadlock.
// The returned func releases both.
func (r *Registry) LockPair(a, b string) func() {
	first, second := a, b
	if second < first {
		first, second = second, first
	}

	fl, sl := r.For(first), r.For(second)
	fl.Lock()
	if sl != fl {
		sl.Lock()
	}
	return func() {
		if sl != fl {
			sl.Unlock()
		}
		fl.Unlock()
	}
}
