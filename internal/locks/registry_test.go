package locks_test

import (
	"sync"
	"testing"
	"time"

	"github.com/guildpay/ledger-engine/internal/locks"
)

func TestFor_SameLockForSameID(t *testing.T) {
	r := locks.NewRegistry()

	if r.For("alice") != r.For("alice") {
		t.Error("expected the same lock instance for the same id")
	}
	if r.For("alice") == r.For("bob") {
		t.Error("expected distinct locks for distinct ids")
	}
}

func TestFor_ConcurrentFirstAccessYieldsOneLock(t *testing.T) {
	r := locks.NewRegistry()

	const n = 50
	results := make([]*sync.Mutex, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = r.For("alice")
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent first access must not mint two locks")
		}
	}
}

func TestFor_MutualExclusion(t *testing.T) {
	r := locks.NewRegistry()

	var counter int
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			lock := r.For("alice")
			lock.Lock()
			counter++
			lock.Unlock()
		}()
	}
	wg.Wait()

	if counter != n {
		t.Errorf("expected %d, got %d", n, counter)
	}
}

func TestLockPair_OppositeOrdersDoNotDeadlock(t *testing.T) {
	r := locks.NewRegistry()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		const n = 100
		wg.Add(2 * n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				unlock := r.LockPair("alice", "bob")
				unlock()
			}()
			go func() {
				defer wg.Done()
				unlock := r.LockPair("bob", "alice")
				unlock()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock pairs deadlocked")
	}
}

func TestLockPair_SameIDLocksOnce(t *testing.T) {
	r := locks.NewRegistry()

	unlock := r.LockPair("alice", "alice")
	unlock()

	// The lock must be free again.
	lock := r.For("alice")
	if !lock.TryLock() {
		t.Fatal("lock should be released after unlock")
	}
	lock.Unlock()
}
