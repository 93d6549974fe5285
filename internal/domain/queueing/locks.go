package queueing

import (
	"sync"

	"github.com/google/uuid"
)

// lockRegistry hands out one mutex per queue so position shifts are
// serialized per queue without a global lock.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (r *lockRegistry) get(id uuid.UUID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// lock acquires the queue's mutex and returns its unlock func.
func (r *lockRegistry) lock(id uuid.UUID) func() {
	l := r.get(id)
	l.Lock()
	return l.Unlock
}

// lockPair acquires two queue mutexes in ID order so concurrent
// cross-queue moves cannot deadlock.
func (r *lockRegistry) lockPair(a, b uuid.UUID) func() {
	if a == b {
		return r.lock(a)
	}
	first, second := a, b
	if b.String() < a.String() {
		first, second = b, a
	}
	fl, sl := r.get(first), r.get(second)
	fl.Lock()
	sl.Lock()
	return func() {
		sl.Unlock()
		fl.Unlock()
	}
}
