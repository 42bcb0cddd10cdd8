package concurrency

import (
	"context"
	"sync"
)

// KeyedLocker serializes work per key. Mutating operations on the same
// document path must not interleave (last-write-wins storage gives no
// protection), while operations on distinct paths proceed in parallel. Lock
// entries are reference counted and removed when the last holder releases,
// so the map does not grow with the number of paths ever seen.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLocker creates an empty locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

// Acquire blocks until the key's lock is held or the context ends.
func (k *KeyedLocker) Acquire(ctx context.Context, key string) error {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.unref(key, l)
		return ctx.Err()
	}
}

// Release frees the key's lock. The lock must be held.
func (k *KeyedLocker) Release(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	k.mu.Unlock()
	if !ok {
		return
	}
	<-l.ch
	k.unref(key, l)
}

// Do runs fn while holding the key's lock.
func (k *KeyedLocker) Do(ctx context.Context, key string, fn func() error) error {
	if err := k.Acquire(ctx, key); err != nil {
		return err
	}
	defer k.Release(key)
	return fn()
}

// ActiveKeys returns the number of keys with live lock entries.
func (k *KeyedLocker) ActiveKeys() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func (k *KeyedLocker) unref(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs <= 0 {
		delete(k.locks, key)
	}
}
