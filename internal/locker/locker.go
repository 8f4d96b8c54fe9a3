// Package locker provides mutual exclusion keyed by string, used to
// serialize every mutation of the same logical file.
//
// Locks are reentrant per owner. An owner is attached to a context with
// WithOwner; nested WithLock calls on the same key with a context carrying
// the owner that already holds it re-enter instead of deadlocking.
package locker

import (
	"context"
	"fmt"
	"sync"

	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
)

// ErrLockState is returned when unlocking a key that is not held.
var ErrLockState = fserrors.New(fserrors.ErrCodeLockState, "lock is not held", nil)

type owner struct{ _ byte }

type ownerKey struct{}

// WithOwner returns a context carrying a fresh lock owner. Use it when
// handing work to another goroutine so it does not inherit the caller's
// held locks.
func WithOwner(ctx context.Context) context.Context {
	return context.WithValue(ctx, ownerKey{}, &owner{})
}

func ensureOwner(ctx context.Context) (context.Context, *owner) {
	if o, ok := ctx.Value(ownerKey{}).(*owner); ok {
		return ctx, o
	}
	o := &owner{}
	return context.WithValue(ctx, ownerKey{}, o), o
}

type keyLock struct {
	sem   chan struct{}
	owner *owner
	depth int
}

// Locker is a registry of per-key locks. Locks are created on first use
// and kept for the lifetime of the Locker.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

func (l *Locker) get(key string) *keyLock {
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	return kl
}

// Lock acquires key, blocking until it is free or ctx is done. If ctx
// carries the owner already holding key, the hold count is incremented.
func (l *Locker) Lock(ctx context.Context, key string) error {
	o, _ := ctx.Value(ownerKey{}).(*owner)

	l.mu.Lock()
	kl := l.get(key)
	if o != nil && kl.owner == o {
		kl.depth++
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	kl.owner = o
	kl.depth = 1
	l.mu.Unlock()
	return nil
}

// Unlock releases one hold on key. Unlocking an unknown or free key fails
// with ErrLockState.
func (l *Locker) Unlock(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok || kl.depth == 0 {
		return fserrors.New(fserrors.ErrCodeLockState, fmt.Sprintf("unlock of key %s that is not locked", key), nil)
	}
	kl.depth--
	if kl.depth == 0 {
		kl.owner = nil
		<-kl.sem
	}
	return nil
}

// WithLock runs fn while holding key. The lock is released on every exit
// path, including panics. fn receives a context carrying the lock owner so
// nested WithLock calls on the same key re-enter.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (err error) {
	ctx, _ = ensureOwner(ctx)
	if err := l.Lock(ctx, key); err != nil {
		return err
	}
	defer func() {
		if uerr := l.Unlock(key); uerr != nil && err == nil {
			err = uerr
		}
	}()
	return fn(ctx)
}

// Len returns the number of keys ever locked.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
