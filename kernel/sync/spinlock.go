// Package sync provides synchronization primitives usable before the Go
// runtime's own scheduler exists: a spinlock backed by an atomic swap rather
// than goroutine parking.
package sync

import "sync/atomic"

// Spinlock implements a lock where each caller trying to acquire it
// busy-waits until the lock becomes available. There is exactly one task of
// execution in this bootstrap core (interrupt handlers aside), so the only
// real contention is between an interrupt handler and the code it
// interrupted; Acquire must never be called from code that could itself be
// interrupted by a handler that acquires the same lock, or it deadlocks.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired.
func (l *Spinlock) Acquire() {
	for !l.TryToAcquire() {
		archSpinWait()
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock
// could be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock. Calling Release while the lock is free
// has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// archSpinWait executes a PAUSE instruction, hinting to the CPU that this is
// a spin-wait loop so it can save power and avoid memory-order mis-speculation.
func archSpinWait()
