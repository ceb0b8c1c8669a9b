package guda

import (
	"errors"
	"sync"
)

// errBarrierBroken is raised inside threads still waiting on a barrier when
// a sibling thread of the same block faults.
var errBarrierBroken = errors.New("guda: block barrier broken by a faulting thread")

// barrier is a reusable rendezvous point for the threads of one block.
// Each generation releases once every participating thread has arrived.
// A thread that returns from the kernel stops participating, so the
// remaining threads of the block are not left waiting on it.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	arrived int
	gen     uint64
	broken  bool
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until every participating thread has called Wait for the
// current generation. It panics with errBarrierBroken if the barrier is
// broken while waiting.
func (b *barrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.broken {
		panic(errBarrierBroken)
	}

	gen := b.gen
	b.arrived++
	if b.arrived >= b.parties {
		b.advance()
		return
	}

	for gen == b.gen && !b.broken {
		b.cond.Wait()
	}
	if gen == b.gen {
		panic(errBarrierBroken)
	}
}

// leave removes one thread from the barrier for all later generations.
func (b *barrier) leave() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.parties--
	if b.arrived > 0 && b.arrived >= b.parties {
		b.advance()
	}
}

// breakAll wakes every waiter with errBarrierBroken.
func (b *barrier) breakAll() {
	b.mu.Lock()
	b.broken = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *barrier) advance() {
	b.arrived = 0
	b.gen++
	b.cond.Broadcast()
}
