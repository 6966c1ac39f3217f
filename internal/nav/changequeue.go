package nav

import (
	"sync/atomic"
)

// cacheLineSize is the typical CPU cache line size (64 bytes on x86-64).
const cacheLineSize = 64

type padding [cacheLineSize]byte

type changeSlot struct {
	seq    atomic.Uint64
	change CostChange
}

// ChangeQueue is a bounded lock-free ring buffer of CostChange values.
// Any number of producers may Publish; exactly one consumer drains.
//
// When the ring is full the change is dropped and the overflow flag is
// latched, so the consumer can fall back to treating every field as stale.
//
// Memory layout: [pad][head][pad][tail][pad][slots...]
type ChangeQueue struct {
	_     padding
	head  atomic.Uint64 // next slot to claim (producers)
	_     padding
	tail  atomic.Uint64 // next slot to read (consumer)
	_     padding
	mask  uint64
	slots []changeSlot

	dropped  atomic.Uint64
	overflow atomic.Bool
}

// NewChangeQueue creates a queue; capacity is rounded up to a power of 2.
func NewChangeQueue(capacity int) *ChangeQueue {
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &ChangeQueue{
		mask:  uint64(size - 1),
		slots: make([]changeSlot, size),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// Publish implements ChangeSink. It never blocks.
func (q *ChangeQueue) Publish(c CostChange) {
	if !q.TryPush(c) {
		q.dropped.Add(1)
		q.overflow.Store(true)
	}
}

// TryPush enqueues c, returning false when the ring is full.
func (q *ChangeQueue) TryPush(c CostChange) bool {
	for {
		pos := q.head.Load()
		slot := &q.slots[pos&q.mask]
		seq := slot.seq.Load()

		switch {
		case seq == pos:
			if q.head.CompareAndSwap(pos, pos+1) {
				slot.change = c
				slot.seq.Store(pos + 1)
				return true
			}
		case seq < pos:
			return false // full
		}
		// another producer claimed pos, retry
	}
}

// TryPop dequeues one change. Single consumer only.
func (q *ChangeQueue) TryPop() (CostChange, bool) {
	pos := q.tail.Load()
	slot := &q.slots[pos&q.mask]
	if slot.seq.Load() != pos+1 {
		return CostChange{}, false
	}
	c := slot.change
	slot.change = CostChange{}
	slot.seq.Store(pos + q.mask + 1)
	q.tail.Store(pos + 1)
	return c, true
}

// Drain pops up to maxItems changes.
func (q *ChangeQueue) Drain(maxItems int) []CostChange {
	if maxItems <= 0 {
		return nil
	}
	out := make([]CostChange, 0, min(maxItems, q.Len()))
	for len(out) < maxItems {
		c, ok := q.TryPop()
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}

// TakeOverflow reports and clears the overflow latch.
func (q *ChangeQueue) TakeOverflow() bool {
	return q.overflow.Swap(false)
}

// Dropped returns the total number of changes lost to a full ring.
func (q *ChangeQueue) Dropped() uint64 { return q.dropped.Load() }

// Len returns the approximate number of queued changes.
func (q *ChangeQueue) Len() int {
	head, tail := q.head.Load(), q.tail.Load()
	if head < tail {
		return 0
	}
	return int(head - tail)
}

// Cap returns the ring capacity.
func (q *ChangeQueue) Cap() int { return int(q.mask + 1) }
