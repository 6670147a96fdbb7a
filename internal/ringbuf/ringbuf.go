package ringbuf

import (
	"sync/atomic"
)

// DefaultCapacity matches the command input buffer of the device firmware.
const DefaultCapacity = 256

// ring is the shared storage. head is written only by the Producer, tail only
// by the Consumer. Both run modulo twice the capacity, so head == tail is
// empty and a distance of exactly capacity is full, without a spare slot.
type ring struct {
	buf     []byte
	head    atomic.Uint32
	tail    atomic.Uint32
	dropped atomic.Uint64
}

// Producer is the write side of a ring. Exactly one goroutine may use it.
type Producer struct {
	r *ring
}

// Consumer is the read side of a ring. Exactly one goroutine may use it.
type Consumer struct {
	r *ring
}

// New allocates a ring of the given capacity and returns its two ends.
// Capacity below 1 is raised to 1.
func New(capacity int) (*Producer, *Consumer) {
	if capacity < 1 {
		capacity = 1
	}
	r := &ring{buf: make([]byte, capacity)}
	return &Producer{r: r}, &Consumer{r: r}
}

// Put appends b. It returns false, and counts the byte as dropped, when the
// ring is full. Existing contents are never overwritten.
func (p *Producer) Put(b byte) bool {
	r := p.r
	head := r.head.Load()
	if r.distance(head, r.tail.Load()) == uint32(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[r.slot(head)] = b
	// The store below publishes the slot write to the consumer.
	r.head.Store(r.advance(head))
	return true
}

// Dropped returns how many bytes Put has rejected.
func (p *Producer) Dropped() uint64 {
	return p.r.dropped.Load()
}

// Get removes and returns the oldest byte. ok is false when the ring is empty.
func (c *Consumer) Get() (b byte, ok bool) {
	r := c.r
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return 0, false
	}
	b = r.buf[r.slot(tail)]
	r.tail.Store(r.advance(tail))
	return b, true
}

// Len returns the number of buffered bytes. From either side it is a
// snapshot that the other side may change immediately.
func (c *Consumer) Len() int {
	return c.r.len()
}

// Len returns the number of buffered bytes.
func (p *Producer) Len() int {
	return p.r.len()
}

// Cap returns the fixed capacity.
func (c *Consumer) Cap() int {
	return len(c.r.buf)
}

// Dropped returns how many bytes the producer has rejected.
func (c *Consumer) Dropped() uint64 {
	return c.r.dropped.Load()
}

func (r *ring) len() int {
	return int(r.distance(r.head.Load(), r.tail.Load()))
}

func (r *ring) slot(i uint32) uint32 {
	if n := uint32(len(r.buf)); i >= n {
		return i - n
	}
	return i
}

func (r *ring) advance(i uint32) uint32 {
	i++
	if i == 2*uint32(len(r.buf)) {
		return 0
	}
	return i
}

func (r *ring) distance(head, tail uint32) uint32 {
	if head >= tail {
		return head - tail
	}
	return head + 2*uint32(len(r.buf)) - tail
}
