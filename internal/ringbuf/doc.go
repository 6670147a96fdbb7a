// Package ringbuf is a fixed-capacity single-producer single-consumer byte
// queue.
//
// New returns separate Producer and Consumer handles so ownership of each
// side is explicit. Neither side takes a lock: each index is stored by one
// side only and published with sync/atomic, so a byte written before the
// head store is visible to the consumer after it loads head.
//
// When full, Put rejects the incoming byte and increments a drop counter.
// The oldest data is never overwritten.
package ringbuf
