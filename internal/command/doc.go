// Package command turns a raw byte stream into relayed broker messages.
//
// Bytes enter through Pipeline.InputByte from the input source's goroutine
// and land in a lock-free ring (package ringbuf). A single consumer goroutine
// drains the ring through a Parser, which splits lines on the terminator
// ('\r' by default). Each non-empty line is published verbatim to the
// outbound topic.
//
//	input source -> InputByte -> ring -> Drain -> Parser -> Publish(to, line, 0, false)
//
// The parser never blocks the producer: a full ring drops the new byte, a
// full line drops the extra bytes, and both are counted in Stats.
package command
