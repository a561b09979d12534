package session

import "sync/atomic"

// Allocator hands out per-Hub monotonic session ids, backing the
// `edge.allocateSessionId` RPC (§4.14). Session 0 is never issued so
// it can be used as a "no session" sentinel in wire messages.
type Allocator struct {
	next uint32
}

// NewAllocator builds an Allocator starting from 1.
func NewAllocator() *Allocator {
	return &Allocator{next: 0}
}

// Next returns the next unused session id.
func (a *Allocator) Next() uint32 {
	return atomic.AddUint32(&a.next, 1)
}
