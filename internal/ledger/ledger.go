// Package ledger tracks recently processed content fingerprints.
//
// The ledger is the correctness mechanism that keeps N peers on one topic
// from republishing each other's content forever: a fingerprint moves from
// unseen to seen exactly once, and both the local-capture path and the
// remote-delivery path consult it before acting. Entries are never explicitly
// removed, but the ledger is bounded — when full, the least recently touched
// fingerprint is evicted. An evicted duplicate being re-applied later is an
// accepted degradation, not a correctness violation.
package ledger

import (
	"container/list"
	"sync"

	"go.klb.dev/copier/internal/content"
)

// Role records how a fingerprint entered the ledger.
type Role string

const (
	RoleSent     Role = "sent"
	RoleReceived Role = "received"
)

// DefaultCapacity bounds the ledger when no explicit capacity is given.
const DefaultCapacity = 1000

type entry struct {
	digest content.Digest
	role   Role
}

// Ledger is a bounded, mutex-protected set of fingerprints with LRU eviction.
type Ledger struct {
	mu    sync.Mutex
	cap   int
	order *list.List // front = most recently touched
	items map[content.Digest]*list.Element
}

// New returns a Ledger holding at most capacity entries. capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		cap:   capacity,
		order: list.New(),
		items: make(map[content.Digest]*list.Element),
	}
}

// Seen reports whether d is in the ledger, refreshing its recency if so.
func (l *Ledger) Seen(d content.Digest) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.items[d]
	if ok {
		l.order.MoveToFront(elem)
	}
	return ok
}

// Remember inserts d with the given role, or refreshes an existing entry.
// Inserting into a full ledger evicts the least recently touched fingerprint.
func (l *Ledger) Remember(d content.Digest, r Role) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.items[d]; ok {
		l.order.MoveToFront(elem)
		elem.Value.(*entry).role = r
		return
	}

	l.items[d] = l.order.PushFront(&entry{digest: d, role: r})

	if l.order.Len() > l.cap {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.items, oldest.Value.(*entry).digest)
	}
}

// RoleOf returns the role d was last seen in, if present.
func (l *Ledger) RoleOf(d content.Digest) (Role, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.items[d]
	if !ok {
		return "", false
	}
	return elem.Value.(*entry).role, true
}

// Len returns the number of remembered fingerprints.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}
