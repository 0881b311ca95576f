// Package queue implements the Input Queue: a sorted sequence of dump
// descriptors awaiting read, dequeued in contiguous same-filetype,
// same-filetime processing batches.
package queue

import (
	"container/list"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/caida/bgpstream-go/internal/dump"
)

// Queue is the sorted, deduplicated sequence of pending descriptors. Queue
// is not safe for concurrent use; it is owned exclusively by the pipeline,
// per the core's single-threaded concurrency model.
type Queue struct {
	items *list.List // element type: dump.Descriptor
	seen  map[uint64]struct{}
}

// dedupKey hashes (filetime, uri) down to a fixed-size key so the seen-set
// doesn't retain a full copy of every queued URI string.
func dedupKey(filetime uint32, uri string) uint64 {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], filetime)
	h := xxhash.New()
	h.Write(buf[:])
	h.WriteString(uri)
	return h.Sum64()
}

// New returns an empty Input Queue.
func New() *Queue {
	return &Queue{
		items: list.New(),
		seen:  make(map[uint64]struct{}),
	}
}

// Push inserts d in sorted position: ascending filetime, RIB before Updates
// at equal filetime. Pushing a descriptor whose (filetime, uri) duplicates
// one already queued is a silent no-op, per the queue's dedup invariant.
func (q *Queue) Push(d dump.Descriptor) {
	key := dedupKey(d.Filetime, d.URI)
	if _, dup := q.seen[key]; dup {
		return
	}

	var insertBefore *list.Element
	for e := q.items.Front(); e != nil; e = e.Next() {
		existing := e.Value.(dump.Descriptor)
		if d.Precedes(existing) {
			insertBefore = e
			break
		}
	}

	if insertBefore != nil {
		q.items.InsertBefore(d, insertBefore)
	} else {
		q.items.PushBack(d)
	}
	q.seen[key] = struct{}{}
}

// PopBatch removes and returns the longest contiguous prefix of descriptors
// sharing the head's (filetime, record_type). Returns nil if the queue is
// empty.
func (q *Queue) PopBatch() []dump.Descriptor {
	front := q.items.Front()
	if front == nil {
		return nil
	}
	head := front.Value.(dump.Descriptor)

	var batch []dump.Descriptor
	e := front
	for e != nil {
		d := e.Value.(dump.Descriptor)
		if !d.SameBatch(head) {
			break
		}
		batch = append(batch, d)
		next := e.Next()
		q.items.Remove(e)
		delete(q.seen, dedupKey(d.Filetime, d.URI))
		e = next
	}
	return batch
}

// IsEmpty reports whether the queue holds no descriptors.
func (q *Queue) IsEmpty() bool {
	return q.items.Len() == 0
}

// Len returns the number of queued descriptors, for metrics/observability.
func (q *Queue) Len() int {
	return q.items.Len()
}
