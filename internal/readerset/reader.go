package readerset

import (
	"github.com/caida/bgpstream-go/internal/dump"
	"github.com/caida/bgpstream-go/internal/mrt"
)

// Reader is one open file: a parser handle plus a one-entry lookahead
// buffer (§3). It is never shared between two containers — it lives in
// the heap, or nowhere during the in-transit window of next_record.
type Reader struct {
	descriptor dump.Descriptor
	parser     mrt.EntryReader

	status    Status
	lookahead *mrt.Entry // set while Live; timestamp-only key while a Corrupted reader awaits its terminal record

	successfulReads int // entries the parser handed back, match or not
	validReads      int // entries that passed the time filter
	emittedAny      bool

	seq int // insertion order, for FIFO tie-breaking in the heap
}

// Descriptor returns the dump descriptor this reader was opened from.
func (r *Reader) Descriptor() dump.Descriptor { return r.descriptor }

// Status returns the reader's current state.
func (r *Reader) Status() Status { return r.status }

// LookaheadTimestamp returns the heap key: the lookahead entry's timestamp.
// Only valid while Status() == Live.
func (r *Reader) LookaheadTimestamp() uint32 { return r.lookahead.Timestamp }
