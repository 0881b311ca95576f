// Package readerset implements the Reader Set: the k-way merge core that
// turns a processing batch of dump descriptors into a single time-ordered
// sequence of records (§4.4).
package readerset

import (
	"container/heap"
	"context"
	"errors"
	"io"

	"github.com/caida/bgpstream-go/internal/dump"
	"github.com/caida/bgpstream-go/internal/filter"
	"github.com/caida/bgpstream-go/internal/mrt"
	"github.com/caida/bgpstream-go/internal/record"
	"github.com/caida/bgpstream-go/internal/transport"
)

// ParserFactory builds an EntryReader over an already-opened, decompressed
// byte stream. In production this is mrt.NewParser; tests substitute fakes.
type ParserFactory func(r io.Reader) mrt.EntryReader

// Set is the Reader Set. It owns the min-heap of live readers and the
// byte-stream opener + parser factory used to turn descriptors into
// readers. Set is not safe for concurrent use, per the core's
// single-threaded concurrency model (§5).
type Set struct {
	opener  transport.Opener
	newParser ParserFactory
	filters *filter.Set

	h       readerHeap
	nextSeq int

	// openStreams tracks open files so Close can release every parser
	// acquired during absorb, even mid-heap, on every exit path.
	openStreams map[*Reader]io.Closer
}

// New returns an empty Reader Set.
func New(opener transport.Opener, newParser ParserFactory, filters *filter.Set) *Set {
	if newParser == nil {
		newParser = func(r io.Reader) mrt.EntryReader { return mrt.NewParser(r) }
	}
	return &Set{
		opener:      opener,
		newParser:   newParser,
		filters:     filters,
		openStreams: make(map[*Reader]io.Closer),
	}
}

// IsEmpty reports whether the heap currently holds no live readers.
func (s *Set) IsEmpty() bool { return len(s.h) == 0 }

// Len returns the number of live readers in the heap, for observability.
func (s *Set) Len() int { return len(s.h) }

// Absorb turns every descriptor in batch into a Reader: opens its URI
// (delegated to the byte-stream opener) and performs the first
// fill_lookahead. Readers that fail to open, or that terminate on the
// first fill, are returned as synthesized terminal records rather than
// heaped; live readers are pushed into the min-heap. Order of the
// synthesized-records slice follows batch order.
func (s *Set) Absorb(ctx context.Context, batch []dump.Descriptor) []*record.Record {
	var synthesized []*record.Record

	for _, d := range batch {
		r := &Reader{descriptor: d, status: Live, seq: s.nextSeq}
		s.nextSeq++

		stream, err := s.opener.Open(ctx, d.URI)
		if err != nil {
			r.status = OpenFailed
			synthesized = append(synthesized, synthesizeTerminal(r))
			continue
		}

		r.parser = s.newParser(stream)
		s.openStreams[r] = stream

		s.fillLookahead(r)
		if r.status == Live {
			heap.Push(&s.h, r)
		} else {
			s.closeReader(r)
			synthesized = append(synthesized, synthesizeTerminal(r))
		}
	}

	return synthesized
}

// fillLookahead repeatedly pulls raw entries from the reader's parser until
// one passes the filter's entry-level time check, or the parser signals
// exhaust/corruption (§4.4's state table).
func (s *Set) fillLookahead(r *Reader) {
	for {
		entry, err := r.parser.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				switch {
				case r.successfulReads == 0:
					r.status = Empty
				case r.validReads == 0:
					r.status = NoMatch
				default:
					r.status = Exhausted
				}
				return
			}
			r.status = Corrupted
			return
		}

		r.successfulReads++
		if s.filters == nil || s.filters.MatchesTime(entry.Timestamp) {
			r.validReads++
			r.lookahead = entry
			r.status = Live
			return
		}
		// fails filter: stay Live, retry with the next entry
	}
}

// NextRecord implements the merge step (§4.4). It returns nil if the heap
// is empty; the caller must refill from the Input Queue in that case.
func (s *Set) NextRecord() *record.Record {
	if len(s.h) == 0 {
		return nil
	}

	r := heap.Pop(&s.h).(*Reader)
	if r.status == Corrupted {
		s.closeReader(r)
		term := synthesizeTerminal(r)
		term.RawEntry, term.RecordTime = nil, r.lookahead.Timestamp
		return term
	}
	preWasLive := r.status == Live

	rec := &record.Record{
		Descriptor: r.descriptor,
		RawEntry:   r.lookahead,
		RecordTime: r.lookahead.Timestamp,
		DumpTime:   r.descriptor.Filetime,
		Status:     record.Valid,
	}

	if !r.emittedAny {
		rec.DumpPosition = record.Start
		r.emittedAny = true
	} else {
		rec.DumpPosition = record.Middle
	}

	if preWasLive {
		s.fillLookahead(r)
	}

	if r.status == Live {
		heap.Push(&s.h, r)
		return rec
	}
	if r.status == Corrupted {
		// Mid-file framing error (scenario D): rec keeps its own position
		// and Valid status, and r goes back under a timestamp-only key so
		// its next pop yields the file's terminal Corrupted record.
		r.lookahead = &mrt.Entry{Timestamp: rec.RecordTime}
		heap.Push(&s.h, r)
		return rec
	}

	// r is now terminal: this is the last record from the file. Reaching
	// here with Empty/NoMatch is impossible — those only occur on a
	// reader's very first fill_lookahead (during Absorb), and this branch
	// only runs after a record has already been built from a valid
	// lookahead. Only Exhausted (normal EOF) remains.
	rec.DumpPosition = record.End
	s.closeReader(r)
	return rec
}

func (s *Set) closeReader(r *Reader) {
	if stream, ok := s.openStreams[r]; ok {
		stream.Close()
		delete(s.openStreams, r)
	}
}

// Close releases every parser acquired by Absorb, heaped or not. Safe to
// call multiple times.
func (s *Set) Close() error {
	for r := range s.openStreams {
		s.closeReader(r)
	}
	s.h = nil
	return nil
}

func synthesizeTerminal(r *Reader) *record.Record {
	return &record.Record{
		Descriptor:   r.descriptor,
		RawEntry:     r.lookahead,
		DumpPosition: record.End,
		Status:       recordStatusFor(r.status),
		RecordTime:   r.descriptor.Filetime,
		DumpTime:     r.descriptor.Filetime,
	}
}
