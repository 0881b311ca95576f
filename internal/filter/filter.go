// Package filter implements the immutable, append-only Filter Set consulted
// by every other stage of the pipeline.
package filter

import "github.com/caida/bgpstream-go/internal/dump"

// Kind identifies which per-descriptor field a Filter predicate constrains.
type Kind int

const (
	KindProject Kind = iota
	KindCollector
	KindRecordType
)

// ribSlackSeconds and updatesSlackSeconds widen TimeInterval.begin to absorb
// the gap between a dump's nominal filetime and the entries it contains.
const (
	ribSlackSeconds     = 1020
	updatesSlackSeconds = 120
)

// Interval is a closed time window, in epoch seconds. Forever is set
// when the interval has no upper bound.
type Interval struct {
	Begin uint32
	End   uint32 // 0 means "forever" when Forever is true
	Forever bool
}

// Set is the conjunction of all registered per-kind predicates plus all
// registered time intervals. An empty predicate (no values registered for
// a kind) is vacuously true. Set is safe to read concurrently once
// construction (Add/AddInterval) has stopped; it performs no mutation of
// shared state on Matches.
type Set struct {
	projects   map[string]struct{}
	collectors map[string]struct{}
	types      map[dump.RecordType]struct{}
	intervals  []Interval
}

// New returns an empty Filter Set: every descriptor matches until filters
// are added.
func New() *Set {
	return &Set{
		projects:   make(map[string]struct{}),
		collectors: make(map[string]struct{}),
		types:      make(map[dump.RecordType]struct{}),
	}
}

// Add registers one value for the given predicate kind.
func (s *Set) Add(kind Kind, value string) error {
	switch kind {
	case KindProject:
		s.projects[value] = struct{}{}
	case KindCollector:
		s.collectors[value] = struct{}{}
	case KindRecordType:
		rt, err := dump.ParseRecordType(value)
		if err != nil {
			return err
		}
		s.types[rt] = struct{}{}
	default:
		return errUnknownKind
	}
	return nil
}

// AddInterval registers a time interval. end == 0 with forever == true means
// unbounded.
func (s *Set) AddInterval(begin, end uint32, forever bool) {
	s.intervals = append(s.intervals, Interval{Begin: begin, End: end, Forever: forever})
}

// Matches is pure and has no side effects: it is the conjunction of every
// per-kind predicate (each a disjunction over its registered values) and,
// if any intervals are registered, a disjunction over the intervals
// widened by the record-type-specific slack.
func (s *Set) Matches(d dump.Descriptor) bool {
	if !matchesSet(s.projects, d.Project) {
		return false
	}
	if !matchesSet(s.collectors, d.Collector) {
		return false
	}
	if !matchesRecordType(s.types, d.RecordType) {
		return false
	}
	return s.matchesIntervals(d)
}

func matchesSet(values map[string]struct{}, v string) bool {
	if len(values) == 0 {
		return true
	}
	_, ok := values[v]
	return ok
}

func matchesRecordType(values map[dump.RecordType]struct{}, rt dump.RecordType) bool {
	if len(values) == 0 {
		return true
	}
	_, ok := values[rt]
	return ok
}

func (s *Set) matchesIntervals(d dump.Descriptor) bool {
	if len(s.intervals) == 0 {
		return true
	}
	slack := uint32(updatesSlackSeconds)
	if d.RecordType == dump.RIB {
		slack = ribSlackSeconds
	}
	for _, iv := range s.intervals {
		begin := iv.Begin
		if begin > slack {
			begin -= slack
		} else {
			begin = 0
		}
		if d.Filetime < begin {
			continue
		}
		if iv.Forever || d.Filetime <= iv.End {
			return true
		}
	}
	return false
}

// MatchesTime reports whether a raw entry timestamp falls within any
// registered interval, with no slack applied. This is the entry-level time
// check used by fill_lookahead, distinct from the file-level, slack-widened
// Matches check used against descriptor.filetime.
func (s *Set) MatchesTime(ts uint32) bool {
	if len(s.intervals) == 0 {
		return true
	}
	for _, iv := range s.intervals {
		if ts < iv.Begin {
			continue
		}
		if iv.Forever || ts <= iv.End {
			return true
		}
	}
	return false
}

type filterError string

func (e filterError) Error() string { return string(e) }

const errUnknownKind = filterError("filter: unknown predicate kind")
