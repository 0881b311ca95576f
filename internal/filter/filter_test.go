package filter

import (
	"testing"

	"github.com/caida/bgpstream-go/internal/dump"
)

func TestSet_Matches_EmptyFilterMatchesEverything(t *testing.T) {
	s := New()
	d := dump.Descriptor{Project: "routeviews", Collector: "route-views2", RecordType: dump.RIB, Filetime: 100}
	if !s.Matches(d) {
		t.Error("empty filter set should match any descriptor")
	}
}

func TestSet_Matches_ProjectFilter(t *testing.T) {
	s := New()
	if err := s.Add(KindProject, "routeviews"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	match := dump.Descriptor{Project: "routeviews"}
	noMatch := dump.Descriptor{Project: "ris"}
	if !s.Matches(match) {
		t.Error("expected matching project to match")
	}
	if s.Matches(noMatch) {
		t.Error("expected non-matching project to not match")
	}
}

func TestSet_Matches_RecordTypeFilter(t *testing.T) {
	s := New()
	if err := s.Add(KindRecordType, "rib"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !s.Matches(dump.Descriptor{RecordType: dump.RIB}) {
		t.Error("expected RIB to match")
	}
	if s.Matches(dump.Descriptor{RecordType: dump.Updates}) {
		t.Error("expected Updates to not match")
	}
}

func TestSet_Add_UnknownKind(t *testing.T) {
	s := New()
	if err := s.Add(Kind(99), "x"); err == nil {
		t.Error("expected error for unknown predicate kind")
	}
}

func TestSet_Add_InvalidRecordType(t *testing.T) {
	s := New()
	if err := s.Add(KindRecordType, "bogus"); err == nil {
		t.Error("expected error for invalid record type value")
	}
}

func TestSet_MatchesIntervals_RIBSlackWidensBegin(t *testing.T) {
	s := New()
	s.AddInterval(2000, 3000, false)

	// A RIB dump with filetime 1020s before the interval begin should
	// still match (slack = 1020s for RIB).
	rib := dump.Descriptor{RecordType: dump.RIB, Filetime: 2000 - ribSlackSeconds}
	if !s.Matches(rib) {
		t.Error("expected RIB filetime widened by ribSlackSeconds to match")
	}

	// One second further back should fall outside the widened window.
	tooEarly := dump.Descriptor{RecordType: dump.RIB, Filetime: 2000 - ribSlackSeconds - 1}
	if s.Matches(tooEarly) {
		t.Error("expected filetime beyond the widened window to not match")
	}
}

func TestSet_MatchesIntervals_UpdatesSlackIsNarrower(t *testing.T) {
	s := New()
	s.AddInterval(2000, 3000, false)

	upd := dump.Descriptor{RecordType: dump.Updates, Filetime: 2000 - updatesSlackSeconds}
	if !s.Matches(upd) {
		t.Error("expected Updates filetime widened by updatesSlackSeconds to match")
	}

	// The RIB slack window would have covered this, but Updates shouldn't.
	tooEarly := dump.Descriptor{RecordType: dump.Updates, Filetime: 2000 - updatesSlackSeconds - 1}
	if s.Matches(tooEarly) {
		t.Error("expected Updates filetime beyond its narrower slack window to not match")
	}
}

func TestSet_MatchesIntervals_Forever(t *testing.T) {
	s := New()
	s.AddInterval(2000, 0, true)

	farFuture := dump.Descriptor{RecordType: dump.Updates, Filetime: 1 << 30}
	if !s.Matches(farFuture) {
		t.Error("expected a forever interval to match arbitrarily far in the future")
	}
}

func TestSet_MatchesIntervals_NoIntervalsMatchesEverything(t *testing.T) {
	s := New()
	if !s.Matches(dump.Descriptor{Filetime: 123456}) {
		t.Error("expected no registered intervals to match unconditionally")
	}
}

func TestSet_MatchesTime_NoSlackApplied(t *testing.T) {
	s := New()
	s.AddInterval(2000, 3000, false)

	// Unlike Matches, MatchesTime applies no slack: a timestamp just
	// below begin must not match even though the RIB file-level check
	// would have widened it.
	if s.MatchesTime(2000 - 1) {
		t.Error("expected MatchesTime to apply no slack")
	}
	if !s.MatchesTime(2000) {
		t.Error("expected MatchesTime to match at the interval boundary")
	}
	if !s.MatchesTime(3000) {
		t.Error("expected MatchesTime to match at the closed upper boundary")
	}
	if s.MatchesTime(3001) {
		t.Error("expected MatchesTime to not match past the upper boundary")
	}
}

func TestSet_Matches_ConjunctionAcrossKinds(t *testing.T) {
	s := New()
	s.Add(KindProject, "routeviews")
	s.Add(KindCollector, "route-views2")

	full := dump.Descriptor{Project: "routeviews", Collector: "route-views2"}
	wrongCollector := dump.Descriptor{Project: "routeviews", Collector: "rrc00"}

	if !s.Matches(full) {
		t.Error("expected descriptor matching both predicates to match")
	}
	if s.Matches(wrongCollector) {
		t.Error("expected descriptor failing one predicate to not match")
	}
}
