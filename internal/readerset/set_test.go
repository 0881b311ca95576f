package readerset

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/caida/bgpstream-go/internal/dump"
	"github.com/caida/bgpstream-go/internal/filter"
	"github.com/caida/bgpstream-go/internal/mrt"
	"github.com/caida/bgpstream-go/internal/record"
)

// fakeOpener maps a URI straight to a reader of its own name (so the parser
// factory below can recover which descriptor it was asked to parse) or to a
// programmed open error.
type fakeOpener struct {
	openErr map[string]error
}

func (o *fakeOpener) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	if err, ok := o.openErr[uri]; ok {
		return nil, err
	}
	return &closeTrackingReader{Reader: strings.NewReader(uri)}, nil
}

type closeTrackingReader struct {
	*strings.Reader
	closed bool
}

func (c *closeTrackingReader) Close() error {
	c.closed = true
	return nil
}

type fakeStep struct {
	entry *mrt.Entry
	err   error
}

type fakeEntryReader struct {
	steps []fakeStep
	i     int
}

func (f *fakeEntryReader) Next() (*mrt.Entry, error) {
	if f.i >= len(f.steps) {
		return nil, io.EOF
	}
	s := f.steps[f.i]
	f.i++
	return s.entry, s.err
}

func newFakeParserFactory(programs map[string][]fakeStep) ParserFactory {
	return func(r io.Reader) mrt.EntryReader {
		b, _ := io.ReadAll(r)
		return &fakeEntryReader{steps: programs[string(b)]}
	}
}

func entryAt(ts uint32) *mrt.Entry {
	return &mrt.Entry{Kind: mrt.ZebraUpdate, Timestamp: ts}
}

func TestSet_Absorb_OpenFailedSynthesizesTerminal(t *testing.T) {
	opener := &fakeOpener{openErr: map[string]error{"bad": errors.New("no such file")}}
	s := New(opener, newFakeParserFactory(nil), nil)

	recs := s.Absorb(context.Background(), []dump.Descriptor{{URI: "bad", Filetime: 100}})
	if len(recs) != 1 {
		t.Fatalf("expected 1 synthesized record, got %d", len(recs))
	}
	if recs[0].Status != record.OpenFailed {
		t.Errorf("Status = %v, want OpenFailed", recs[0].Status)
	}
	if recs[0].DumpPosition != record.End {
		t.Errorf("DumpPosition = %v, want End", recs[0].DumpPosition)
	}
	if !s.IsEmpty() {
		t.Error("expected reader set to remain empty after an open failure")
	}
}

func TestSet_Absorb_EmptyFileSynthesizesTerminal(t *testing.T) {
	opener := &fakeOpener{}
	programs := map[string][]fakeStep{"empty": {}} // immediate EOF, zero reads
	s := New(opener, newFakeParserFactory(programs), nil)

	recs := s.Absorb(context.Background(), []dump.Descriptor{{URI: "empty", Filetime: 100}})
	if len(recs) != 1 || recs[0].Status != record.Empty {
		t.Fatalf("expected a synthesized Empty record, got %+v", recs)
	}
}

func TestSet_Absorb_NoMatchSynthesizesTerminal(t *testing.T) {
	opener := &fakeOpener{}
	programs := map[string][]fakeStep{
		"nomatch": {{entry: entryAt(100)}, {entry: entryAt(200)}},
	}
	fs := filter.New()
	fs.AddInterval(10000, 20000, false) // neither entry's timestamp matches
	s := New(opener, newFakeParserFactory(programs), fs)

	recs := s.Absorb(context.Background(), []dump.Descriptor{{URI: "nomatch", Filetime: 100}})
	if len(recs) != 1 || recs[0].Status != record.Filtered {
		t.Fatalf("expected a synthesized Filtered record, got %+v", recs)
	}
}

func TestSet_Absorb_LiveReaderIsHeapedNotSynthesized(t *testing.T) {
	opener := &fakeOpener{}
	programs := map[string][]fakeStep{"live": {{entry: entryAt(100)}}}
	s := New(opener, newFakeParserFactory(programs), nil)

	recs := s.Absorb(context.Background(), []dump.Descriptor{{URI: "live", Filetime: 100}})
	if len(recs) != 0 {
		t.Fatalf("expected no synthesized records for a live reader, got %+v", recs)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 live reader in the heap, got %d", s.Len())
	}
}

func TestSet_NextRecord_MergesInTimestampOrder(t *testing.T) {
	opener := &fakeOpener{}
	programs := map[string][]fakeStep{
		"a": {{entry: entryAt(100)}, {entry: entryAt(300)}},
		"b": {{entry: entryAt(200)}},
	}
	s := New(opener, newFakeParserFactory(programs), nil)
	s.Absorb(context.Background(), []dump.Descriptor{
		{URI: "a", Filetime: 100, RecordType: dump.RIB},
		{URI: "b", Filetime: 100, RecordType: dump.RIB},
	})

	var got []uint32
	for {
		rec := s.NextRecord()
		if rec == nil {
			break
		}
		got = append(got, rec.RecordTime)
	}

	want := []uint32{100, 200, 300}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSet_NextRecord_FIFOTieBreak(t *testing.T) {
	opener := &fakeOpener{}
	programs := map[string][]fakeStep{
		"first":  {{entry: entryAt(100)}},
		"second": {{entry: entryAt(100)}},
	}
	s := New(opener, newFakeParserFactory(programs), nil)
	s.Absorb(context.Background(), []dump.Descriptor{
		{URI: "first", Filetime: 100},
		{URI: "second", Filetime: 100},
	})

	rec1 := s.NextRecord()
	rec2 := s.NextRecord()
	if rec1.Descriptor.URI != "first" || rec2.Descriptor.URI != "second" {
		t.Errorf("expected insertion-order tie-break first,second; got %s,%s", rec1.Descriptor.URI, rec2.Descriptor.URI)
	}
}

func TestSet_NextRecord_SingleEntryFileStartOverwrittenToEnd(t *testing.T) {
	opener := &fakeOpener{}
	programs := map[string][]fakeStep{"one": {{entry: entryAt(100)}}}
	s := New(opener, newFakeParserFactory(programs), nil)
	s.Absorb(context.Background(), []dump.Descriptor{{URI: "one", Filetime: 100}})

	rec := s.NextRecord()
	if rec.DumpPosition != record.End {
		t.Errorf("DumpPosition = %v, want End for a single-entry file", rec.DumpPosition)
	}
	if rec.Status != record.Valid {
		t.Errorf("Status = %v, want Valid", rec.Status)
	}
	if s.NextRecord() != nil {
		t.Error("expected the reader to be retired after its only record")
	}
}

func TestSet_NextRecord_StartMiddleEndSequence(t *testing.T) {
	opener := &fakeOpener{}
	programs := map[string][]fakeStep{
		"three": {{entry: entryAt(100)}, {entry: entryAt(200)}, {entry: entryAt(300)}},
	}
	s := New(opener, newFakeParserFactory(programs), nil)
	s.Absorb(context.Background(), []dump.Descriptor{{URI: "three", Filetime: 100}})

	positions := []record.Position{
		s.NextRecord().DumpPosition,
		s.NextRecord().DumpPosition,
		s.NextRecord().DumpPosition,
	}
	want := []record.Position{record.Start, record.Middle, record.End}
	for i := range want {
		if positions[i] != want[i] {
			t.Errorf("position %d = %v, want %v", i, positions[i], want[i])
		}
	}
}

func TestSet_NextRecord_CorruptionMidFile(t *testing.T) {
	opener := &fakeOpener{}
	programs := map[string][]fakeStep{
		"corrupt": {
			{entry: entryAt(100)},
			{err: &mrt.CorruptionError{Offset: 42, Err: errors.New("bad framing")}},
		},
	}
	s := New(opener, newFakeParserFactory(programs), nil)
	s.Absorb(context.Background(), []dump.Descriptor{{URI: "corrupt", Filetime: 100}})

	first := s.NextRecord()
	if first.Status != record.Valid || first.DumpPosition != record.Start {
		t.Fatalf("first record = %+v, want Valid/Start", first)
	}
	second := s.NextRecord()
	if second == nil {
		t.Fatal("expected a terminal corrupted record, got nil")
	}
	if second.Status != record.Corrupted || second.DumpPosition != record.End {
		t.Errorf("second record = %+v, want Corrupted/End", second)
	}
	if s.NextRecord() != nil {
		t.Error("expected no further records after corruption")
	}
}

func TestSet_NextRecord_EmptyHeapReturnsNil(t *testing.T) {
	s := New(&fakeOpener{}, newFakeParserFactory(nil), nil)
	if s.NextRecord() != nil {
		t.Error("expected nil from an empty reader set")
	}
}

func TestSet_Close_ReleasesOpenStreams(t *testing.T) {
	opener := &fakeOpener{}
	programs := map[string][]fakeStep{"live": {{entry: entryAt(100)}, {entry: entryAt(200)}}}
	s := New(opener, newFakeParserFactory(programs), nil)
	s.Absorb(context.Background(), []dump.Descriptor{{URI: "live", Filetime: 100}})

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !s.IsEmpty() {
		t.Error("expected the heap to be cleared after Close")
	}
}
