package dump

import "testing"

func TestParseRecordType(t *testing.T) {
	cases := []struct {
		in      string
		want    RecordType
		wantErr bool
	}{
		{"rib", RIB, false},
		{"updates", Updates, false},
		{"bogus", 0, true},
	}
	for _, c := range cases {
		got, err := ParseRecordType(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseRecordType(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRecordType(%q): unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseRecordType(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestRecordType_String(t *testing.T) {
	if RIB.String() != "rib" {
		t.Errorf("RIB.String() = %q, want %q", RIB.String(), "rib")
	}
	if Updates.String() != "updates" {
		t.Errorf("Updates.String() = %q, want %q", Updates.String(), "updates")
	}
}

func TestDescriptor_Precedes_ByFiletime(t *testing.T) {
	a := Descriptor{Filetime: 100, RecordType: Updates}
	b := Descriptor{Filetime: 200, RecordType: RIB}
	if !a.Precedes(b) {
		t.Error("expected earlier filetime to precede later filetime regardless of type")
	}
	if b.Precedes(a) {
		t.Error("expected later filetime to not precede earlier filetime")
	}
}

func TestDescriptor_Precedes_RIBBeforeUpdatesAtEqualFiletime(t *testing.T) {
	rib := Descriptor{Filetime: 100, RecordType: RIB}
	upd := Descriptor{Filetime: 100, RecordType: Updates}
	if !rib.Precedes(upd) {
		t.Error("expected RIB to precede Updates at equal filetime")
	}
	if upd.Precedes(rib) {
		t.Error("expected Updates to not precede RIB at equal filetime")
	}
}

func TestDescriptor_Precedes_SameTypeEqualFiletimeIsFalse(t *testing.T) {
	a := Descriptor{Filetime: 100, RecordType: RIB, URI: "a"}
	b := Descriptor{Filetime: 100, RecordType: RIB, URI: "b"}
	if a.Precedes(b) || b.Precedes(a) {
		t.Error("expected neither to strictly precede the other when filetime and type are equal")
	}
}

func TestDescriptor_SameBatch(t *testing.T) {
	a := Descriptor{Filetime: 100, RecordType: RIB, URI: "a"}
	b := Descriptor{Filetime: 100, RecordType: RIB, URI: "b"}
	c := Descriptor{Filetime: 100, RecordType: Updates, URI: "c"}
	d := Descriptor{Filetime: 200, RecordType: RIB, URI: "d"}

	if !a.SameBatch(b) {
		t.Error("expected same filetime+type to be the same batch")
	}
	if a.SameBatch(c) {
		t.Error("expected different record type to not be the same batch")
	}
	if a.SameBatch(d) {
		t.Error("expected different filetime to not be the same batch")
	}
}

func TestDescriptor_Key(t *testing.T) {
	d := Descriptor{Filetime: 42, URI: "file://x"}
	ft, uri := d.Key()
	if ft != 42 || uri != "file://x" {
		t.Errorf("Key() = (%d, %q), want (42, \"file://x\")", ft, uri)
	}
}
