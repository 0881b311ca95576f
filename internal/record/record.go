// Package record defines the Record type emitted to API callers by the
// Reader Set's next_record operation.
package record

import (
	"github.com/caida/bgpstream-go/internal/dump"
	"github.com/caida/bgpstream-go/internal/mrt"
)

// Position marks a record's place within the sequence of records emitted
// from one file.
type Position int

const (
	// Start: the first successfully read entry from a file.
	Start Position = iota
	// Middle: neither the first nor the emission that exposes exhaust.
	Middle
	// End: the last record emitted from a file, including the record that
	// carries a synthesized terminal status (Corrupted/Empty/NoMatch/OpenFailed).
	End
)

func (p Position) String() string {
	switch p {
	case Start:
		return "start"
	case Middle:
		return "middle"
	case End:
		return "end"
	default:
		return "unknown"
	}
}

// Status is the error taxonomy from §7, attached to every emitted record.
type Status int

const (
	Valid Status = iota
	OpenFailed
	Corrupted
	Empty
	Filtered
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case OpenFailed:
		return "open_failed"
	case Corrupted:
		return "corrupted"
	case Empty:
		return "empty"
	case Filtered:
		return "filtered"
	default:
		return "unknown"
	}
}

// Record is emitted to the caller by next_record. Descriptor attributes are
// borrowed (read-only); RawEntry is owned by the record once emitted — the
// reader that produced it retains no reference, so callers may hold a
// Record across further next_record calls without aliasing (§9).
type Record struct {
	Descriptor   dump.Descriptor
	RawEntry     *mrt.Entry // nil for synthesized error records with no entry
	DumpPosition Position
	Status       Status
	RecordTime   uint32 // entry timestamp; for a mid-file Corrupted record, the last valid entry's; else descriptor.Filetime for synthesized records
	DumpTime     uint32 // descriptor.Filetime
}
