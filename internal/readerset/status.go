package readerset

import "github.com/caida/bgpstream-go/internal/record"

// Status is a Reader's terminal or live state (§3's invariants).
type Status int

const (
	// Live: the reader holds a lookahead entry and may yield more.
	Live Status = iota
	// Exhausted: normal EOF after at least one valid emission.
	Exhausted
	// Corrupted: the parser reported a framing error mid-file.
	Corrupted
	// Empty: parser reached EOF with zero successful reads.
	Empty
	// NoMatch: file parsed cleanly but no entry passed the time filter.
	NoMatch
	// OpenFailed: the byte-stream opener rejected the descriptor's URI.
	OpenFailed
)

func (s Status) String() string {
	switch s {
	case Live:
		return "live"
	case Exhausted:
		return "exhausted"
	case Corrupted:
		return "corrupted"
	case Empty:
		return "empty"
	case NoMatch:
		return "nomatch"
	case OpenFailed:
		return "openfailed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status ends the reader's lifecycle.
func (s Status) Terminal() bool {
	return s != Live
}

// recordStatusFor maps a reader Status to the record.Status carried by the
// record built from it (§7's taxonomy).
func recordStatusFor(s Status) record.Status {
	switch s {
	case OpenFailed:
		return record.OpenFailed
	case Corrupted:
		return record.Corrupted
	case Empty:
		return record.Empty
	case NoMatch:
		return record.Filtered
	default:
		return record.Valid
	}
}
