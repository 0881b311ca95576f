// Package elem implements the Record/Element Decoder (§4.5): expanding one
// record's raw MRT entry into an ordered, finite sequence of typed
// elements.
package elem

import (
	"strings"

	"github.com/caida/bgpstream-go/internal/mrt"
	"github.com/caida/bgpstream-go/internal/record"
)

// Type tags the kind of BGP event an Element represents.
type Type int

const (
	RibEntry Type = iota
	Announcement
	Withdrawal
	PeerStateChange
)

func (t Type) String() string {
	switch t {
	case RibEntry:
		return "rib_entry"
	case Announcement:
		return "announcement"
	case Withdrawal:
		return "withdrawal"
	case PeerStateChange:
		return "peer_state_change"
	default:
		return "unknown"
	}
}

// ASPathKind discriminates the as_path union (§3).
type ASPathKind int

const (
	ASPathNumeric ASPathKind = iota
	ASPathString
	ASPathUnknown
)

// ASPath is the discriminated union Numeric([u32]) | String(s) | Unknown.
type ASPath struct {
	Kind    ASPathKind
	Numeric []uint32
	Text    string // original text, for Kind == ASPathString
	HopCount int   // for Kind == ASPathUnknown: "empty string with positive hop count"
}

// Element is one decoded BGP event.
type Element struct {
	Type        Type
	Timestamp   uint32
	PeerAddress string
	PeerASN     uint32
	Prefix      string
	NextHop     string
	ASPath      *ASPath
	Origin      string
	LocalPref   *uint32
	MED         *uint32
	CommStd     []string
	CommExt     []string
	CommLarge   []string
	OldState    uint16
	NewState    uint16
}

// Decode expands rec's raw entry into the ordered, finite element sequence
// described by §4.5. It returns nil for synthesized records with no entry
// (OpenFailed/Corrupted/Empty/Filtered records carry no
// decodable payload).
func Decode(rec *record.Record) []Element {
	if rec.RawEntry == nil {
		return nil
	}
	e := rec.RawEntry

	switch e.Kind {
	case mrt.TableDump, mrt.TableDumpV2Prefix:
		return []Element{decodeRIBEntry(e)}
	case mrt.ZebraStateChange:
		return []Element{{
			Type:        PeerStateChange,
			Timestamp:   e.Timestamp,
			PeerAddress: e.PeerAddress,
			OldState:    e.OldState,
			NewState:    e.NewState,
		}}
	case mrt.ZebraUpdate:
		return decodeUpdate(e)
	default:
		return nil
	}
}

func decodeRIBEntry(e *mrt.Entry) Element {
	el := Element{
		Type:        RibEntry,
		Timestamp:   e.Timestamp,
		PeerAddress: e.PeerAddress,
		PeerASN:     e.PeerASN,
		Prefix:      e.Prefix,
	}
	if e.Attrs != nil {
		applyAttrs(&el, e.Attrs)
	}
	return el
}

func applyAttrs(el *Element, a *mrt.PathAttributes) {
	el.NextHop = a.Nexthop
	el.Origin = a.Origin
	el.LocalPref = a.LocalPref
	el.MED = a.MED
	el.CommStd = a.CommStd
	el.CommExt = a.CommExt
	el.CommLarge = a.CommLarge
	el.ASPath = ClassifyASPath(a.ASPath)
}

// decodeUpdate implements the §4.5 ordering:
//  1. IPv4 withdrawals from the base NLRI
//  2. IPv4 withdrawals from MP_UNREACH, per SAFI (unicast, multicast, unicast-multicast)
//  3. IPv6 withdrawals from MP_UNREACH, per SAFI
//  4. IPv4 announcements from the base NLRI
//  5. IPv4 announcements from MP_REACH, per SAFI
//  6. IPv6 announcements from MP_REACH, per SAFI
func decodeUpdate(e *mrt.Entry) []Element {
	var out []Element
	attrs := e.Attrs

	for _, w := range e.Withdrawn {
		out = append(out, Element{
			Type:        Withdrawal,
			Timestamp:   e.Timestamp,
			PeerAddress: e.PeerAddress,
			Prefix:      w.Prefix,
		})
	}

	if attrs != nil {
		out = append(out, mpElements(e, attrs.MPUnreach, mrt.AFIIPv4, Withdrawal)...)
		out = append(out, mpElements(e, attrs.MPUnreach, mrt.AFIIPv6, Withdrawal)...)
	}

	for _, n := range e.NLRI {
		el := Element{
			Type:        Announcement,
			Timestamp:   e.Timestamp,
			PeerAddress: e.PeerAddress,
			Prefix:      n.Prefix,
		}
		if attrs != nil {
			applyAttrs(&el, attrs)
		}
		out = append(out, el)
	}

	if attrs != nil {
		out = append(out, mpElements(e, attrs.MPReach, mrt.AFIIPv4, Announcement)...)
		out = append(out, mpElements(e, attrs.MPReach, mrt.AFIIPv6, Announcement)...)
	}

	return out
}

// mpElements walks groups (MPReach or MPUnreach) restricted to afi, in the
// fixed SAFI order unicast → multicast → unicast-multicast (§4.5, §8.7),
// and emits one element per prefix. Address family fields are inherited
// from the enclosing group, not the record's top-level attributes (§4.5).
func mpElements(e *mrt.Entry, groups []mrt.MPGroup, afi mrt.AFI, typ Type) []Element {
	var out []Element
	for _, safi := range mrt.SAFIOrder {
		for _, g := range groups {
			if g.AFI != afi || g.SAFI != safi {
				continue
			}
			for _, p := range g.Prefixes {
				el := Element{
					Type:        typ,
					Timestamp:   e.Timestamp,
					PeerAddress: e.PeerAddress,
					Prefix:      p.Prefix,
					NextHop:     g.Nexthop,
				}
				if typ == Announcement && e.Attrs != nil {
					el.Origin = e.Attrs.Origin
					el.LocalPref = e.Attrs.LocalPref
					el.MED = e.Attrs.MED
					el.CommStd = e.Attrs.CommStd
					el.CommExt = e.Attrs.CommExt
					el.CommLarge = e.Attrs.CommLarge
					el.ASPath = ClassifyASPath(e.Attrs.ASPath)
				}
				out = append(out, el)
			}
		}
	}
	return out
}

// ClassifyASPath implements the §4.5/§8.8 heuristic: the textual path is
// classified purely by its content, not by wire type. Any of ( ) [ ] { }
// forces string form (preserving the original text); otherwise the path
// tokenizes into a numeric vector; an empty string is Unknown, carrying
// only a hop count (always 0 here, since callers supply the raw text).
func ClassifyASPath(text string) *ASPath {
	if text == "" {
		return &ASPath{Kind: ASPathUnknown, HopCount: 0}
	}
	if strings.ContainsAny(text, "(){}[]") {
		return &ASPath{Kind: ASPathString, Text: text}
	}

	fields := strings.Fields(text)
	nums := make([]uint32, 0, len(fields))
	for _, f := range fields {
		var n uint64
		for _, c := range f {
			if c < '0' || c > '9' {
				// Non-digit content without set/confederation syntax:
				// fall back to string form rather than guess.
				return &ASPath{Kind: ASPathString, Text: text}
			}
			n = n*10 + uint64(c-'0')
		}
		nums = append(nums, uint32(n))
	}
	return &ASPath{Kind: ASPathNumeric, Numeric: nums}
}
