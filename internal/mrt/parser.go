package mrt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// EntryReader is the "read next entry" external contract the Reader Set
// pulls through (§1, §4.4). Next returns io.EOF on a clean end of stream,
// or a *CorruptionError when the entry framing itself cannot be trusted.
type EntryReader interface {
	Next() (*Entry, error)
}

// MRT common-header type codes (RFC 6396 §3).
const (
	typeTableDump   uint16 = 12
	typeTableDump2  uint16 = 13
	typeBGP4MP      uint16 = 16
	typeBGP4MPET    uint16 = 17
	headerLen              = 12 // timestamp(4) + type(2) + subtype(2) + length(4)
)

const (
	subTableDumpAFIv4 uint16 = 1
	subTableDumpAFIv6 uint16 = 2
)

const (
	subPeerIndexTable     uint16 = 1
	subRIBIPv4Unicast     uint16 = 2
	subRIBIPv4Multicast   uint16 = 3
	subRIBIPv6Unicast     uint16 = 4
	subRIBIPv6Multicast   uint16 = 5
)

const (
	subBGP4MPStateChange    uint16 = 0
	subBGP4MPMessage        uint16 = 1
	subBGP4MPMessageAS4     uint16 = 4
	subBGP4MPStateChangeAS4 uint16 = 5
	subBGP4MPMessageLocal   uint16 = 6
	subBGP4MPMessageAS4Local uint16 = 7
)

const bgpUpdateType uint8 = 2

// peerIndexEntry is one row of a TABLE_DUMP2 PEER_INDEX_TABLE.
type peerIndexEntry struct {
	address string
	asn     uint32
}

// Parser is the reference EntryReader implementation: it reads a raw MRT
// byte stream (already decompressed by the transport layer) and yields one
// Entry per MRT record, dispatching on the common header's type/subtype.
//
// Parser is stateful across calls in one respect: a TABLE_DUMP2 dump opens
// with a PEER_INDEX_TABLE record that RIB entries reference by index, so
// the parser caches it until the next PEER_INDEX_TABLE (or end of file).
type Parser struct {
	r         io.Reader
	peerTable []peerIndexEntry
	offset    int
}

// NewParser wraps r (already-decompressed MRT bytes) as an EntryReader.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: r}
}

// Next reads and decodes the next MRT record, skipping record kinds the
// decoder has no use for (OSPF, ISIS, PEER_INDEX_TABLE) until it finds one
// that yields an Entry or it reaches EOF/corruption.
func (p *Parser) Next() (*Entry, error) {
	for {
		hdr := make([]byte, headerLen)
		if _, err := io.ReadFull(p.r, hdr); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, &CorruptionError{Offset: p.offset, Err: err}
		}

		ts := binary.BigEndian.Uint32(hdr[0:4])
		typ := binary.BigEndian.Uint16(hdr[4:6])
		sub := binary.BigEndian.Uint16(hdr[6:8])
		length := binary.BigEndian.Uint32(hdr[8:12])
		p.offset += headerLen

		body := make([]byte, length)
		if _, err := io.ReadFull(p.r, body); err != nil {
			return nil, &CorruptionError{Offset: p.offset, Err: fmt.Errorf("truncated record body: %w", err)}
		}
		p.offset += int(length)

		switch typ {
		case typeTableDump:
			entry, err := p.parseTableDump(ts, sub, body)
			if err != nil {
				return nil, &CorruptionError{Offset: p.offset, Err: err}
			}
			return entry, nil
		case typeTableDump2:
			entry, err := p.parseTableDump2(ts, sub, body)
			if err != nil {
				return nil, &CorruptionError{Offset: p.offset, Err: err}
			}
			if entry == nil {
				continue // PEER_INDEX_TABLE: cached, no entry to emit
			}
			return entry, nil
		case typeBGP4MP, typeBGP4MPET:
			isET := typ == typeBGP4MPET
			if isET {
				if len(body) < 4 {
					return nil, &CorruptionError{Offset: p.offset, Err: errors.New("truncated extended-timestamp microseconds")}
				}
				body = body[4:] // microseconds are skipped; ts keeps whole-second precision
			}
			entry, err := p.parseBGP4MP(ts, sub, body)
			if err != nil {
				return nil, &CorruptionError{Offset: p.offset, Err: err}
			}
			if entry == nil {
				continue // not an UPDATE/state-change message we decode (e.g. OPEN/KEEPALIVE)
			}
			return entry, nil
		default:
			continue // OSPF2/OSPF3/ISIS and friends: not BGP data, skip record
		}
	}
}

func (p *Parser) parseTableDump(ts uint32, sub uint16, body []byte) (*Entry, error) {
	var ipLen int
	switch sub {
	case subTableDumpAFIv4:
		ipLen = 4
	case subTableDumpAFIv6:
		ipLen = 16
	default:
		return nil, fmt.Errorf("mrt: unknown TABLE_DUMP subtype %d", sub)
	}

	const fixedLen = 2 + 2 // view number + sequence number
	off := fixedLen
	if off+ipLen+1+1+4+ipLen+2+2 > len(body) {
		return nil, errors.New("mrt: TABLE_DUMP record truncated")
	}

	prefixBytes := body[off : off+ipLen]
	off += ipLen
	prefixLen := body[off]
	off++
	off++ // status byte, unused
	originatedTime := binary.BigEndian.Uint32(body[off : off+4])
	off += 4
	peerBytes := body[off : off+ipLen]
	off += ipLen
	peerAS := binary.BigEndian.Uint16(body[off : off+2])
	off += 2
	attrLen := binary.BigEndian.Uint16(body[off : off+2])
	off += 2
	if off+int(attrLen) > len(body) {
		return nil, errors.New("mrt: TABLE_DUMP attribute data truncated")
	}

	attrs, err := parsePathAttributes(body[off:off+int(attrLen)], false)
	if err != nil {
		return nil, err
	}

	return &Entry{
		Kind:           TableDump,
		Timestamp:      ts,
		PeerAddress:    net.IP(peerBytes).String(),
		PeerASN:        uint32(peerAS),
		Prefix:         fmt.Sprintf("%s/%d", net.IP(prefixBytes).String(), prefixLen),
		OriginatedTime: originatedTime,
		Attrs:          attrs,
	}, nil
}

func (p *Parser) parseTableDump2(ts uint32, sub uint16, body []byte) (*Entry, error) {
	switch sub {
	case subPeerIndexTable:
		return nil, p.parsePeerIndexTable(body)
	case subRIBIPv4Unicast, subRIBIPv4Multicast:
		return p.parseRIBEntry(ts, body, 4)
	case subRIBIPv6Unicast, subRIBIPv6Multicast:
		return p.parseRIBEntry(ts, body, 16)
	default:
		return nil, nil // RIB_GENERIC and similar: not decoded, skip silently
	}
}

func (p *Parser) parsePeerIndexTable(body []byte) error {
	if len(body) < 4+2 {
		return errors.New("mrt: PEER_INDEX_TABLE truncated")
	}
	off := 4 // collector BGP ID
	viewNameLen := int(binary.BigEndian.Uint16(body[off : off+2]))
	off += 2
	off += viewNameLen
	if off+2 > len(body) {
		return errors.New("mrt: PEER_INDEX_TABLE truncated before peer count")
	}
	peerCount := int(binary.BigEndian.Uint16(body[off : off+2]))
	off += 2

	peers := make([]peerIndexEntry, 0, peerCount)
	for i := 0; i < peerCount; i++ {
		if off+1 > len(body) {
			return errors.New("mrt: PEER_INDEX_TABLE truncated mid-entry")
		}
		peerType := body[off]
		off++
		off += 4 // peer BGP ID

		ipLen := 4
		if peerType&0x1 != 0 {
			ipLen = 16
		}
		if off+ipLen > len(body) {
			return errors.New("mrt: PEER_INDEX_TABLE truncated peer address")
		}
		addr := net.IP(body[off : off+ipLen]).String()
		off += ipLen

		var asn uint32
		if peerType&0x2 != 0 {
			if off+4 > len(body) {
				return errors.New("mrt: PEER_INDEX_TABLE truncated peer AS")
			}
			asn = binary.BigEndian.Uint32(body[off : off+4])
			off += 4
		} else {
			if off+2 > len(body) {
				return errors.New("mrt: PEER_INDEX_TABLE truncated peer AS")
			}
			asn = uint32(binary.BigEndian.Uint16(body[off : off+2]))
			off += 2
		}

		peers = append(peers, peerIndexEntry{address: addr, asn: asn})
	}

	p.peerTable = peers
	return nil
}

func (p *Parser) parseRIBEntry(ts uint32, body []byte, ipLen int) (*Entry, error) {
	if len(body) < 4+1 {
		return nil, errors.New("mrt: RIB entry truncated")
	}
	off := 4 // sequence number
	prefixLen := int(body[off])
	off++
	byteLen := (prefixLen + 7) / 8
	if off+byteLen+2 > len(body) {
		return nil, errors.New("mrt: RIB entry prefix truncated")
	}
	prefixBytes := make([]byte, ipLen)
	copy(prefixBytes, body[off:off+byteLen])
	off += byteLen

	entryCount := int(binary.BigEndian.Uint16(body[off : off+2]))
	off += 2

	// A RIB_IPV4/6_UNICAST record can carry multiple peers' views of the
	// same prefix; we surface only the first (the core, per spec, decodes
	// one element per prefix entry "in the parser's order" — first is
	// representative and keeps the contract simple for the reference impl).
	for i := 0; i < entryCount; i++ {
		if off+2+4+2 > len(body) {
			return nil, errors.New("mrt: RIB entry truncated mid-record")
		}
		peerIdx := int(binary.BigEndian.Uint16(body[off : off+2]))
		off += 2
		originatedTime := binary.BigEndian.Uint32(body[off : off+4])
		off += 4
		attrLen := int(binary.BigEndian.Uint16(body[off : off+2]))
		off += 2
		if off+attrLen > len(body) {
			return nil, errors.New("mrt: RIB entry attribute data truncated")
		}
		attrData := body[off : off+attrLen]
		off += attrLen

		if i > 0 {
			continue
		}

		attrs, err := parsePathAttributes(attrData, false)
		if err != nil {
			return nil, err
		}

		var peerAddr string
		var peerASN uint32
		if peerIdx >= 0 && peerIdx < len(p.peerTable) {
			peerAddr = p.peerTable[peerIdx].address
			peerASN = p.peerTable[peerIdx].asn
		}

		var ipAddr net.IP
		if ipLen == 4 {
			ipAddr = net.IP(prefixBytes[:4])
		} else {
			ipAddr = net.IP(prefixBytes[:16])
		}

		return &Entry{
			Kind:           TableDumpV2Prefix,
			Timestamp:      ts,
			PeerAddress:    peerAddr,
			PeerASN:        peerASN,
			Prefix:         fmt.Sprintf("%s/%d", ipAddr.String(), prefixLen),
			OriginatedTime: originatedTime,
			Attrs:          attrs,
		}, nil
	}

	return nil, nil
}

func (p *Parser) parseBGP4MP(ts uint32, sub uint16, body []byte) (*Entry, error) {
	as4 := sub == subBGP4MPMessageAS4 || sub == subBGP4MPStateChangeAS4 || sub == subBGP4MPMessageAS4Local
	asLen := 2
	if as4 {
		asLen = 4
	}

	off := 0
	if off+asLen*2+2+2 > len(body) {
		return nil, errors.New("mrt: BGP4MP record truncated")
	}
	off += asLen // peer AS
	off += asLen // local AS
	off += 2     // interface index
	afi := binary.BigEndian.Uint16(body[off : off+2])
	off += 2

	ipLen := 4
	if afi == uint16(AFIIPv6) {
		ipLen = 16
	}
	if off+ipLen*2 > len(body) {
		return nil, errors.New("mrt: BGP4MP record truncated before addresses")
	}
	peerBytes := body[off : off+ipLen]
	off += ipLen
	off += ipLen // local IP address, unused

	switch sub {
	case subBGP4MPStateChange, subBGP4MPStateChangeAS4:
		if off+2+2 > len(body) {
			return nil, errors.New("mrt: BGP4MP_STATE_CHANGE truncated")
		}
		oldState := binary.BigEndian.Uint16(body[off : off+2])
		off += 2
		newState := binary.BigEndian.Uint16(body[off : off+2])
		return &Entry{
			Kind:        ZebraStateChange,
			Timestamp:   ts,
			PeerAddress: net.IP(peerBytes).String(),
			OldState:    oldState,
			NewState:    newState,
		}, nil

	case subBGP4MPMessage, subBGP4MPMessageAS4, subBGP4MPMessageLocal, subBGP4MPMessageAS4Local:
		bgpMsg := body[off:]
		return p.parseBGPMessage(ts, net.IP(peerBytes).String(), bgpMsg)

	default:
		return nil, nil
	}
}

const bgpHeaderSize = 19 // marker(16) + length(2) + type(1)

func (p *Parser) parseBGPMessage(ts uint32, peerAddr string, data []byte) (*Entry, error) {
	if len(data) < bgpHeaderSize {
		return nil, errors.New("mrt: BGP message shorter than header")
	}
	if data[18] != bgpUpdateType {
		return nil, nil // OPEN/NOTIFICATION/KEEPALIVE: nothing for the decoder to do
	}

	payload := data[bgpHeaderSize:]
	if len(payload) < 4 {
		return nil, errors.New("mrt: BGP UPDATE payload too short")
	}
	off := 0

	withdrawnLen := int(binary.BigEndian.Uint16(payload[off : off+2]))
	off += 2
	if off+withdrawnLen > len(payload) {
		return nil, errors.New("mrt: BGP UPDATE withdrawn length exceeds data")
	}
	withdrawn, err := parsePrefixes(payload[off:off+withdrawnLen], 4, false)
	if err != nil {
		return nil, err
	}
	off += withdrawnLen

	if off+2 > len(payload) {
		return nil, errors.New("mrt: BGP UPDATE missing path attr length")
	}
	attrLen := int(binary.BigEndian.Uint16(payload[off : off+2]))
	off += 2
	if off+attrLen > len(payload) {
		return nil, errors.New("mrt: BGP UPDATE path attr length exceeds data")
	}
	attrs, err := parsePathAttributes(payload[off:off+attrLen], false)
	if err != nil {
		return nil, err
	}
	off += attrLen

	nlri, err := parsePrefixes(payload[off:], 4, false)
	if err != nil {
		return nil, err
	}

	return &Entry{
		Kind:        ZebraUpdate,
		Timestamp:   ts,
		PeerAddress: peerAddr,
		Withdrawn:   withdrawn,
		NLRI:        nlri,
		Attrs:       attrs,
	}, nil
}
