package core

import "net/netip"

// Family is the L3 address family of a decoded packet.
type Family uint8

const (
	FamilyV4 Family = 4
	FamilyV6 Family = 6
)

// TCP flag bits, laid out as in the TCP header so TCPFlags can be
// compared/accumulated with plain bitwise OR.
const (
	TCPFlagFIN uint8 = 1 << iota
	TCPFlagSYN
	TCPFlagRST
	TCPFlagPSH
	TCPFlagACK
	TCPFlagURG
)

// Packet is a single parsed capture event. It is owned by the block
// that contains it — callers must not retain a Packet (or its Payload
// slice) past the end of the current dispatch call; Payload aliases
// the raw frame's data.
type Packet struct {
	TimestampSec  int64
	TimestampUsec int64

	VLANID uint16
	Family Family

	SrcIP netip.Addr
	DstIP netip.Addr

	L4Proto uint8
	SrcPort uint16
	DstPort uint16

	TCPFlags   uint8
	TCPWindow  uint16
	TCPMSS     uint16
	TCPOptions []byte

	IPTTL   uint8
	IPFlags uint8

	FragID          uint32
	FragOffset      uint16
	MoreFragments   bool
	SourceIsReverse bool // set by the flow cache when the reverse key form hit

	Payload   []byte
	WireLen   int
	Truncated bool

	LinkIndex  int    // capture-source / input index
	OrdinalSet bool   // whether Ordinal was assigned by the indexer
	Ordinal    uint64 // dense ordinal assigned by the indexer mesh
}

// IsFragmented reports whether the packet is part of a fragmented IP
// datagram: either the first fragment (offset 0, MF set) or a later
// fragment (offset != 0, MF either set or clear on the last one).
func (p *Packet) IsFragmented() bool {
	return p.FragOffset != 0 || p.MoreFragments
}

// IsFirstFragment reports whether p is the first fragment of a
// fragmented datagram (offset 0 with more fragments following).
func (p *Packet) IsFirstFragment() bool {
	return p.FragOffset == 0 && p.MoreFragments
}
