// Package parser implements the probe's L2-L4 decoder: a Decoder
// that turns a core.RawFrame into a
// core.Packet using gopacket's DecodingLayerParser, with a single
// level of 802.1Q unwrapping, bounded IPv6 extension-header skipping,
// and fragment-port inheritance from an internal/fragcache.Cache
// rather than full datagram reassembly.
package parser

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/otusprobe/flowprobe/internal/core"
	"github.com/otusprobe/flowprobe/internal/fragcache"
	"github.com/otusprobe/flowprobe/internal/log"
)

// maxIPv6ExtHeaders bounds how many IPv6 extension headers (hop-by-hop,
// routing, ...) the parser will walk before giving up on a packet,
// guarding against a crafted chain of zero-length headers looping
// forever.
const maxIPv6ExtHeaders = 8

// Decoder decodes raw frames into core.Packets. It is not safe
// for concurrent use: callers (one per capture source) must each own
// a Decoder instance.
type Decoder struct {
	frags *fragcache.Cache
	log   log.Logger

	gp gopacket.DecodingLayerParser

	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	ip4     layers.IPv4
	ip6     layers.IPv6
	ip6hop  layers.IPv6HopByHop
	ip6rt   layers.IPv6Routing
	ip6dst  layers.IPv6Destination
	ip6frag layers.IPv6Fragment
	tcp     layers.TCP
	udp     layers.UDP
	icmp4   layers.ICMPv4
	icmp6   layers.ICMPv6
	payload gopacket.Payload

	decoded []gopacket.LayerType

	droppedShort   uint64
	droppedProto   uint64
	droppedExtHdrs uint64
}

// New builds a Decoder that inherits ports for mid-stream fragments
// from frags. frags may be nil, in which case fragments never have
// their ports filled in.
func New(frags *fragcache.Cache, logger log.Logger) *Decoder {
	d := &Decoder{frags: frags, log: logger}
	d.gp = *gopacket.NewDecodingLayerParser(
		layers.LayerTypeEthernet,
		&d.eth, &d.dot1q,
		&d.ip4, &d.ip6,
		&d.ip6hop, &d.ip6rt, &d.ip6dst, &d.ip6frag,
		&d.tcp, &d.udp,
		&d.icmp4, &d.icmp6,
		&d.payload,
	)
	d.gp.IgnoreUnsupported = true
	return d
}

// Decode turns raw into pkt, reusing pkt's backing slices where
// possible. It returns core.ErrPacketTooShort or core.ErrUnsupportedProto
// wrapped with context on malformed input; callers should count and
// drop such packets rather than treat them as fatal.
func (d *Decoder) Decode(raw core.RawFrame) (core.Packet, error) {
	var pkt core.Packet
	pkt.TimestampSec = raw.TimestampSec
	pkt.TimestampUsec = raw.TimestampUsec
	pkt.WireLen = raw.WireLen
	pkt.LinkIndex = raw.LinkIndex

	d.decoded = d.decoded[:0]
	if err := d.gp.DecodeLayers(raw.Data, &d.decoded); err != nil {
		if len(d.decoded) == 0 {
			d.droppedShort++
			return pkt, core.ErrPacketTooShort
		}
		// Partial decode: keep whatever layers were recognized before
		// the parser choked (mirrors gopacket's own truncated-frame
		// behavior) and fall through.
	}

	haveL3 := false
	ipv6ExtHeaders := 0
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeDot1Q:
			pkt.VLANID = d.dot1q.VLANIdentifier
		case layers.LayerTypeIPv4:
			d.fillIPv4(&pkt)
			haveL3 = true
		case layers.LayerTypeIPv6:
			d.fillIPv6(&pkt)
			haveL3 = true
		case layers.LayerTypeIPv6HopByHop:
			ipv6ExtHeaders++
			pkt.L4Proto = uint8(d.ip6hop.NextHeader)
		case layers.LayerTypeIPv6Routing:
			ipv6ExtHeaders++
			pkt.L4Proto = uint8(d.ip6rt.NextHeader)
		case layers.LayerTypeIPv6Destination:
			ipv6ExtHeaders++
			pkt.L4Proto = uint8(d.ip6dst.NextHeader)
		case layers.LayerTypeIPv6Fragment:
			ipv6ExtHeaders++
			pkt.L4Proto = uint8(d.ip6frag.NextHeader)
			pkt.FragID = d.ip6frag.Identification
			pkt.FragOffset = d.ip6frag.FragmentOffset * 8
			pkt.MoreFragments = d.ip6frag.MoreFragments
		case layers.LayerTypeTCP:
			d.fillTCP(&pkt)
		case layers.LayerTypeUDP:
			d.fillUDP(&pkt)
		case layers.LayerTypeICMPv4:
			pkt.L4Proto = uint8(layers.IPProtocolICMPv4)
		case layers.LayerTypeICMPv6:
			pkt.L4Proto = uint8(layers.IPProtocolICMPv6)
		case gopacket.LayerTypePayload:
			pkt.Payload = d.payload
		}
	}

	if !haveL3 {
		d.droppedProto++
		return pkt, core.ErrUnsupportedProto
	}
	if ipv6ExtHeaders > maxIPv6ExtHeaders {
		d.droppedExtHdrs++
		return pkt, core.ErrUnsupportedProto
	}

	if pkt.IsFragmented() && d.frags != nil {
		d.frags.CachePacket(&pkt)
	}

	pkt.Truncated = len(raw.Data) < raw.WireLen
	return pkt, nil
}

func (d *Decoder) fillIPv4(pkt *core.Packet) {
	pkt.Family = core.FamilyV4
	if addr, ok := addrFromV4(d.ip4.SrcIP); ok {
		pkt.SrcIP = addr
	}
	if addr, ok := addrFromV4(d.ip4.DstIP); ok {
		pkt.DstIP = addr
	}
	pkt.L4Proto = uint8(d.ip4.Protocol)
	pkt.IPTTL = d.ip4.TTL
	pkt.IPFlags = uint8(d.ip4.Flags)
	pkt.FragID = uint32(d.ip4.Id)
	pkt.FragOffset = d.ip4.FragOffset * 8
	pkt.MoreFragments = d.ip4.Flags&layers.IPv4MoreFragments != 0
}

func (d *Decoder) fillIPv6(pkt *core.Packet) {
	pkt.Family = core.FamilyV6
	if addr, ok := addrFromV6(d.ip6.SrcIP); ok {
		pkt.SrcIP = addr
	}
	if addr, ok := addrFromV6(d.ip6.DstIP); ok {
		pkt.DstIP = addr
	}
	pkt.L4Proto = uint8(d.ip6.NextHeader)
	pkt.IPTTL = d.ip6.HopLimit
}

func (d *Decoder) fillTCP(pkt *core.Packet) {
	pkt.L4Proto = uint8(layers.IPProtocolTCP)
	pkt.SrcPort = uint16(d.tcp.SrcPort)
	pkt.DstPort = uint16(d.tcp.DstPort)
	pkt.TCPWindow = d.tcp.Window
	var flags uint8
	if d.tcp.FIN {
		flags |= core.TCPFlagFIN
	}
	if d.tcp.SYN {
		flags |= core.TCPFlagSYN
	}
	if d.tcp.RST {
		flags |= core.TCPFlagRST
	}
	if d.tcp.PSH {
		flags |= core.TCPFlagPSH
	}
	if d.tcp.ACK {
		flags |= core.TCPFlagACK
	}
	if d.tcp.URG {
		flags |= core.TCPFlagURG
	}
	pkt.TCPFlags = flags
	for _, opt := range d.tcp.Options {
		if opt.OptionType == layers.TCPOptionKindMSS && len(opt.OptionData) == 2 {
			pkt.TCPMSS = uint16(opt.OptionData[0])<<8 | uint16(opt.OptionData[1])
		}
	}
}

func (d *Decoder) fillUDP(pkt *core.Packet) {
	pkt.L4Proto = uint8(layers.IPProtocolUDP)
	pkt.SrcPort = uint16(d.udp.SrcPort)
	pkt.DstPort = uint16(d.udp.DstPort)
}

// Stats returns the cumulative count of packets dropped for being too
// short to parse, dropped for carrying an unsupported/unreadable L3
// family, and dropped for an IPv6 extension header chain deeper than
// maxIPv6ExtHeaders, in that order.
func (d *Decoder) Stats() (droppedShort, droppedProto, droppedExtHdrs uint64) {
	return d.droppedShort, d.droppedProto, d.droppedExtHdrs
}
