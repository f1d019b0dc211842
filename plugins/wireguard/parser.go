package wireguard

import "encoding/binary"

const (
	packetTypeInitToResp    = 0x01
	packetTypeRespToInit    = 0x02
	packetTypeCookieReply   = 0x03
	packetTypeTransportData = 0x04

	lenInitToResp       = 148
	lenRespToInit       = 92
	lenCookieReply      = 64
	minLenTransportData = 32
)

// dnsQueryMask matches bytes 4..7 of a typical DNS query header:
// question count 0x0001, answer count 0x0000. A WireGuard
// false positive tends to be a DNS packet whose bytes happen to pass
// the type/reserved checks, and those bytes usually look like this.
var dnsQueryMask = [4]byte{0x00, 0x01, 0x00, 0x00}

// classifyResult carries what a single packet told us about the
// handshake state of a flow, to be applied by the caller.
type classifyResult struct {
	srcPeer    uint32
	dstPeer    uint32
	setSrcPeer bool
	setDstPeer bool
	confidence uint8
	needFlush  bool
}

// classify inspects one UDP payload against the WireGuard message
// formats and, on a recognized message, reports which peer index
// field(s) it yields and how confident the match is. sourcePkt is
// true when data travelled in the flow's original (forward) direction.
//
// curSrcPeer/curDstPeer are the peer indices already recorded on the
// flow (0 if none yet) and are only consulted for the init-to-resp
// case, where a mismatch against an already-known peer index signals
// that this packet actually belongs to a new handshake and the flow
// should be flushed and reinserted.
func classify(data []byte, sourcePkt bool, curSrcPeer, curDstPeer uint32) (classifyResult, bool) {
	var res classifyResult

	if len(data) < minLenTransportData {
		return res, false
	}

	pktType := data[0]
	if pktType < packetTypeInitToResp || pktType > packetTypeTransportData {
		return res, false
	}
	if data[1] != 0 || data[2] != 0 || data[3] != 0 {
		return res, false
	}

	switch pktType {
	case packetTypeInitToResp:
		if len(data) != lenInitToResp {
			return res, false
		}
		newPeer := binary.LittleEndian.Uint32(data[4:8])
		curPeer := curDstPeer
		if sourcePkt {
			curPeer = curSrcPeer
		}
		if curPeer != 0 && curPeer != newPeer {
			res.needFlush = true
			return res, false
		}
		if sourcePkt {
			res.srcPeer, res.setSrcPeer = newPeer, true
		} else {
			res.dstPeer, res.setDstPeer = newPeer, true
		}

	case packetTypeRespToInit:
		if len(data) != lenRespToInit {
			return res, false
		}
		src := binary.LittleEndian.Uint32(data[4:8])
		dst := binary.LittleEndian.Uint32(data[8:12])
		if !sourcePkt {
			src, dst = dst, src
		}
		res.srcPeer, res.setSrcPeer = src, true
		res.dstPeer, res.setDstPeer = dst, true

	case packetTypeCookieReply:
		if len(data) != lenCookieReply {
			return res, false
		}
		peer := binary.LittleEndian.Uint32(data[4:8])
		if sourcePkt {
			res.dstPeer, res.setDstPeer = peer, true
		} else {
			res.srcPeer, res.setSrcPeer = peer, true
		}

	case packetTypeTransportData:
		if len(data) < minLenTransportData || len(data)%16 != 0 {
			return res, false
		}
		peer := binary.LittleEndian.Uint32(data[4:8])
		if sourcePkt {
			res.dstPeer, res.setDstPeer = peer, true
		} else {
			res.srcPeer, res.setSrcPeer = peer, true
		}
	}

	if data[4] == dnsQueryMask[0] && data[5] == dnsQueryMask[1] && data[6] == dnsQueryMask[2] && data[7] == dnsQueryMask[3] {
		res.confidence = confidenceLow
	} else {
		res.confidence = confidenceHigh
	}

	return res, true
}
