package flowcache

import (
	"net/netip"

	"github.com/cespare/xxhash/v2"

	"github.com/otusprobe/flowprobe/internal/core"
)

func hashKey(k core.FlowKey) uint64 {
	var buf [2 + 2 + 1 + 16 + 16 + 2 + 2]byte
	off := 0
	buf[off] = byte(k.VLANID)
	buf[off+1] = byte(k.VLANID >> 8)
	off += 2
	buf[off] = byte(k.Family)
	off++
	buf[off] = k.Proto
	off++
	off += copyAddr(buf[off:], k.SrcAddr)
	off += copyAddr(buf[off:], k.DstAddr)
	buf[off] = byte(k.SrcPort)
	buf[off+1] = byte(k.SrcPort >> 8)
	off += 2
	buf[off] = byte(k.DstPort)
	buf[off+1] = byte(k.DstPort >> 8)
	off += 2
	return xxhash.Sum64(buf[:off])
}

func copyAddr(dst []byte, a netip.Addr) int {
	b := a.As16()
	copy(dst, b[:])
	return len(b)
}
