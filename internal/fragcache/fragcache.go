// Package fragcache implements the fragment port cache: a small
// bounded cache that lets the parser recover the L4 source/destination
// ports of non-first IP fragments by remembering the ports seen on the
// first fragment of the same datagram. It never reassembles fragment
// payloads; it only inherits the five-tuple's port pair.
package fragcache

import (
	"net/netip"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/otusprobe/flowprobe/internal/core"
)

// defaultFIFOSize is the FIFO's initial capacity. It must stay a power
// of two; Cache doubles it on overflow rather than ever picking a
// non-power-of-two size.
const defaultFIFOSize = 16

// key identifies one in-flight fragmented datagram.
type key struct {
	family core.Family
	vlan   uint16
	fragID uint32
	srcIP  netip.Addr
	dstIP  netip.Addr
}

func keyFromPacket(pkt *core.Packet) key {
	return key{
		family: pkt.Family,
		vlan:   pkt.VLANID,
		fragID: pkt.FragID,
		srcIP:  pkt.SrcIP,
		dstIP:  pkt.DstIP,
	}
}

func (k key) hash() uint64 {
	var buf [2 + 2 + 4 + 16 + 16]byte
	buf[0] = byte(k.family)
	buf[1] = byte(k.vlan)
	buf[2] = byte(k.vlan >> 8)
	buf[3] = byte(k.fragID)
	buf[4] = byte(k.fragID >> 8)
	buf[5] = byte(k.fragID >> 16)
	buf[6] = byte(k.fragID >> 24)
	srcBytes := k.srcIP.As16()
	dstBytes := k.dstIP.As16()
	copy(buf[8:24], srcBytes[:])
	copy(buf[24:40], dstBytes[:])
	return xxhash.Sum64(buf[:])
}

type value struct {
	srcPort       uint16
	dstPort       uint16
	timestampSec  int64
	timestampUsec int64
}

func valueFromPacket(pkt *core.Packet) value {
	return value{
		srcPort:       pkt.SrcPort,
		dstPort:       pkt.DstPort,
		timestampSec:  pkt.TimestampSec,
		timestampUsec: pkt.TimestampUsec,
	}
}

func (v value) fillPacket(pkt *core.Packet) {
	pkt.SrcPort = v.srcPort
	pkt.DstPort = v.dstPort
}

type fifoItem struct {
	k             key
	h             uint64
	timestampSec  int64
	timestampUsec int64
}

// fifo is a power-of-two-capacity circular buffer that doubles in
// place when full, matching the original C++ FIFO exactly.
type fifo struct {
	buf        []fifoItem
	read, writ int
}

func newFIFO() *fifo {
	return &fifo{buf: make([]fifoItem, defaultFIFOSize)}
}

func (f *fifo) mod(v int) int { return v & (len(f.buf) - 1) }

func (f *fifo) isEmpty() bool { return f.read == f.writ }

func (f *fifo) isFull() bool { return f.read == f.mod(f.writ+1) }

func (f *fifo) peek() (fifoItem, bool) {
	if f.isEmpty() {
		return fifoItem{}, false
	}
	return f.buf[f.read], true
}

func (f *fifo) pop() (fifoItem, bool) {
	if f.isEmpty() {
		return fifoItem{}, false
	}
	item := f.buf[f.read]
	f.read = f.mod(f.read + 1)
	if f.isEmpty() {
		f.read, f.writ = 0, 0
	}
	return item, true
}

func (f *fifo) push(item fifoItem) {
	if f.isFull() {
		f.resize()
	}
	f.buf[f.writ] = item
	f.writ = f.mod(f.writ + 1)
}

func (f *fifo) resize() {
	newBuf := make([]fifoItem, len(f.buf)*2)
	if f.read <= f.writ {
		copy(newBuf, f.buf[:f.writ])
	} else {
		n := copy(newBuf, f.buf[f.read:])
		copy(newBuf[n:], f.buf[:f.writ])
		f.writ = n + f.writ
		f.read = 0
	}
	f.buf = newBuf
}

// Cache is the fragment port cache described above. It is safe for
// concurrent use by multiple parser goroutines.
type Cache struct {
	mu          sync.Mutex
	entries     map[uint64]value
	buf         *fifo
	timeoutUsec int64
}

// New builds a Cache that expires entries after timeout (given in
// microseconds, matching the core.Packet timestamp resolution). A
// timeout of 0 uses the original implementation's 2 second default.
func New(timeoutUsec int64) *Cache {
	if timeoutUsec <= 0 {
		timeoutUsec = 2_000_000
	}
	return &Cache{
		entries:     make(map[uint64]value),
		buf:         newFIFO(),
		timeoutUsec: timeoutUsec,
	}
}

// CachePacket is the port-cache half of decoding a fragmented
// datagram. Called only when pkt.IsFragmented(). On the first
// fragment it remembers the ports; on a later fragment it fills them
// in from whatever was remembered, leaving them untouched (not
// zeroed) if the first fragment has not been seen yet.
func (c *Cache) CachePacket(pkt *core.Packet) {
	if pkt.IsFirstFragment() {
		c.addPacket(pkt)
		return
	}
	c.fillInfo(pkt)
}

func (c *Cache) addPacket(pkt *core.Packet) {
	k := keyFromPacket(pkt)
	h := k.hash()
	v := valueFromPacket(pkt)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeOld(pkt.TimestampSec, pkt.TimestampUsec)
	c.buf.push(fifoItem{k: k, h: h, timestampSec: v.timestampSec, timestampUsec: v.timestampUsec})
	c.entries[h] = v
}

func (c *Cache) fillInfo(pkt *core.Packet) bool {
	k := keyFromPacket(pkt)
	h := k.hash()

	c.mu.Lock()
	v, ok := c.entries[h]
	c.mu.Unlock()

	if !ok {
		return false
	}
	v.fillPacket(pkt)
	return true
}

// removeOld evicts every FIFO entry older than the configured timeout
// as of (nowSec, nowUsec). Caller must hold c.mu.
func (c *Cache) removeOld(nowSec, nowUsec int64) {
	for {
		item, ok := c.buf.peek()
		if !ok {
			return
		}
		age := (nowSec-item.timestampSec)*1_000_000 + (nowUsec - item.timestampUsec)
		if age < c.timeoutUsec {
			return
		}
		c.buf.pop()
		if cur, exists := c.entries[item.h]; exists && cur.timestampSec == item.timestampSec && cur.timestampUsec == item.timestampUsec {
			delete(c.entries, item.h)
		}
	}
}

// Len reports the number of live entries, for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
