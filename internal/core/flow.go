package core

import "net/netip"

// Direction identifies which side of a biflow a counter or extension
// observation belongs to.
type Direction uint8

const (
	DirForward Direction = iota
	DirReverse
)

// FlowKey identifies a flow using the orientation of the packet that
// produced it: SrcAddr/SrcPort is whatever the packet called source.
// It is deliberately NOT canonicalized — the flow cache looks up the
// forward form first and, on a miss, the Reversed form, so it can
// distinguish a true miss from an existing flow seen from the other
// direction (see internal/flowcache).
type FlowKey struct {
	VLANID  uint16
	Family  Family
	Proto   uint8
	SrcAddr netip.Addr
	DstAddr netip.Addr
	SrcPort uint16
	DstPort uint16
}

// NewFlowKey builds the forward-form key for p, preserving p's own
// source/destination orientation.
func NewFlowKey(p *Packet) FlowKey {
	return FlowKey{
		VLANID:  p.VLANID,
		Family:  p.Family,
		Proto:   p.L4Proto,
		SrcAddr: p.SrcIP,
		DstAddr: p.DstIP,
		SrcPort: p.SrcPort,
		DstPort: p.DstPort,
	}
}

// Reversed returns the key with source and destination swapped, used
// to probe for an existing flow recorded from the opposite direction.
func (k FlowKey) Reversed() FlowKey {
	k.SrcAddr, k.DstAddr = k.DstAddr, k.SrcAddr
	k.SrcPort, k.DstPort = k.DstPort, k.SrcPort
	return k
}

// DirectionCounters accumulates per-direction statistics for one side
// of a biflow.
type DirectionCounters struct {
	Packets  uint64
	Bytes    uint64
	TCPFlags uint8 // bitwise OR of every TCP flag byte seen on this side
}

// Extension is a plugin-attached record chained off a Flow. At most
// one Extension with a given PluginID may be attached to a Flow at a
// time; plugins cast Data to their own concrete record type.
type Extension struct {
	PluginID int
	Data     any
	next     *Extension
}

// Flow is the long-lived record the flow cache maintains for one
// biflow between FlowCache insertion and export.
type Flow struct {
	Key FlowKey

	FirstSeenSec  int64
	FirstSeenUsec int64
	LastSeenSec   int64
	LastSeenUsec  int64

	// SrcIP/SrcPort/DstIP/DstPort preserve the orientation of the
	// packet that created the flow ("observation order"), the same
	// orientation Key was built in.
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16

	Forward DirectionCounters
	Reverse DirectionCounters

	LinkBitmap uint64 // bit i set if a packet arrived on LinkIndex i

	exthead *Extension
}

// Extension looks up the extension attached under id, or returns nil
// if none is attached.
func (f *Flow) Extension(id int) *Extension {
	for e := f.exthead; e != nil; e = e.next {
		if e.PluginID == id {
			return e
		}
	}
	return nil
}

// AddExtension appends ext to the flow's extension chain. It does not
// check for an existing entry with the same PluginID; callers that
// enforce the one-per-plugin invariant must check with Extension first.
func (f *Flow) AddExtension(ext *Extension) {
	ext.next = nil
	if f.exthead == nil {
		f.exthead = ext
		return
	}
	tail := f.exthead
	for tail.next != nil {
		tail = tail.next
	}
	tail.next = ext
}

// RemoveExtension unlinks the extension attached under id, if any, and
// reports whether one was found.
func (f *Flow) RemoveExtension(id int) bool {
	var prev *Extension
	for e := f.exthead; e != nil; e = e.next {
		if e.PluginID == id {
			if prev == nil {
				f.exthead = e.next
			} else {
				prev.next = e.next
			}
			return true
		}
		prev = e
	}
	return false
}

// Extensions returns the attached extensions in insertion order. The
// returned slice is freshly allocated; mutating it does not affect the
// flow's chain.
func (f *Flow) Extensions() []*Extension {
	var out []*Extension
	for e := f.exthead; e != nil; e = e.next {
		out = append(out, e)
	}
	return out
}

// Reset clears f for reuse from a free list, dropping every counter
// and extension so a stale plugin record can never leak into the next
// flow that reuses this struct.
func (f *Flow) Reset() {
	*f = Flow{}
}
