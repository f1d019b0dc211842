package wireguard

import (
	"net/netip"
	"testing"

	"github.com/otusprobe/flowprobe/internal/core"
)

func newUDPPacket(payload []byte, reverse bool) *core.Packet {
	return &core.Packet{
		SrcIP:           netip.MustParseAddr("10.0.0.1"),
		DstIP:           netip.MustParseAddr("10.0.0.2"),
		L4Proto:         protoUDP,
		Payload:         payload,
		SourceIsReverse: reverse,
	}
}

func TestPluginPostCreateAttachesExtensionOnMatch(t *testing.T) {
	p := &Plugin{extID: 1}
	flow := &core.Flow{}
	pkt := newUDPPacket(buildInitToResp(5), false)

	p.PostCreate(flow, pkt)

	ext := flow.Extension(1)
	if ext == nil {
		t.Fatal("expected an extension to be attached")
	}
	rec, ok := ext.Data.(*Record)
	if !ok {
		t.Fatalf("extension data has unexpected type %T", ext.Data)
	}
	if rec.SrcPeer != 5 {
		t.Fatalf("expected SrcPeer=5, got %d", rec.SrcPeer)
	}
}

func TestPluginPostCreateSkipsNonUDP(t *testing.T) {
	p := &Plugin{extID: 1}
	flow := &core.Flow{}
	pkt := newUDPPacket(buildInitToResp(5), false)
	pkt.L4Proto = 6

	p.PostCreate(flow, pkt)

	if flow.Extension(1) != nil {
		t.Fatal("did not expect an extension on a non-UDP packet")
	}
}

func TestPluginPreUpdateRequestsReinsertOnPeerMismatch(t *testing.T) {
	p := &Plugin{extID: 1}
	flow := &core.Flow{}
	flow.AddExtension(&core.Extension{PluginID: 1, Data: &Record{Confidence: confidenceHigh, SrcPeer: 9}})

	reason := p.PreUpdate(flow, newUDPPacket(buildInitToResp(5), false))
	if reason != core.FlushWithReinsert {
		t.Fatalf("expected FlushWithReinsert, got %v", reason)
	}
}

func TestPluginPreUpdateClearsConfidenceWhenNoLongerWireGuard(t *testing.T) {
	p := &Plugin{extID: 1}
	flow := &core.Flow{}
	rec := &Record{Confidence: confidenceHigh}
	flow.AddExtension(&core.Extension{PluginID: 1, Data: rec})

	notWG := make([]byte, minLenTransportData)
	notWG[0] = 0x09 // invalid type

	reason := p.PreUpdate(flow, newUDPPacket(notWG, false))
	if reason != core.FlushNone {
		t.Fatalf("expected FlushNone, got %v", reason)
	}
	if rec.Confidence != 0 {
		t.Fatal("expected confidence to be cleared once classification fails")
	}
}
