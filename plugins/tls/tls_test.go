package tls

import (
	"net/netip"
	"testing"

	"github.com/otusprobe/flowprobe/internal/core"
)

func newPacket(payload []byte) *core.Packet {
	return &core.Packet{
		SrcIP:   netip.MustParseAddr("10.0.0.1"),
		DstIP:   netip.MustParseAddr("10.0.0.2"),
		L4Proto: 6,
		Payload: payload,
	}
}

func TestPluginPostCreateAttachesRecordOnClientHello(t *testing.T) {
	p := &Plugin{extID: 2}
	flow := &core.Flow{}
	p.PostCreate(flow, newPacket(buildClientHello("example.com")))

	ext := flow.Extension(2)
	if ext == nil {
		t.Fatal("expected a TLS extension to be attached")
	}
	rec, ok := ext.Data.(*Record)
	if !ok {
		t.Fatalf("extension data has unexpected type %T", ext.Data)
	}
	if rec.SNI != "example.com" {
		t.Fatalf("expected SNI=example.com, got %q", rec.SNI)
	}
	if p.ParsedSNI() != 1 {
		t.Fatalf("expected ParsedSNI()=1, got %d", p.ParsedSNI())
	}
}

func TestPluginPostCreateIgnoresNonTLS(t *testing.T) {
	p := &Plugin{extID: 2}
	flow := &core.Flow{}
	p.PostCreate(flow, newPacket([]byte("not tls at all")))

	if flow.Extension(2) != nil {
		t.Fatal("did not expect an extension from non-TLS payload")
	}
}

func TestPluginPreUpdateFillsALPNFromServerHello(t *testing.T) {
	p := &Plugin{extID: 2}
	flow := &core.Flow{}
	flow.AddExtension(&core.Extension{PluginID: 2, Data: &Record{Version: 0x0303, SNI: "example.com"}})

	reason := p.PreUpdate(flow, newPacket(buildServerHelloWithALPN("h2")))
	if reason != core.FlushNone {
		t.Fatalf("expected FlushNone, got %v", reason)
	}

	ext := flow.Extension(2)
	rec := ext.Data.(*Record)
	if rec.ALPN != "h2" {
		t.Fatalf("expected ALPN=h2, got %q", rec.ALPN)
	}
	if rec.SNI != "example.com" {
		t.Fatal("expected SNI to be left untouched by the ServerHello pass")
	}
}

// buildServerHelloWithALPN assembles a minimal ServerHello handshake
// record carrying a single ALPN extension, enough to exercise the
// ServerHello branch of obtainExtensions.
func buildServerHelloWithALPN(proto string) []byte {
	var handshakeBody []byte
	handshakeBody = append(handshakeBody, 0x03, 0x03)           // server version
	handshakeBody = append(handshakeBody, make([]byte, 32)...)  // random
	handshakeBody = append(handshakeBody, 0x00)                 // session id length 0
	handshakeBody = append(handshakeBody, 0x00, 0x2f)           // cipher suite
	handshakeBody = append(handshakeBody, 0x00)                 // compression method

	alpnList := append([]byte{byte(len(proto))}, []byte(proto)...)
	var alpnExtBody []byte
	alpnExtBody = appendU16(alpnExtBody, uint16(len(alpnList)))
	alpnExtBody = append(alpnExtBody, alpnList...)

	var extensions []byte
	extensions = appendExt(extensions, extALPN, alpnExtBody)

	handshakeBody = appendU16(handshakeBody, uint16(len(extensions)))
	handshakeBody = append(handshakeBody, extensions...)

	handshake := make([]byte, 0, handshakeHeaderLen+len(handshakeBody))
	handshake = append(handshake, handshakeServerHello)
	handshake = append(handshake, byte(len(handshakeBody)>>16), byte(len(handshakeBody)>>8), byte(len(handshakeBody)))
	handshake = append(handshake, handshakeBody...)

	record := make([]byte, 0, recordHeaderLen+len(handshake))
	record = append(record, recordContentTypeHandshake, 0x03, 0x01)
	record = appendU16(record, uint16(len(handshake)))
	record = append(record, handshake...)

	return record
}
