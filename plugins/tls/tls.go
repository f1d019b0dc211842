// Package tls enriches flows with TLS ClientHello/ServerHello
// metadata: the server name, negotiated ALPN protocol, handshake
// version and a JA3 client fingerprint, parsed directly off the wire
// without terminating the handshake.
package tls

import (
	"context"
	"crypto/md5"
	"strconv"
	"strings"

	"github.com/otusprobe/flowprobe/internal/core"
	"github.com/otusprobe/flowprobe/internal/log"
	"github.com/otusprobe/flowprobe/internal/plugin"
)

const pluginName = "tls"

// Record is the flow extension this plugin attaches: one per flow
// that carried a parseable ClientHello.
type Record struct {
	Version uint16
	SNI     string
	ALPN    string
	JA3     string
	JA3Hash [md5.Size]byte
}

// Plugin implements core.PacketPlugin, parsing the first ClientHello
// it sees on a flow and amending it with ALPN from the matching
// ServerHello.
type Plugin struct {
	extID     int
	parsedSNI uint64
}

func init() {
	plugin.Register(pluginName, func() core.PacketPlugin { return &Plugin{} })
}

func (p *Plugin) Name() string { return pluginName }

func (p *Plugin) Init(cfg map[string]string) error {
	id, err := plugin.ExtensionID(pluginName)
	if err != nil {
		return err
	}
	p.extID = id
	return nil
}

func (p *Plugin) PreCreate(pkt *core.Packet) bool { return true }

func (p *Plugin) PostCreate(flow *core.Flow, pkt *core.Packet) {
	p.addRecord(flow, pkt)
}

func (p *Plugin) PreUpdate(flow *core.Flow, pkt *core.Packet) core.FlushReason {
	if ext := flow.Extension(p.extID); ext != nil {
		if rec, ok := ext.Data.(*Record); ok && rec.ALPN == "" {
			if parsed, ok := parse(pkt.Payload); ok && parsed.ALPN != "" {
				rec.ALPN = parsed.ALPN
			}
		}
		return core.FlushNone
	}
	p.addRecord(flow, pkt)
	return core.FlushNone
}

func (p *Plugin) PostUpdate(flow *core.Flow, pkt *core.Packet) core.FlushReason {
	return core.FlushNone
}

func (p *Plugin) PreExport(flow *core.Flow) {}

func (p *Plugin) Finish(ctx context.Context) error {
	if logger := log.GetLogger(); logger != nil {
		logger.Infof("tls plugin: parsed %d client hellos", p.parsedSNI)
	}
	return nil
}

// ParsedSNI reports how many ClientHellos this plugin successfully
// extracted a server name or JA3 fingerprint from.
func (p *Plugin) ParsedSNI() uint64 { return p.parsedSNI }

func (p *Plugin) addRecord(flow *core.Flow, pkt *core.Packet) {
	rec, ok := parse(pkt.Payload)
	if !ok {
		return
	}
	p.parsedSNI++
	flow.AddExtension(&core.Extension{PluginID: p.extID, Data: rec})
}

// parse attempts to read data as a single TLS handshake record
// (ClientHello or ServerHello) and build a Record from it. It returns
// ok=false on any malformed or unrecognized input, in which case the
// caller must not attach anything to the flow.
func parse(data []byte) (*Record, bool) {
	c := newCursor(data)
	if !checkRecord(c) {
		return nil, false
	}
	hs, ok := checkHandshake(c)
	if !ok {
		return nil, false
	}

	rec := &Record{Version: hs.version}
	var ja3 strings.Builder
	ja3.WriteString(strconv.Itoa(int(hs.version)))
	ja3.WriteByte(',')

	if !skipRandom(c) || !skipSessionID(c) {
		return nil, false
	}

	switch hs.hsType {
	case handshakeClientHello:
		if !getJA3CipherSuites(c, &ja3) {
			return nil, false
		}
		if !skipCompressionMethod(c) {
			return nil, false
		}
	case handshakeServerHello:
		if c.remaining() < 3 {
			return nil, false
		}
		c.advance(2) // cipher suite
		c.advance(1) // compression method
	default:
		return nil, false
	}

	if !checkExtensionsLength(c) {
		return nil, false
	}

	ellipticCurves, ecPointFormats, ok := obtainExtensions(c, hs.hsType, rec, &ja3)
	if !ok {
		return nil, false
	}

	if hs.hsType == handshakeClientHello {
		ja3.WriteByte(',')
		ja3.WriteString(ellipticCurves)
		ja3.WriteByte(',')
		ja3.WriteString(ecPointFormats)
		rec.JA3 = ja3.String()
		rec.JA3Hash = md5.Sum([]byte(rec.JA3))
	}

	return rec, true
}

// obtainExtensions walks the extensions block, filling rec.SNI for a
// ClientHello or rec.ALPN for a ServerHello, and building the
// elliptic-curve and EC-point-format JA3 segments along the way.
// ok is false only on a length mismatch that makes the block
// unparseable; finding no interesting extension is not an error.
func obtainExtensions(c *cursor, hsType uint8, rec *Record, ja3 *strings.Builder) (ellipticCurves, ecPointFormats string, ok bool) {
	for c.remaining() >= extHeaderLen {
		extType := c.uint16At(0)
		extLen := int(c.uint16At(2))
		c.advance(extHeaderLen)
		if extLen > c.remaining() {
			break
		}

		switch hsType {
		case handshakeClientHello:
			switch extType {
			case extServerName:
				rec.SNI = getServerName(c)
			case extEllipticCurves:
				ellipticCurves = getJA3EllipticCurves(c)
			case extECPointFormats:
				ecPointFormats = getJA3ECPointFormats(c)
			}
		case handshakeServerHello:
			if extType == extALPN {
				rec.ALPN = getALPN(c)
				return ellipticCurves, ecPointFormats, true
			}
		}

		c.advance(extLen)
		if !isGreaseValue(extType) {
			ja3.WriteString(strconv.Itoa(int(extType)))
			if c.remaining() >= extHeaderLen {
				ja3.WriteByte('-')
			}
		}
	}
	if hsType == handshakeServerHello {
		return ellipticCurves, ecPointFormats, false
	}
	return ellipticCurves, ecPointFormats, true
}
