package core

import "context"

// Plugin is implemented by every process plugin. Name must be stable
// and unique; it is used both for configuration lookup and as the key
// under which the plugin's extension id is registered.
type Plugin interface {
	Name() string
	Init(cfg map[string]string) error
}

// PacketPlugin receives every packet assigned to a flow, in indexer
// order, before and after the flow record itself is updated.
type PacketPlugin interface {
	Plugin

	// PreCreate runs for every packet, before the flow cache looks up
	// its flow. A false return tells the flow cache to drop the packet
	// (e.g. malformed handshake).
	PreCreate(pkt *Packet) bool

	// PostCreate runs once, right after a Flow has been allocated and
	// the triggering packet applied to its counters.
	PostCreate(flow *Flow, pkt *Packet)

	// PreUpdate runs for every packet matched to an existing flow,
	// before counters are updated. The FlushReason return lets a
	// plugin force early export/reinsertion.
	PreUpdate(flow *Flow, pkt *Packet) FlushReason

	// PostUpdate runs after counters are updated for an existing flow.
	PostUpdate(flow *Flow, pkt *Packet) FlushReason

	// PreExport runs once, immediately before a flow record is handed
	// to the Exporter, for every eviction path (timeout, LRU, FIN/RST,
	// explicit flush).
	PreExport(flow *Flow)

	// Finish runs once at shutdown after every in-flight flow has been
	// flushed, giving the plugin a chance to log cumulative stats.
	Finish(ctx context.Context) error
}

// Exporter is the external collaborator that serializes an evicted
// Flow onto the wire (e.g. IPFIX). Implementations are out of scope
// for the probe core; Export must not retain flow or any Extension
// Data after it returns.
type Exporter interface {
	Export(ctx context.Context, flow *Flow) error
	Close(ctx context.Context) error
}

// Capturer is the external collaborator that feeds raw frames into
// the probe. Implementations (AF_PACKET, pcap, NDP, ...) are out of
// scope for the probe core; Capture must stop and return promptly
// when ctx is cancelled.
type Capturer interface {
	Name() string
	Capture(ctx context.Context, out chan<- RawFrame) error
}

// RawFrame is an undecoded captured frame plus its capture metadata.
type RawFrame struct {
	Data          []byte
	TimestampSec  int64
	TimestampUsec int64
	WireLen       int
	LinkIndex     int
}
