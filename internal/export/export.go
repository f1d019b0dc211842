// Package export defines the probe's Exporter contract and the IPFIX
// record byte layout an on-wire implementation must follow, plus a
// trivial console exporter used for development and tests. A real
// IPFIX collector/sender is an external collaborator and out of
// scope here.
package export

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/otusprobe/flowprobe/internal/core"
	"github.com/otusprobe/flowprobe/internal/log"
)

// PutUint16BE, PutUint32BE and PutUint64BE append a big-endian
// ("network byte order") integer to buf, matching the wire layout
// IPFIX records use for fixed-width fields.
func PutUint16BE(buf []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(buf, v)
}

func PutUint32BE(buf []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(buf, v)
}

func PutUint64BE(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

// PutVarString appends s as an IPFIX variable-length string: a single
// length byte when s is shorter than 255 bytes, or 0xFF followed by a
// big-endian uint16 length for longer strings, followed by the raw
// bytes.
func PutVarString(buf []byte, s string) []byte {
	if len(s) < 255 {
		buf = append(buf, byte(len(s)))
		return append(buf, s...)
	}
	buf = append(buf, 0xFF)
	buf = PutUint16BE(buf, uint16(len(s)))
	return append(buf, s...)
}

// ConsoleExporter writes a one-line human-readable summary of every
// evicted flow to an io.Writer. It is meant for development and
// tests, not production export.
type ConsoleExporter struct {
	w             io.Writer
	log           log.Logger
	exportedCount atomic.Uint64
}

// NewConsoleExporter builds a ConsoleExporter writing to w.
func NewConsoleExporter(w io.Writer, logger log.Logger) *ConsoleExporter {
	return &ConsoleExporter{w: w, log: logger}
}

// Export writes a summary line for flow and never returns an error:
// a write failure to the console is logged, not propagated.
func (e *ConsoleExporter) Export(ctx context.Context, flow *core.Flow) error {
	e.exportedCount.Add(1)
	line := fmt.Sprintf(
		"%s:%d -> %s:%d proto=%d pkts=%d/%d bytes=%d/%d dur=%dus\n",
		flow.SrcIP, flow.SrcPort, flow.DstIP, flow.DstPort, flow.Key.Proto,
		flow.Forward.Packets, flow.Reverse.Packets,
		flow.Forward.Bytes, flow.Reverse.Bytes,
		(flow.LastSeenSec-flow.FirstSeenSec)*1_000_000+(flow.LastSeenUsec-flow.FirstSeenUsec),
	)
	if _, err := io.WriteString(e.w, line); err != nil {
		e.log.WithError(err).Warn("console exporter: write failed")
	}
	return nil
}

// Close reports the total number of flows exported over the
// exporter's lifetime.
func (e *ConsoleExporter) Close(ctx context.Context) error {
	e.log.Infof("console exporter: exported %d flows", e.exportedCount.Load())
	return nil
}
