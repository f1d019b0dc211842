// Package capture implements Capturer backends that hand raw frames
// to the probe's indexer. PcapCapturer wraps gopacket/pcap for both
// live interface capture and offline replay from a capture file;
// other backends (AF_PACKET, DPDK, eBPF) are external collaborators
// and out of scope here.
package capture

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/pcap"

	"github.com/otusprobe/flowprobe/internal/core"
	"github.com/otusprobe/flowprobe/internal/log"
)

const defaultSnapLen = 65535

// Config is PcapCapturer's configuration. Exactly one of Interface or
// ReadFile should be set: Interface opens a live capture, ReadFile
// replays a pcap file.
type Config struct {
	Interface   string
	ReadFile    string
	BPFFilter   string
	SnapLen     int
	Promiscuous bool
	LinkIndex   int
}

// PcapCapturer captures frames via libpcap, live or from a file.
type PcapCapturer struct {
	name   string
	cfg    Config
	log    log.Logger
	handle *pcap.Handle

	packetsReceived atomic.Uint64
	packetsDropped  atomic.Uint64
}

// NewPcapCapturer builds a PcapCapturer from cfg.
func NewPcapCapturer(cfg Config, logger log.Logger) *PcapCapturer {
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = defaultSnapLen
	}
	return &PcapCapturer{name: "pcap", cfg: cfg, log: logger}
}

// Name identifies this capturer instance.
func (c *PcapCapturer) Name() string { return c.name }

// Capture opens the configured source and streams RawFrames into out
// until ctx is cancelled, the source is exhausted, or a fatal error
// occurs. It never drops a frame silently past out's capacity: a full
// channel is treated the same as backpressure, blocking the capture
// loop, since losing frames before the indexer sees them would break
// ordinal assignment downstream.
func (c *PcapCapturer) Capture(ctx context.Context, out chan<- core.RawFrame) error {
	handle, err := c.open()
	if err != nil {
		return fmt.Errorf("capture: open source: %w", err)
	}
	c.handle = handle
	defer handle.Close()

	if c.cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(c.cfg.BPFFilter); err != nil {
			return fmt.Errorf("capture: apply bpf filter %q: %w", c.cfg.BPFFilter, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, ci, err := handle.ZeroCopyReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			if err == pcap.NextErrorNoMorePackets {
				c.log.Info("capture: source exhausted")
				return nil
			}
			return fmt.Errorf("capture: read packet: %w", err)
		}

		c.packetsReceived.Add(1)
		frame := core.RawFrame{
			Data:        append([]byte(nil), data...),
			TimestampSec:  ci.Timestamp.Unix(),
			TimestampUsec: int64(ci.Timestamp.Nanosecond() / 1000),
			WireLen:       ci.Length,
			LinkIndex:     c.cfg.LinkIndex,
		}

		select {
		case out <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *PcapCapturer) open() (*pcap.Handle, error) {
	if c.cfg.ReadFile != "" {
		return pcap.OpenOffline(c.cfg.ReadFile)
	}
	if c.cfg.Interface == "" {
		return nil, fmt.Errorf("capture: neither interface nor read file configured")
	}
	return pcap.OpenLive(c.cfg.Interface, int32(c.cfg.SnapLen), c.cfg.Promiscuous, 100*time.Millisecond)
}

// Stats reports the running receive/drop counters.
func (c *PcapCapturer) Stats() (received, dropped uint64) {
	return c.packetsReceived.Load(), c.packetsDropped.Load()
}
