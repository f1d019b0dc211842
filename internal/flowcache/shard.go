package flowcache

import (
	"context"

	"github.com/otusprobe/flowprobe/internal/core"
)

// shard owns a disjoint slice of the cache's rows and is meant to be
// driven exclusively by one worker goroutine; it does no internal
// locking of its own.
type shard struct {
	rows        [][]*core.Flow
	rowMask     uint64
	shardBits   uint
	rowSize     int
	scanCursor  int
	split       bool

	activeTimeoutUsec   int64
	inactiveTimeoutUsec int64

	plugins  PluginSet
	exporter core.Exporter
}

// PluginSet is the subset of internal/plugin.Set that flowcache needs,
// kept as an interface so tests can substitute a stub without pulling
// in the plugin package's registration machinery.
type PluginSet interface {
	PreCreate(pkt *core.Packet) bool
	PostCreate(flow *core.Flow, pkt *core.Packet)
	PreUpdate(flow *core.Flow, pkt *core.Packet) core.FlushReason
	PostUpdate(flow *core.Flow, pkt *core.Packet) core.FlushReason
	PreExport(flow *core.Flow)
}

func newShard(rowsPerShard, rowSize int, shardBits uint, split bool, activeTimeoutUsec, inactiveTimeoutUsec int64, plugins PluginSet, exporter core.Exporter) *shard {
	return &shard{
		rows:                make([][]*core.Flow, rowsPerShard),
		rowMask:             uint64(rowsPerShard - 1),
		shardBits:           shardBits,
		rowSize:             rowSize,
		split:               split,
		activeTimeoutUsec:   activeTimeoutUsec,
		inactiveTimeoutUsec: inactiveTimeoutUsec,
		exporter:            exporter,
		plugins:             plugins,
	}
}

func (s *shard) rowIndex(hash uint64) int {
	return int((hash >> s.shardBits) & s.rowMask)
}

func findInRow(row []*core.Flow, key core.FlowKey) int {
	for i, f := range row {
		if f.Key == key {
			return i
		}
	}
	return -1
}

// Process runs the full insert/update protocol for one packet routed
// to this shard.
func (s *shard) Process(ctx context.Context, pkt *core.Packet) error {
	if s.plugins != nil && !s.plugins.PreCreate(pkt) {
		return nil
	}

	fwdKey := core.NewFlowKey(pkt)
	fwdHash := hashKey(fwdKey)
	rowIdx := s.rowIndex(fwdHash)
	idx := findInRow(s.rows[rowIdx], fwdKey)
	reverse := false

	if idx < 0 && s.split {
		revKey := fwdKey.Reversed()
		revHash := hashKey(revKey)
		revRowIdx := s.rowIndex(revHash)
		revIdx := findInRow(s.rows[revRowIdx], revKey)
		if revIdx >= 0 {
			rowIdx, idx, reverse = revRowIdx, revIdx, true
		}
	}

	if idx < 0 {
		if err := s.insertNew(ctx, pkt, rowIdx, fwdKey); err != nil {
			return err
		}
		s.scanOneRow(ctx, pkt)
		return nil
	}

	pkt.SourceIsReverse = reverse
	flow := s.rows[rowIdx][idx]

	if s.plugins != nil {
		switch s.plugins.PreUpdate(flow, pkt) {
		case core.FlushExport, core.FlushWithReinsert:
			if err := s.evictAt(ctx, rowIdx, idx); err != nil {
				return err
			}
			if err := s.insertNew(ctx, pkt, s.rowIndex(fwdHash), fwdKey); err != nil {
				return err
			}
			s.scanOneRow(ctx, pkt)
			return nil
		}
	}

	mergePacket(flow, pkt, reverse)
	s.moveToFront(rowIdx, idx)

	flushNow := pkt.TCPFlags&(core.TCPFlagFIN|core.TCPFlagRST) != 0
	if s.plugins != nil {
		flushNow = flushNow || s.plugins.PostUpdate(flow, pkt) != core.FlushNone
	}

	if flushNow {
		idx = 0 // moveToFront just put it at the front
		if err := s.evictAt(ctx, rowIdx, idx); err != nil {
			return err
		}
	}

	s.scanOneRow(ctx, pkt)
	return nil
}

func mergePacket(flow *core.Flow, pkt *core.Packet, reverse bool) {
	flow.LastSeenSec, flow.LastSeenUsec = pkt.TimestampSec, pkt.TimestampUsec
	flow.LinkBitmap |= uint64(1) << uint(pkt.LinkIndex%64)

	counters := &flow.Forward
	if reverse {
		counters = &flow.Reverse
	}
	counters.Packets++
	counters.Bytes += uint64(pkt.WireLen)
	counters.TCPFlags |= pkt.TCPFlags
}

func newFlow(pkt *core.Packet, key core.FlowKey) *core.Flow {
	f := &core.Flow{
		Key:           key,
		FirstSeenSec:  pkt.TimestampSec,
		FirstSeenUsec: pkt.TimestampUsec,
		LastSeenSec:   pkt.TimestampSec,
		LastSeenUsec:  pkt.TimestampUsec,
		SrcIP:         pkt.SrcIP,
		DstIP:         pkt.DstIP,
		SrcPort:       pkt.SrcPort,
		DstPort:       pkt.DstPort,
	}
	f.LinkBitmap = uint64(1) << uint(pkt.LinkIndex%64)
	f.Forward.Packets = 1
	f.Forward.Bytes = uint64(pkt.WireLen)
	f.Forward.TCPFlags = pkt.TCPFlags
	return f
}

// insertNew allocates a flow for pkt under key into rowIdx, evicting
// the row's LRU entry first if the row is already full.
func (s *shard) insertNew(ctx context.Context, pkt *core.Packet, rowIdx int, key core.FlowKey) error {
	row := s.rows[rowIdx]
	if len(row) >= s.rowSize {
		if err := s.evictAt(ctx, rowIdx, len(s.rows[rowIdx])-1); err != nil {
			return err
		}
		row = s.rows[rowIdx]
	}

	flow := newFlow(pkt, key)
	s.rows[rowIdx] = append([]*core.Flow{flow}, row...)

	if s.plugins != nil {
		s.plugins.PostCreate(flow, pkt)
	}
	return nil
}

// moveToFront relocates the entry at idx within rowIdx to the front,
// preserving the relative order of everything else (MRU-front rule).
func (s *shard) moveToFront(rowIdx, idx int) {
	if idx <= 0 {
		return
	}
	row := s.rows[rowIdx]
	flow := row[idx]
	copy(row[1:idx+1], row[0:idx])
	row[0] = flow
}

// evictAt exports and removes the entry at idx within rowIdx.
func (s *shard) evictAt(ctx context.Context, rowIdx, idx int) error {
	row := s.rows[rowIdx]
	if idx < 0 || idx >= len(row) {
		return nil
	}
	flow := row[idx]
	s.rows[rowIdx] = append(row[:idx], row[idx+1:]...)
	return s.export(ctx, flow)
}

func (s *shard) export(ctx context.Context, flow *core.Flow) error {
	if s.plugins != nil {
		s.plugins.PreExport(flow)
	}
	if s.exporter == nil {
		return nil
	}
	return s.exporter.Export(ctx, flow)
}

// scanOneRow advances the background eviction cursor by one row and
// flushes that row's least-recently-used entries that have crossed
// either timeout, using pkt's timestamp as "now".
func (s *shard) scanOneRow(ctx context.Context, pkt *core.Packet) {
	if len(s.rows) == 0 {
		return
	}
	rowIdx := s.scanCursor
	s.scanCursor = (s.scanCursor + 1) % len(s.rows)

	for {
		row := s.rows[rowIdx]
		if len(row) == 0 {
			return
		}
		tail := row[len(row)-1]
		if !s.expired(tail, pkt.TimestampSec, pkt.TimestampUsec) {
			return
		}
		_ = s.evictAt(ctx, rowIdx, len(row)-1)
	}
}

func (s *shard) expired(flow *core.Flow, nowSec, nowUsec int64) bool {
	activeSpan := usecDelta(flow.FirstSeenSec, flow.FirstSeenUsec, nowSec, nowUsec)
	if s.activeTimeoutUsec > 0 && activeSpan >= s.activeTimeoutUsec {
		return true
	}
	idleSpan := usecDelta(flow.LastSeenSec, flow.LastSeenUsec, nowSec, nowUsec)
	return s.inactiveTimeoutUsec > 0 && idleSpan >= s.inactiveTimeoutUsec
}

func usecDelta(fromSec, fromUsec, toSec, toUsec int64) int64 {
	return (toSec-fromSec)*1_000_000 + (toUsec - fromUsec)
}

// flushAll exports and removes every flow the shard holds, in
// row-then-slot order, for use at shutdown.
func (s *shard) flushAll(ctx context.Context) error {
	for rowIdx := range s.rows {
		for len(s.rows[rowIdx]) > 0 {
			if err := s.evictAt(ctx, rowIdx, len(s.rows[rowIdx])-1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *shard) len() int {
	n := 0
	for _, row := range s.rows {
		n += len(row)
	}
	return n
}
