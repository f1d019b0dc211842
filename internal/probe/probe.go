// Package probe wires capture, decoding, ordering and the flow cache
// into a single running pipeline, and implements the cooperative
// shutdown protocol: capture sources stop first, the indexer mesh
// drains what it already holds, every shard finishes the packets
// already queued to it, and only then are flows flushed and plugins
// finalized.
package probe

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/otusprobe/flowprobe/internal/core"
	"github.com/otusprobe/flowprobe/internal/flowcache"
	"github.com/otusprobe/flowprobe/internal/indexer"
	"github.com/otusprobe/flowprobe/internal/log"
	"github.com/otusprobe/flowprobe/internal/parser"
	"github.com/otusprobe/flowprobe/internal/plugin"
)

const captureChanBuffer = 1024
const shardChanBuffer = 1024

// Probe is the top-level orchestrator.
type Probe struct {
	log       log.Logger
	capturers []core.Capturer
	idx       *indexer.Indexer
	dec       *parser.Decoder
	cache     *flowcache.Cache
	plugins   []*plugin.Set
	exporter  core.Exporter
}

// New builds a Probe from its already-constructed collaborators. One
// capturer corresponds to one indexer input; callers that want a
// single capture source still pass a one-element slice. plugins holds
// the same per-shard plugin sets wired into cache, one per shard,
// passed again here only so Run can call Finish on each at shutdown.
func New(logger log.Logger, capturers []core.Capturer, dec *parser.Decoder, cache *flowcache.Cache, plugins []*plugin.Set, exporter core.Exporter) *Probe {
	return &Probe{
		log:       logger,
		capturers: capturers,
		idx:       indexer.New(len(capturers)),
		dec:       dec,
		cache:     cache,
		plugins:   plugins,
		exporter:  exporter,
	}
}

// Run blocks until ctx is cancelled or a capturer returns a fatal
// error, then drains the pipeline and returns.
func (p *Probe) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	rawChans := make([]chan core.RawFrame, len(p.capturers))
	for i, capturer := range p.capturers {
		i, capturer := i, capturer
		rawChans[i] = make(chan core.RawFrame, captureChanBuffer)

		g.Go(func() error {
			defer close(rawChans[i])
			return capturer.Capture(gctx, rawChans[i])
		})
		g.Go(func() error {
			p.forward(rawChans[i], p.idx.GetInput(i))
			return nil
		})
	}

	p.idx.Start()

	shardChans := make([]chan *core.Packet, p.cache.NumShards())
	for s := range shardChans {
		shardChans[s] = make(chan *core.Packet, shardChanBuffer)
	}

	var shardWG sync.WaitGroup
	for s := range shardChans {
		shardWG.Add(1)
		go func(s int) {
			defer shardWG.Done()
			for pkt := range shardChans[s] {
				if err := p.cache.ProcessOnShard(context.Background(), s, pkt); err != nil {
					p.log.WithError(err).Warn("flow cache: process failed")
				}
			}
		}(s)
	}

	decodeDone := make(chan struct{})
	go func() {
		defer close(decodeDone)
		defer func() {
			for _, ch := range shardChans {
				close(ch)
			}
		}()
		p.decodeLoop(shardChans)
	}()

	runErr := g.Wait()

	p.idx.Stop()
	p.idx.Join()
	<-decodeDone
	shardWG.Wait()

	if err := p.cache.FlushAll(context.Background()); err != nil {
		p.log.WithError(err).Warn("flow cache: flush at shutdown failed")
	}
	for _, set := range p.plugins {
		set.Finish(context.Background(), p.log)
	}
	if p.exporter != nil {
		if err := p.exporter.Close(context.Background()); err != nil {
			p.log.WithError(err).Warn("exporter: close failed")
		}
	}

	return runErr
}

// forward copies raw frames from a capturer's output channel into the
// indexer input queue assigned to it, stopping the queue once the
// capturer channel closes.
func (p *Probe) forward(raw <-chan core.RawFrame, q *indexer.Queue) {
	defer q.Stop()
	for frame := range raw {
		q.Push(&indexer.Item{
			TimestampSec:  frame.TimestampSec,
			TimestampUsec: frame.TimestampUsec,
			Payload:       frame,
		})
	}
}

// decodeLoop is the single consumer of the indexer's merged, ordered
// stream: it decodes each frame and routes the resulting packet to
// its shard's worker. Decoding happens here, and only here, because
// the underlying layer parser is not safe for concurrent use.
func (p *Probe) decodeLoop(shardChans []chan *core.Packet) {
	for {
		item, ordinal, ok := p.idx.Next()
		if !ok {
			return
		}
		frame, ok := item.Payload.(core.RawFrame)
		if !ok {
			continue
		}
		pkt, err := p.dec.Decode(frame)
		if err != nil {
			p.log.WithError(err).Debug("decode failed")
			continue
		}
		pkt.Ordinal = ordinal
		pkt.OrdinalSet = true
		shardChans[p.cache.ShardFor(&pkt)] <- &pkt
	}
}
