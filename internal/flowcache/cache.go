// Package flowcache implements the probe's flow cache: a sharded,
// row-organized associative store from flow key to flow record that
// drives the process-plugin lifecycle and hands completed flows to an
// Exporter.
package flowcache

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/otusprobe/flowprobe/internal/core"
)

// Cache dispatches packets to one of several independent shards, by
// the low bits of the flow key hash, and is otherwise a thin router:
// all of the cache's actual state lives in its shards.
type Cache struct {
	shards    []*shard
	shardMask uint64
	shardBits uint
}

// New builds a Cache from cfg. plugins, if non-nil, is cloned by the
// caller once per shard (flowcache does not itself know how to build
// a plugin.Set, since that would require importing the plugin
// registry); pass one PluginSet implementation per shard in
// pluginsPerShard, or nil entries to run without plugins (tests only).
func New(cfg Config, pluginsPerShard []PluginSet, exporter core.Exporter) (*Cache, error) {
	if !isPowerOfTwo(cfg.Capacity) {
		return nil, fmt.Errorf("flow cache capacity %d: %w", cfg.Capacity, core.ErrConfigInvalid)
	}
	if !isPowerOfTwo(cfg.Shards) || cfg.Shards > cfg.Capacity {
		return nil, fmt.Errorf("flow cache shard count %d: %w", cfg.Shards, core.ErrConfigInvalid)
	}
	if cfg.RowSize < 1 {
		return nil, fmt.Errorf("flow cache row size %d: %w", cfg.RowSize, core.ErrConfigInvalid)
	}
	if len(pluginsPerShard) != cfg.Shards {
		return nil, fmt.Errorf("flow cache needs %d plugin sets, got %d: %w", cfg.Shards, len(pluginsPerShard), core.ErrConfigInvalid)
	}

	rowsPerShard := cfg.Capacity / cfg.Shards
	shardBits := uint(bits.TrailingZeros(uint(cfg.Shards)))

	activeUsec := cfg.ActiveTimeout.Microseconds()
	inactiveUsec := cfg.InactiveTimeout.Microseconds()

	c := &Cache{
		shards:    make([]*shard, cfg.Shards),
		shardMask: uint64(cfg.Shards - 1),
		shardBits: shardBits,
	}
	for i := range c.shards {
		c.shards[i] = newShard(rowsPerShard, cfg.RowSize, shardBits, cfg.Split, activeUsec, inactiveUsec, pluginsPerShard[i], exporter)
	}
	return c, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// ShardFor returns the shard index pkt would route to, without
// mutating any state. Exposed so internal/probe can route packets to
// the goroutine that owns the target shard. The smaller of the forward
// and reversed key hashes picks the shard, so both directions of a
// biflow land on the same shard.
func (c *Cache) ShardFor(pkt *core.Packet) int {
	k := core.NewFlowKey(pkt)
	h := hashKey(k)
	if r := hashKey(k.Reversed()); r < h {
		h = r
	}
	return int(h & c.shardMask)
}

// NumShards reports how many shards the cache was built with.
func (c *Cache) NumShards() int { return len(c.shards) }

// Process runs the insert/update protocol for pkt against the shard
// it hashes to. Callers that shard work across goroutines must ensure
// a given shard index is only ever touched by one goroutine at a time.
func (c *Cache) Process(ctx context.Context, pkt *core.Packet) error {
	return c.shards[c.ShardFor(pkt)].Process(ctx, pkt)
}

// ProcessOnShard is identical to Process but lets the caller pass an
// already-computed shard index, avoiding a second hash when the
// caller already routed the packet there.
func (c *Cache) ProcessOnShard(ctx context.Context, shardIdx int, pkt *core.Packet) error {
	return c.shards[shardIdx].Process(ctx, pkt)
}

// FlushAll exports and removes every flow in every shard, in row then
// slot order. Used at shutdown.
func (c *Cache) FlushAll(ctx context.Context) error {
	for _, sh := range c.shards {
		if err := sh.flushAll(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the total number of live flows across every shard, for
// tests and diagnostics.
func (c *Cache) Len() int {
	n := 0
	for _, sh := range c.shards {
		n += sh.len()
	}
	return n
}
