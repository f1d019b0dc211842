package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/otusprobe/flowprobe/internal/core"
	"github.com/otusprobe/flowprobe/internal/log"
)

// InitTimeout bounds how long a single plugin's Init is allowed to
// run at startup before the probe gives up on it.
const InitTimeout = 5 * time.Second

// Set is one worker's private clone of every registered plugin, built
// fresh from the factories so each flow-cache shard goroutine owns
// mutable plugin state nothing else touches. Flow-lifecycle callbacks
// run across the set in registration order.
type Set struct {
	names   []string
	extIDs  []int
	members []core.PacketPlugin
}

// NewSet instantiates one member per registered plugin, in
// registration order, and runs Init with the per-plugin config found
// under its name in configs (a missing entry means an empty config).
func NewSet(configs map[string]map[string]string) (*Set, error) {
	order := Order()
	s := &Set{
		names:   make([]string, 0, len(order)),
		extIDs:  make([]int, 0, len(order)),
		members: make([]core.PacketPlugin, 0, len(order)),
	}

	for _, name := range order {
		factory, err := GetFactory(name)
		if err != nil {
			return nil, err
		}
		extID, err := ExtensionID(name)
		if err != nil {
			return nil, err
		}
		instance := factory()
		cfg := configs[name]
		if cfg == nil {
			cfg = map[string]string{}
		}
		if err := initWithTimeout(instance, cfg); err != nil {
			return nil, fmt.Errorf("plugin %q: %w: %v", name, core.ErrPluginInitFailed, err)
		}
		s.names = append(s.names, name)
		s.extIDs = append(s.extIDs, extID)
		s.members = append(s.members, instance)
	}
	return s, nil
}

func initWithTimeout(p core.PacketPlugin, cfg map[string]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), InitTimeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- p.Init(cfg) }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("init timeout after %v", InitTimeout)
	case err := <-errc:
		return err
	}
}

// ExtensionID returns the extension id the set's i-th member was
// registered under, for chaining its records onto a Flow.
func (s *Set) ExtensionID(i int) int { return s.extIDs[i] }

// Len reports how many plugins are in the set.
func (s *Set) Len() int { return len(s.members) }

// PreCreate runs every member's PreCreate in order, short-circuiting
// (and reporting false) the moment one member rejects the packet.
func (s *Set) PreCreate(pkt *core.Packet) bool {
	for _, p := range s.members {
		if !p.PreCreate(pkt) {
			return false
		}
	}
	return true
}

// PostCreate runs every member's PostCreate in order.
func (s *Set) PostCreate(flow *core.Flow, pkt *core.Packet) {
	for _, p := range s.members {
		p.PostCreate(flow, pkt)
	}
}

// PreUpdate runs every member's PreUpdate in order, stopping at the
// first non-FlushNone result since that result dictates what the flow
// cache does with the rest of the packet.
func (s *Set) PreUpdate(flow *core.Flow, pkt *core.Packet) core.FlushReason {
	for _, p := range s.members {
		if reason := p.PreUpdate(flow, pkt); reason != core.FlushNone {
			return reason
		}
	}
	return core.FlushNone
}

// PostUpdate runs every member's PostUpdate in order, same
// short-circuit rule as PreUpdate.
func (s *Set) PostUpdate(flow *core.Flow, pkt *core.Packet) core.FlushReason {
	for _, p := range s.members {
		if reason := p.PostUpdate(flow, pkt); reason != core.FlushNone {
			return reason
		}
	}
	return core.FlushNone
}

// PreExport runs every member's PreExport in order.
func (s *Set) PreExport(flow *core.Flow) {
	for _, p := range s.members {
		p.PreExport(flow)
	}
}

// Finish runs every member's Finish, in reverse registration order,
// collecting and logging (but not aborting on) individual failures so
// one misbehaving plugin cannot prevent the others from flushing their
// stats at shutdown.
func (s *Set) Finish(ctx context.Context, logger log.Logger) {
	for i := len(s.members) - 1; i >= 0; i-- {
		if err := s.members[i].Finish(ctx); err != nil {
			logger.WithError(err).Warnf("plugin %q: finish failed", s.names[i])
		}
	}
}
