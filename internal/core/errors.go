// Package core defines the probe's wire-independent data model: the
// parsed Packet, the long-lived Flow record, and the extension chain
// attached to it by process plugins. The package has zero third-party
// dependencies by design, mirroring the teacher's "core has zero
// dependencies" convention, so capture adapters, plugins and exporters
// can all depend on it without pulling in gopacket, viper or logrus.
package core

import "errors"

// Sentinel errors, matched with errors.Is. Every error the core
// subsystems produce is one of these, possibly wrapped with additional
// context via fmt.Errorf("...: %w", ...).
var (
	ErrPacketTooShort    = errors.New("flowprobe: packet too short")
	ErrUnsupportedProto  = errors.New("flowprobe: unsupported protocol")
	ErrReassemblyTimeout = errors.New("flowprobe: fragment cache entry expired")
	ErrPluginNotFound    = errors.New("flowprobe: plugin not found")
	ErrPluginInitFailed  = errors.New("flowprobe: plugin init failed")
	ErrConfigInvalid     = errors.New("flowprobe: invalid configuration")
	ErrCacheClosed       = errors.New("flowprobe: flow cache closed")
)
