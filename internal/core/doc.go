package core

// FlushReason explains why a plugin callback wants a flow evicted
// immediately instead of waiting for the normal timeout/LRU path.
type FlushReason uint8

const (
	// FlushNone means the callback made no special request: continue
	// normal processing.
	FlushNone FlushReason = iota
	// FlushExport means export the flow now and remove it from the
	// cache. Returned from PreUpdate, the triggering packet then starts
	// a new flow; returned from PostUpdate, the packet has already been
	// counted in the exported flow.
	FlushExport
	// FlushWithReinsert means export the flow now, remove it, then
	// start a brand new flow record seeded by the triggering packet.
	// Used by plugins (e.g. WireGuard) that detect a new handshake
	// reusing an old flow's five-tuple.
	FlushWithReinsert
)
