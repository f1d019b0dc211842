package capture

import (
	"context"

	"github.com/otusprobe/flowprobe/internal/core"
)

// MemoryCapturer replays a fixed slice of frames, for tests and
// local development without a real capture source.
type MemoryCapturer struct {
	name   string
	frames []core.RawFrame
}

// NewMemoryCapturer builds a MemoryCapturer that will emit frames, in
// order, the first time Capture runs.
func NewMemoryCapturer(name string, frames []core.RawFrame) *MemoryCapturer {
	return &MemoryCapturer{name: name, frames: frames}
}

func (c *MemoryCapturer) Name() string { return c.name }

// Capture pushes every configured frame to out, then returns nil.
func (c *MemoryCapturer) Capture(ctx context.Context, out chan<- core.RawFrame) error {
	for _, f := range c.frames {
		select {
		case out <- f:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
