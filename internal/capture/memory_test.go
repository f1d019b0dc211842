package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otusprobe/flowprobe/internal/core"
)

func TestMemoryCapturerEmitsFramesInOrder(t *testing.T) {
	frames := []core.RawFrame{
		{Data: []byte{1}, TimestampSec: 1},
		{Data: []byte{2}, TimestampSec: 2},
		{Data: []byte{3}, TimestampSec: 3},
	}
	c := NewMemoryCapturer("mem", frames)

	out := make(chan core.RawFrame, len(frames))
	require.NoError(t, c.Capture(context.Background(), out))
	close(out)

	var got []core.RawFrame
	for f := range out {
		got = append(got, f)
	}
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].TimestampSec)
	assert.Equal(t, int64(3), got[2].TimestampSec)
}

func TestMemoryCapturerStopsOnCancelledContext(t *testing.T) {
	frames := make([]core.RawFrame, 10)
	c := NewMemoryCapturer("mem", frames)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan core.RawFrame) // unbuffered: forces select on ctx.Done()
	require.NoError(t, c.Capture(ctx, out))
}
