package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otusprobe/flowprobe/internal/core"
)

type stubPlugin struct {
	name      string
	initCfg   map[string]string
	rejectNew bool
}

func (p *stubPlugin) Name() string                                 { return p.name }
func (p *stubPlugin) Init(cfg map[string]string) error             { p.initCfg = cfg; return nil }
func (p *stubPlugin) PreCreate(pkt *core.Packet) bool               { return !p.rejectNew }
func (p *stubPlugin) PostCreate(flow *core.Flow, pkt *core.Packet)  {}
func (p *stubPlugin) PreUpdate(f *core.Flow, pkt *core.Packet) core.FlushReason {
	return core.FlushNone
}
func (p *stubPlugin) PostUpdate(f *core.Flow, pkt *core.Packet) core.FlushReason {
	return core.FlushNone
}
func (p *stubPlugin) PreExport(flow *core.Flow)            {}
func (p *stubPlugin) Finish(ctx context.Context) error     { return nil }

func TestRegisterAssignsSequentialExtensionIDs(t *testing.T) {
	reset()
	Register("alpha", func() core.PacketPlugin { return &stubPlugin{name: "alpha"} })
	Register("beta", func() core.PacketPlugin { return &stubPlugin{name: "beta"} })

	id0, err := ExtensionID("alpha")
	require.NoError(t, err)
	id1, err := ExtensionID("beta")
	require.NoError(t, err)

	assert.Equal(t, 0, id0)
	assert.Equal(t, 1, id1)
	assert.Equal(t, []string{"alpha", "beta"}, Order())
}

func TestRegisterPanicsOnDuplicateName(t *testing.T) {
	reset()
	Register("dup", func() core.PacketPlugin { return &stubPlugin{name: "dup"} })
	assert.Panics(t, func() {
		Register("dup", func() core.PacketPlugin { return &stubPlugin{name: "dup"} })
	})
}

func TestGetFactoryUnknownNameReturnsErrPluginNotFound(t *testing.T) {
	reset()
	_, err := GetFactory("missing")
	assert.ErrorIs(t, err, core.ErrPluginNotFound)
}
