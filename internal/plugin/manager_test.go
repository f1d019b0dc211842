package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otusprobe/flowprobe/internal/core"
	"github.com/otusprobe/flowprobe/internal/log"
)

func TestNewSetRunsInitWithConfig(t *testing.T) {
	reset()
	Register("cfgtest", func() core.PacketPlugin { return &stubPlugin{name: "cfgtest"} })

	configs := map[string]map[string]string{
		"cfgtest": {"k": "v"},
	}
	set, err := NewSet(configs)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	member := set.members[0].(*stubPlugin)
	assert.Equal(t, "v", member.initCfg["k"])
}

func TestSetPreCreateShortCircuitsOnRejection(t *testing.T) {
	reset()
	Register("ok", func() core.PacketPlugin { return &stubPlugin{name: "ok"} })
	Register("veto", func() core.PacketPlugin { return &stubPlugin{name: "veto", rejectNew: true} })

	set, err := NewSet(nil)
	require.NoError(t, err)

	pkt := &core.Packet{}
	assert.False(t, set.PreCreate(pkt))
}

func TestSetFinishRunsInReverseOrder(t *testing.T) {
	reset()
	var finishOrder []string
	mk := func(name string) func() core.PacketPlugin {
		return func() core.PacketPlugin {
			return &orderTrackingPlugin{stubPlugin: stubPlugin{name: name}, order: &finishOrder}
		}
	}
	Register("first", mk("first"))
	Register("second", mk("second"))

	set, err := NewSet(nil)
	require.NoError(t, err)

	set.Finish(context.Background(), discardLogger{})
	assert.Equal(t, []string{"second", "first"}, finishOrder)
}

type orderTrackingPlugin struct {
	stubPlugin
	order *[]string
}

func (p *orderTrackingPlugin) Finish(ctx context.Context) error {
	*p.order = append(*p.order, p.name)
	return nil
}

// discardLogger satisfies log.Logger by dropping everything, so tests
// don't depend on the real logrus-backed singleton being initialized.
type discardLogger struct{}

func (discardLogger) Print(args ...interface{})                 {}
func (discardLogger) Printf(format string, args ...interface{}) {}
func (discardLogger) Trace(args ...interface{})                 {}
func (discardLogger) Tracef(format string, args ...interface{}) {}
func (discardLogger) Debug(args ...interface{})                 {}
func (discardLogger) Debugf(format string, args ...interface{}) {}
func (discardLogger) Info(args ...interface{})                  {}
func (discardLogger) Infof(format string, args ...interface{})  {}
func (discardLogger) Warn(args ...interface{})                  {}
func (discardLogger) Warnf(format string, args ...interface{})  {}
func (discardLogger) Error(args ...interface{})                 {}
func (discardLogger) Errorf(format string, args ...interface{}) {}
func (discardLogger) Fatal(args ...interface{})                 {}
func (discardLogger) Fatalf(format string, args ...interface{}) {}
func (discardLogger) Panic(args ...interface{})                 {}
func (discardLogger) Panicf(format string, args ...interface{}) {}
func (d discardLogger) WithField(field string, value interface{}) log.Logger { return d }
func (d discardLogger) WithFields(fields map[string]interface{}) log.Logger  { return d }
func (d discardLogger) WithError(err error) log.Logger                      { return d }
func (discardLogger) IsTraceEnabled() bool                                   { return false }
func (discardLogger) IsDebugEnabled() bool                                   { return false }
func (discardLogger) IsInfoEnabled() bool                                    { return false }
