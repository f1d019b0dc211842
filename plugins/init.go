// Package plugins blank-imports every built-in process plugin so its
// init() registers it with internal/plugin before the probe starts.
package plugins

import (
	_ "github.com/otusprobe/flowprobe/plugins/tls"
	_ "github.com/otusprobe/flowprobe/plugins/wireguard"
)
