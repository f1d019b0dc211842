package cmd

import "time"

// Fallbacks used when a config file leaves a timeout field unset or
// unparsable; config.Default already fills these with the same
// values, these exist for callers that build a Config by hand.
const (
	defaultActiveTimeout   = 300 * time.Second
	defaultInactiveTimeout = 30 * time.Second
	defaultFragTimeout     = 2 * time.Second
)
