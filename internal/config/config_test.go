package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPowerOfTwoCapacity(t *testing.T) {
	cfg := Default()
	cfg.FlowCache.Capacity = 100
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsShardCountAboveCapacity(t *testing.T) {
	cfg := Default()
	cfg.FlowCache.Capacity = 4
	cfg.FlowCache.Shards = 8
	assert.Error(t, cfg.Validate())
}

func TestActiveTimeoutDurationFallsBackOnInvalidValue(t *testing.T) {
	cfg := FlowCacheConfig{ActiveTimeout: "not-a-duration"}
	assert.Equal(t, 5*time.Minute, cfg.ActiveTimeoutDuration(5*time.Minute))
}

func TestActiveTimeoutDurationParsesValidValue(t *testing.T) {
	cfg := FlowCacheConfig{ActiveTimeout: "90s"}
	assert.Equal(t, 90*time.Second, cfg.ActiveTimeoutDuration(time.Minute))
}
