package classify_test

import (
	"testing"

	"github.com/snapguard-project/snapguard/internal/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgress_Full(t *testing.T) {
	u, ok := classify.ParseProgress("42%, 10240 MB, 180 MB/s, 1440 stripe/s, CPU 23%, 1:05 ETA")
	require.True(t, ok)

	assert.Equal(t, 42, u.Percent)
	assert.Equal(t, 10240, u.ProcessedMB)
	assert.Equal(t, 180, u.SpeedMB)
	assert.Equal(t, "1h 05m", u.ETA)
}

func TestParseProgress_Short(t *testing.T) {
	u, ok := classify.ParseProgress("7%, 512 MB")
	require.True(t, ok)

	assert.Equal(t, 7, u.Percent)
	assert.Equal(t, 512, u.ProcessedMB)
	assert.Equal(t, 0, u.SpeedMB)
	assert.Empty(t, u.ETA)
}

func TestParseProgress_NotProgress(t *testing.T) {
	for _, line := range []string{
		"Syncing...",
		"    15 added",
		"100% done",
		"",
	} {
		_, ok := classify.ParseProgress(line)
		assert.False(t, ok, "line %q must not parse as progress", line)
	}
}
