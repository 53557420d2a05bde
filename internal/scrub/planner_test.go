package scrub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snapguard-project/snapguard/pkg/config"
	"github.com/snapguard-project/snapguard/pkg/model"
)

func TestPlan(t *testing.T) {
	cases := []struct {
		name   string
		policy config.ScrubConfig
		want   model.ScrubParams
	}{
		{
			name:   "defaults",
			policy: config.ScrubConfig{Enabled: true, CheckPercent: 12, MinAgeDays: 10},
			want:   model.ScrubParams{Percent: 12, MinAgeDays: 10},
		},
		{
			name:   "full pass",
			policy: config.ScrubConfig{Enabled: true, CheckPercent: 100, MinAgeDays: 0},
			want:   model.ScrubParams{Percent: 100, MinAgeDays: 0},
		},
		{
			name:   "zero percent",
			policy: config.ScrubConfig{Enabled: true, CheckPercent: 0, MinAgeDays: 10},
			want:   model.ScrubParams{Percent: 0, MinAgeDays: 10},
		},
		{
			name:   "scrub new blocks",
			policy: config.ScrubConfig{Enabled: true, CheckPercent: 8, MinAgeDays: 30, ScrubNew: true},
			want:   model.ScrubParams{Percent: 8, MinAgeDays: 30, IncludeNew: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Plan(tc.policy))
		})
	}
}

func TestEnabled(t *testing.T) {
	assert.True(t, Enabled(config.ScrubConfig{Enabled: true, CheckPercent: 12}))
	assert.False(t, Enabled(config.ScrubConfig{Enabled: false, CheckPercent: 12}))
	assert.False(t, Enabled(config.ScrubConfig{Enabled: true, CheckPercent: 0}))
}

func TestArgs(t *testing.T) {
	got := Args(model.ScrubParams{Percent: 12, MinAgeDays: 10})
	assert.Equal(t, []string{"-p", "12", "-o", "10"}, got)

	got = Args(model.ScrubParams{Percent: 100, MinAgeDays: 0})
	assert.Equal(t, []string{"-p", "100", "-o", "0"}, got)
}

func TestNewBlockArgs(t *testing.T) {
	assert.Equal(t, []string{"-p", "new"}, NewBlockArgs())
}
