package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/use-agent/tukibridge/config"
)

func TestRetireReason(t *testing.T) {
	start := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	policy := config.SessionConfig{MaxAge: time.Hour, MaxUses: 5}

	tests := []struct {
		name  string
		setup func(h *health)
		now   time.Time
		want  string
	}{
		{"fresh", func(*health) {}, start, ""},
		{"max age", func(*health) {}, start.Add(time.Hour), "max_age"},
		{"max uses", func(h *health) {
			for range 5 {
				h.recordSuccess()
			}
		}, start, "max_uses"},
		{"degraded", func(h *health) {
			for range 3 {
				h.recordSoftFailure()
			}
		}, start, "degraded"},
		{"success decays soft score", func(h *health) {
			h.recordSoftFailure()
			h.recordSoftFailure()
			h.recordSuccess()
			h.recordSoftFailure()
		}, start, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHealth(start)
			tt.setup(&h)
			assert.Equal(t, tt.want, h.retireReason(policy, tt.now))
		})
	}
}

func TestRetireReason_ZeroPolicyNeverRetiresHealthySession(t *testing.T) {
	start := time.Now()
	h := newHealth(start)
	for range 100 {
		h.recordSuccess()
	}
	assert.Empty(t, h.retireReason(config.SessionConfig{}, start.Add(48*time.Hour)))
}
