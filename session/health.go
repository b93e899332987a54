package session

import (
	"math"
	"time"

	"github.com/use-agent/tukibridge/config"
)

// maxSoftScore is the soft-failure score at which a session is rebuilt even
// though no step failed hard.
const maxSoftScore = 3.0

// health tracks how worn out the current driver is. It is only touched while
// the session lock is held.
type health struct {
	started   time.Time
	uses      int
	softScore float64
}

func newHealth(now time.Time) health {
	return health{started: now}
}

// recordSuccess counts a use and decays the soft-failure score.
func (h *health) recordSuccess() {
	h.uses++
	h.softScore = math.Max(0, h.softScore-0.5)
}

// recordSoftFailure counts a use whose optional step failed soft.
func (h *health) recordSoftFailure() {
	h.uses++
	h.softScore++
}

// retireReason returns why the driver should be rebuilt before its next use,
// or "" when it is still fit.
func (h *health) retireReason(policy config.SessionConfig, now time.Time) string {
	switch {
	case h.softScore >= maxSoftScore:
		return "degraded"
	case policy.MaxUses > 0 && h.uses >= policy.MaxUses:
		return "max_uses"
	case policy.MaxAge > 0 && now.Sub(h.started) >= policy.MaxAge:
		return "max_age"
	}
	return ""
}
