package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tukibridge/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// SessionStatter reports the automation session state. *session.Session
// implements it.
type SessionStatter interface {
	Stats() models.SessionStats
}

// UpstreamProber reports whether the target site answers. *probe.Prober
// implements it.
type UpstreamProber interface {
	Status(ctx context.Context) models.UpstreamStats
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when the session is broken or the upstream probe fails.
// prober may be nil.
func Health(s SessionStatter, prober UpstreamProber, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := s.Stats()

		resp := models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Session: stats,
			Version: Version,
		}
		if stats.State == "broken" {
			resp.Status = "degraded"
		}

		if prober != nil {
			up := prober.Status(c.Request.Context())
			resp.Upstream = &up
			if !up.Reachable {
				resp.Status = "degraded"
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}
