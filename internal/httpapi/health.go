package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ComponentStatus is one of the four statuses a component can report,
// per spec §6.
type ComponentStatus string

const (
	StatusHealthy  ComponentStatus = "healthy"
	StatusDisabled ComponentStatus = "disabled"
	StatusDegraded ComponentStatus = "degraded"
	StatusDown     ComponentStatus = "down"
)

// ComponentHealth aggregates every subsystem's status for the health
// endpoints (spec §6: "200 when (cache health healthy|disabled|degraded)
// AND (at least one provider healthy|disabled)").
type ComponentHealth struct {
	Cache     ComponentStatus            `json:"cache"`
	Store     ComponentStatus            `json:"store"`
	Providers map[string]ComponentStatus `json:"providers"`
	Detail    map[string]interface{}     `json:"detail,omitempty"`
}

// ok reports whether the aggregate state satisfies spec §6's health gate.
func (h ComponentHealth) ok() bool {
	cacheOK := h.Cache == StatusHealthy || h.Cache == StatusDisabled || h.Cache == StatusDegraded
	if !cacheOK {
		return false
	}
	for _, status := range h.Providers {
		if status == StatusHealthy || status == StatusDisabled {
			return true
		}
	}
	return false
}

// Healthz implements both GET /healthz and GET /readyz (spec §6: same
// gate for both).
func (h *Handler) Healthz(c *gin.Context) {
	health := h.health.Health()
	if health.ok() {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
}

// HealthzDetailed returns per-component status objects, per spec §6's
// "detailed variant".
func (h *Handler) HealthzDetailed(c *gin.Context) {
	health := h.health.Health()
	status := http.StatusOK
	if !health.ok() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}
