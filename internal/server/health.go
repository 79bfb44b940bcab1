package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/git-pkgs/gemindex/internal/service"
)

type HealthHandler struct {
	svc      *service.Service
	breakers BreakerStates
}

func NewHealthHandler(svc *service.Service, breakers BreakerStates) *HealthHandler {
	return &HealthHandler{svc: svc, breakers: breakers}
}

// HealthCheck reports index counters and, when mirroring, the state of
// each upstream circuit breaker.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"index":  h.svc.Stats(),
	}
	if h.breakers != nil {
		states := h.breakers.GetBreakerState()
		resp["upstream"] = states
		for _, state := range states {
			if state == "open" {
				resp["status"] = "degraded"
				break
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}
