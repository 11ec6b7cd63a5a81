package registry

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/patrimo/patrimo/auth"
	"github.com/patrimo/patrimo/platform/logger"
)

type Handler struct {
	reg *Registry
	log *logger.Logger
}

func NewHandler(reg *Registry, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}

	return &Handler{reg: reg, log: log.With("handler", "registry")}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/api/services", h.Services)
	r.GET("/api/services/status", h.Status)
}

// Services lists the registered descriptors.
func (h *Handler) Services(c *gin.Context) {
	c.JSON(http.StatusOK, h.reg.Services())
}

// Status runs the liveness aggregation. It never fails for individual
// outages; the only error path is an empty registry, which is a
// deployment mistake.
func (h *Handler) Status(c *gin.Context) {
	statuses, err := h.reg.Probe(c.Request.Context(), auth.BearerHeader(c))
	if err != nil {
		h.log.Error("probe failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"message": "registry misconfigured", "code": "registry_error"},
		})

		return
	}

	c.JSON(http.StatusOK, statuses)
}
