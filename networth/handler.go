package networth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/patrimo/patrimo/auth"
	"github.com/patrimo/patrimo/platform/logger"
)

// Handler exposes the two authenticated read endpoints. A downstream
// failure surfaces as a single server error with no partial numbers, so
// a caller can never mistake an incomplete net worth for a complete one.
type Handler struct {
	svc *Service
	log *logger.Logger
}

func NewHandler(svc *Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}

	return &Handler{svc: svc, log: log.With("handler", "networth")}
}

func (h *Handler) Register(r gin.IRouter, verifier *auth.Verifier) {
	authed := r.Group("/api/networth", auth.RequireAuth(verifier, h.log))
	authed.GET("/calculate", h.Calculate)
	authed.GET("/breakdown", h.Breakdown)
}

func (h *Handler) Calculate(c *gin.Context) {
	snap, err := h.svc.Calculate(c.Request.Context(), auth.UserID(c), auth.Authorization(c))
	if err != nil {
		h.log.Error("calculate failed", "user_id", auth.UserID(c), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"message": "could not reach dependent services", "code": "downstream_unavailable"},
		})

		return
	}

	c.JSON(http.StatusOK, snap)
}

func (h *Handler) Breakdown(c *gin.Context) {
	bd, err := h.svc.Breakdown(c.Request.Context(), auth.UserID(c), auth.Authorization(c))
	if err != nil {
		h.log.Error("breakdown failed", "user_id", auth.UserID(c), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"message": "could not reach dependent services", "code": "downstream_unavailable"},
		})

		return
	}

	c.JSON(http.StatusOK, bd)
}
