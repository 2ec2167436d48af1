package notifications

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the transition feed routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/events", h.RecentTransitions)
	r.GET("/events/ws", h.Subscribe)
}
