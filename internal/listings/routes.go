package listings

import "github.com/gin-gonic/gin"

// RegisterRoutes registers listing lifecycle routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/init", h.Init)
	r.GET("/state", h.State)

	r.POST("/listings", h.Create)
	r.GET("/listings", h.List)
	r.GET("/listings/:id", h.Get)
	r.POST("/listings/:id/deposit", h.Deposit)
	r.POST("/listings/:id/borrow", h.Borrow)
	r.POST("/listings/:id/liquidate", h.Liquidate)
	r.POST("/listings/:id/cancel", h.Cancel)
}
