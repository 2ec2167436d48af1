package registry

import "github.com/gin-gonic/gin"

// RegisterRoutes registers registry routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/collections", h.CreateCollection)
	r.GET("/collections/:name", h.GetCollection)
	r.POST("/schemas", h.CreateSchema)
	r.POST("/templates", h.CreateTemplate)
	r.POST("/assets", h.MintAsset)
	r.GET("/assets/:id", h.GetAsset)
	r.POST("/transfers/assets", h.Transfer)
	r.GET("/accounts/:account/assets", h.AccountAssets)
}
