package tokenize

import "github.com/gin-gonic/gin"

// RegisterRoutes registers tokenization routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/tokenize", h.Tokenize)
	r.POST("/tokenize/assets", h.TokenizeAssets)
	r.POST("/redeem", h.Redeem)
	r.POST("/withdraw", h.Withdraw)
	r.GET("/tokens", h.ListTokens)
	r.GET("/tokens/:code", h.GetToken)
	r.GET("/accounts/:account/deposits", h.PendingDeposits)
}
