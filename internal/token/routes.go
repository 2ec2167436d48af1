package token

import "github.com/gin-gonic/gin"

// RegisterRoutes registers token ledger routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transfers/tokens", h.Transfer)
	r.GET("/accounts/:account/balances", h.AccountBalances)
}
