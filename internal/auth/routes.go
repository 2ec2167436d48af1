package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers auth routes
func RegisterRoutes(r *gin.Engine, handler *Handler, secret string) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", handler.Login)
		authGroup.GET("/me", Middleware(secret), handler.Me)
	}
}
