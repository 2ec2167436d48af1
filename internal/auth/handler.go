package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	secret   string
	tokenTTL time.Duration
}

func NewHandler(secret string, tokenTTL time.Duration) *Handler {
	return &Handler{secret: secret, tokenTTL: tokenTTL}
}

type loginRequest struct {
	Account string `json:"account" binding:"required"`
}

// Login issues a bearer token for a ledger account. Signature verification
// against on-chain keys sits in front of this service; here the account
// name is taken as attested.
func (h *Handler) Login(c *gin.Context) {
	var payload loginRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := TokenFor(payload.Account, h.secret, h.tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account": payload.Account,
		"token":   token,
	})
}

// Me echoes the signer resolved from the bearer token.
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"account": SignerFrom(c)})
}
