package token

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rwax/lending-portal/lending-portal-backend/internal/auth"
	"rwax/lending-portal/lending-portal-backend/internal/ledger"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	From     string `json:"from" binding:"required"`
	To       string `json:"to" binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
	Memo     string `json:"memo"`
}

func (h *Handler) Transfer(c *gin.Context) {
	var payload transferRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quantity, err := ledger.ParseAsset(payload.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.service.Transfer(c.Request.Context(), auth.SignerFrom(c),
		payload.From, payload.To, quantity, payload.Memo)
	if err != nil {
		switch {
		case auth.IsMissingAuthority(err):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, ErrUnknownToken):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "transferred"})
}

func (h *Handler) AccountBalances(c *gin.Context) {
	balances, err := h.service.AccountBalances(c.Request.Context(), c.Param("account"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, balances)
}
