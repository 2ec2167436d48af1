package tokenize

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rwax/lending-portal/lending-portal-backend/internal/auth"
	"rwax/lending-portal/lending-portal-backend/internal/ledger"
	"rwax/lending-portal/lending-portal-backend/internal/registry"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type tokenizeRequest struct {
	AuthorizedAccount string          `json:"authorized_account" binding:"required"`
	CollectionName    string          `json:"collection_name" binding:"required"`
	MaximumSupply     string          `json:"maximum_supply" binding:"required"`
	Templates         []TemplateShare `json:"templates"`
	TraitFactors      []TraitFactor   `json:"trait_factors"`
	TokenName         string          `json:"token_name"`
	TokenLogo         string          `json:"token_logo"`
	TokenLogoLarge    string          `json:"token_logo_lg"`
}

func (h *Handler) Tokenize(c *gin.Context) {
	var payload tokenizeRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	supply, err := ledger.ParseAsset(payload.MaximumSupply)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.service.Tokenize(c.Request.Context(), auth.SignerFrom(c), TokenizeRequest{
		AuthorizedAccount: payload.AuthorizedAccount,
		CollectionName:    payload.CollectionName,
		MaximumSupply:     supply,
		Templates:         payload.Templates,
		TraitFactors:      payload.TraitFactors,
		TokenName:         payload.TokenName,
		TokenLogo:         payload.TokenLogo,
		TokenLogoLarge:    payload.TokenLogoLarge,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

type tokenizeAssetsRequest struct {
	User     string   `json:"user" binding:"required"`
	AssetIDs []uint64 `json:"asset_ids" binding:"required"`
}

func (h *Handler) TokenizeAssets(c *gin.Context) {
	var payload tokenizeAssetsRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.TokenizeAssets(c.Request.Context(), auth.SignerFrom(c),
		payload.User, payload.AssetIDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "tokenized"})
}

type redeemRequest struct {
	Redeemer string `json:"redeemer" binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
}

func (h *Handler) Redeem(c *gin.Context) {
	var payload redeemRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quantity, err := ledger.ParseAsset(payload.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Redeem(c.Request.Context(), auth.SignerFrom(c),
		payload.Redeemer, quantity); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "redeemed"})
}

type withdrawRequest struct {
	Account    string   `json:"account" binding:"required"`
	Quantities []string `json:"quantities" binding:"required"`
}

func (h *Handler) Withdraw(c *gin.Context) {
	var payload withdrawRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quantities := make([]ledger.Asset, 0, len(payload.Quantities))
	for _, raw := range payload.Quantities {
		quantity, err := ledger.ParseAsset(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		quantities = append(quantities, quantity)
	}

	if err := h.service.Withdraw(c.Request.Context(), auth.SignerFrom(c),
		payload.Account, quantities); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "withdrawn"})
}

func (h *Handler) ListTokens(c *gin.Context) {
	tokens, err := h.service.ListTokens(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *Handler) GetToken(c *gin.Context) {
	token, err := h.service.GetToken(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *Handler) PendingDeposits(c *gin.Context) {
	assets, err := h.service.PendingDeposits(c.Request.Context(), c.Param("account"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets})
}

func respondError(c *gin.Context, err error) {
	switch {
	case auth.IsMissingAuthority(err), errors.Is(err, auth.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrCollectionNotFound),
		errors.Is(err, ErrTokenNotFound),
		errors.Is(err, ErrNoAssetsFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrSymbolExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
