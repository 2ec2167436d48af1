package registry

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rwax/lending-portal/lending-portal-backend/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createCollectionRequest struct {
	Name               string                 `json:"collection_name" binding:"required"`
	AuthorizedAccounts []string               `json:"authorized_accounts"`
	MarketFee          float64                `json:"market_fee"`
	Data               map[string]interface{} `json:"data"`
}

func (h *Handler) CreateCollection(c *gin.Context) {
	var payload createCollectionRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	collection, err := h.service.CreateCollection(c.Request.Context(), auth.SignerFrom(c),
		payload.Name, payload.AuthorizedAccounts, payload.MarketFee, payload.Data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, collection)
}

type createSchemaRequest struct {
	CollectionName string        `json:"collection_name" binding:"required"`
	SchemaName     string        `json:"schema_name" binding:"required"`
	Format         []FormatField `json:"format"`
}

func (h *Handler) CreateSchema(c *gin.Context) {
	var payload createSchemaRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	schema, err := h.service.CreateSchema(c.Request.Context(), auth.SignerFrom(c),
		payload.CollectionName, payload.SchemaName, payload.Format)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, schema)
}

type createTemplateRequest struct {
	CollectionName string                 `json:"collection_name" binding:"required"`
	SchemaName     string                 `json:"schema_name" binding:"required"`
	MaxSupply      uint32                 `json:"max_supply"`
	ImmutableData  map[string]interface{} `json:"immutable_data"`
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var payload createTemplateRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	template, err := h.service.CreateTemplate(c.Request.Context(), auth.SignerFrom(c),
		payload.CollectionName, payload.SchemaName, payload.MaxSupply, payload.ImmutableData)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, template)
}

type mintAssetRequest struct {
	CollectionName string                 `json:"collection_name" binding:"required"`
	SchemaName     string                 `json:"schema_name" binding:"required"`
	TemplateID     int32                  `json:"template_id"`
	Owner          string                 `json:"owner" binding:"required"`
	ImmutableData  map[string]interface{} `json:"immutable_data"`
	MutableData    map[string]interface{} `json:"mutable_data"`
}

func (h *Handler) MintAsset(c *gin.Context) {
	var payload mintAssetRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	asset, err := h.service.MintAsset(c.Request.Context(), auth.SignerFrom(c),
		payload.CollectionName, payload.SchemaName, payload.TemplateID,
		payload.Owner, payload.ImmutableData, payload.MutableData)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, asset)
}

type transferRequest struct {
	To     string   `json:"to" binding:"required"`
	Assets []uint64 `json:"asset_ids" binding:"required"`
	Memo   string   `json:"memo"`
}

func (h *Handler) Transfer(c *gin.Context) {
	var payload transferRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Transfer(c.Request.Context(), auth.SignerFrom(c),
		payload.To, payload.Assets, payload.Memo); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "transferred"})
}

func (h *Handler) GetCollection(c *gin.Context) {
	collection, err := h.service.GetCollection(h.service.db, c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

func (h *Handler) AccountAssets(c *gin.Context) {
	assets, err := h.service.AccountAssets(c.Request.Context(), c.Param("account"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assets)
}

func (h *Handler) GetAsset(c *gin.Context) {
	assetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}
	asset, err := h.service.GetAsset(h.service.db, assetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, asset)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrCollectionNotFound), errors.Is(err, ErrSchemaNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrNotAuthorized), auth.IsMissingAuthority(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrCollectionExists), errors.Is(err, ErrSupplyExhausted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
