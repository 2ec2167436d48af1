package listings

import (
	"errors"
	"net/http"
	"strconv"

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

type initRequest struct {
	Version string `json:"version" binding:"required"`
}

func (h *Handler) Init(c *gin.Context) {
	var payload initRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Init(c.Request.Context(), auth.SignerFrom(c), payload.Version); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "initialized"})
}

type createListingRequest struct {
	Owner                 string   `json:"owner" binding:"required"`
	AssetIDs              []uint64 `json:"asset_ids" binding:"required"`
	Collateral            string   `json:"collateral" binding:"required"`
	DurationSecs          int64    `json:"duration_secs" binding:"required"`
	AllowEarlyTermination bool     `json:"allow_early_termination"`
}

func (h *Handler) Create(c *gin.Context) {
	var payload createListingRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	collateral, err := ledger.ParseAsset(payload.Collateral)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listing, err := h.service.CreateListing(c.Request.Context(), auth.SignerFrom(c), CreateListingRequest{
		Owner:                 payload.Owner,
		AssetIDs:              payload.AssetIDs,
		Collateral:            collateral,
		DurationSecs:          payload.DurationSecs,
		AllowEarlyTermination: payload.AllowEarlyTermination,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

type depositRequest struct {
	Payer    string `json:"payer" binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
}

func (h *Handler) Deposit(c *gin.Context) {
	listingID, ok := h.listingID(c)
	if !ok {
		return
	}

	var payload depositRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quantity, err := ledger.ParseAsset(payload.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listing, err := h.service.Deposit(c.Request.Context(), auth.SignerFrom(c),
		listingID, payload.Payer, quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

type borrowRequest struct {
	Borrower string `json:"borrower" binding:"required"`
}

func (h *Handler) Borrow(c *gin.Context) {
	listingID, ok := h.listingID(c)
	if !ok {
		return
	}

	var payload borrowRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listing, err := h.service.Borrow(c.Request.Context(), auth.SignerFrom(c),
		listingID, payload.Borrower)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) Liquidate(c *gin.Context) {
	listingID, ok := h.listingID(c)
	if !ok {
		return
	}

	listing, err := h.service.Liquidate(c.Request.Context(), auth.SignerFrom(c), listingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) Cancel(c *gin.Context) {
	listingID, ok := h.listingID(c)
	if !ok {
		return
	}

	listing, err := h.service.Cancel(c.Request.Context(), auth.SignerFrom(c), listingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) Get(c *gin.Context) {
	listingID, ok := h.listingID(c)
	if !ok {
		return
	}

	listing, err := h.service.Get(c.Request.Context(), listingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) List(c *gin.Context) {
	var status *Status
	if raw := c.Query("status"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 8)
		if err != nil || parsed > uint64(StatusLiquidated) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		value := Status(parsed)
		status = &value
	}

	result, err := h.service.List(c.Request.Context(), c.Query("owner"), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) State(c *gin.Context) {
	state, err := h.service.State(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) listingID(c *gin.Context) (uint64, bool) {
	listingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrListingNotFound.Error()})
		return 0, false
	}
	return listingID, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case auth.IsMissingAuthority(err), errors.Is(err, auth.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrListingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotYetLiquidatable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotInitialized):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
