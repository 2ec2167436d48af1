package notifications

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rwax/lending-portal/lending-portal-backend/internal/notifications/websocket"
)

type Handler struct {
	service *Service
	hub     *websocket.Hub
}

func NewHandler(service *Service, hub *websocket.Hub) *Handler {
	return &Handler{service: service, hub: hub}
}

// Subscribe upgrades the request to a WebSocket subscription on the
// transition feed.
func (h *Handler) Subscribe(c *gin.Context) {
	if err := h.hub.HandleConnection(c.Writer, c.Request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func (h *Handler) RecentTransitions(c *gin.Context) {
	var listingID *uint64
	if raw := c.Query("listing_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing_id"})
			return
		}
		listingID = &parsed
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, err := h.service.RecentTransitions(c.Request.Context(), listingID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events":      records,
		"subscribers": h.hub.ClientCount(),
	})
}
