package http

import (
	"net/http"

	"camcast/internal/core/domain"
	"camcast/internal/core/ports"
	"camcast/internal/core/services"
	"camcast/internal/infrastructure/middleware"
	"camcast/pkg/errors"
	"camcast/pkg/validation"

	"github.com/gin-gonic/gin"
)

// BroadcastHandler serves the read side: the live broadcast list and
// individual records. Listing reads the mirror, not the store, so a
// burst of requests costs no store round-trips.
type BroadcastHandler struct {
	mirror     *services.Mirror
	gateway    ports.BroadcastGateway
	repo       ports.BroadcastRepository
	identities *services.IdentityService
}

func NewBroadcastHandler(
	mirror *services.Mirror,
	gateway ports.BroadcastGateway,
	repo ports.BroadcastRepository,
	identities *services.IdentityService,
) *BroadcastHandler {
	return &BroadcastHandler{
		mirror:     mirror,
		gateway:    gateway,
		repo:       repo,
		identities: identities,
	}
}

func (h *BroadcastHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/broadcasts")
	api.Use(middleware.OptionalAuthMiddleware(h.identities))
	{
		api.GET("", h.ListLive)
		api.GET("/:id", h.GetBroadcast)
		api.GET("/:id/thumbnail", h.GetThumbnail)
	}
}

// ListLive returns the ordered live list. Rows belonging to the caller
// carry the mine flag when a valid token is presented.
func (h *BroadcastHandler) ListLive(c *gin.Context) {
	var viewer domain.UserID
	if identity, ok := middleware.IdentityFromContext(c); ok {
		viewer = identity.ID
	}

	snapshot, primed := h.mirror.Snapshot()
	if !primed {
		// Mirror not primed yet; read through to the store once.
		records, err := h.repo.ListActive(c.Request.Context())
		if err != nil {
			c.Error(err)
			return
		}
		snapshot = records
	}

	c.JSON(http.StatusOK, gin.H{
		"broadcasts": services.SummarizeLive(snapshot, viewer),
	})
}

func (h *BroadcastHandler) GetBroadcast(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateRecordID(id); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	record, err := h.gateway.FetchRecord(c.Request.Context(), domain.RecordID(id))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"broadcast": gin.H{
			"id":               record.ID,
			"broadcaster_id":   record.BroadcasterID,
			"broadcaster_name": record.BroadcasterName,
			"title":            record.Title,
			"active":           record.Active,
			"viewer_count":     record.ViewerCount,
			"start_time":       record.StartTime,
			"end_time":         record.EndTime,
			"has_thumbnail":    len(record.Thumbnail) > 0,
		},
	})
}

// GetThumbnail serves the stored JPEG preview for a broadcast.
func (h *BroadcastHandler) GetThumbnail(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateRecordID(id); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	record, err := h.gateway.FetchRecord(c.Request.Context(), domain.RecordID(id))
	if err != nil {
		c.Error(err)
		return
	}
	if len(record.Thumbnail) == 0 {
		c.Error(errors.NewNotFoundError("thumbnail"))
		return
	}

	c.Data(http.StatusOK, "image/jpeg", record.Thumbnail)
}
