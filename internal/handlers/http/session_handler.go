package http

import (
	"net/http"

	"camcast/internal/core/domain"
	"camcast/internal/core/services"
	"camcast/internal/infrastructure/middleware"
	"camcast/pkg/errors"
	"camcast/pkg/validation"

	"github.com/gin-gonic/gin"
)

// SessionHandler exposes the broadcaster session state machine over
// HTTP. Each authenticated identity has exactly one session; every
// endpoint resolves it through the manager so concurrent tabs converge
// on the same device and phase.
type SessionHandler struct {
	manager    *services.SessionManager
	identities *services.IdentityService
}

func NewSessionHandler(manager *services.SessionManager, identities *services.IdentityService) *SessionHandler {
	return &SessionHandler{
		manager:    manager,
		identities: identities,
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/session")
	api.Use(middleware.AuthMiddleware(h.identities))
	{
		api.GET("", h.GetView)
		api.POST("/enter", h.Enter)
		api.PUT("/title", h.SetTitle)
		api.POST("/broadcast", h.StartBroadcast)
		api.DELETE("/broadcast", h.StopBroadcast)
		api.POST("/thumbnail", h.RefreshThumbnail)
		api.POST("/leave", h.Leave)
	}
}

type EnterRequest struct {
	Viewer         bool   `json:"viewer"`
	ResumeRecordID string `json:"resume_record_id" binding:"max=100"`
}

type SetTitleRequest struct {
	Title string `json:"title" binding:"max=200"`
}

type StartBroadcastRequest struct {
	Title string `json:"title" binding:"max=200"`
}

func (h *SessionHandler) session(c *gin.Context) (*services.Session, bool) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("not signed in"))
		return nil, false
	}
	session, err := h.manager.SessionFor(identity)
	if err != nil {
		c.Error(errors.NewInternalError("failed to resolve session"))
		return nil, false
	}
	return session, true
}

func (h *SessionHandler) GetView(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session.View(),
	})
}

// Enter handles broadcast page entry: viewers are a no-op, broadcaster
// entries acquire the capture device, and a resume id reconciles against
// the remote record before deciding the phase.
func (h *SessionHandler) Enter(c *gin.Context) {
	var req EnterRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}
	if req.ResumeRecordID != "" {
		if err := validation.ValidateRecordID(req.ResumeRecordID); err != nil {
			c.Error(errors.NewInvalidInputError(err.Error()))
			return
		}
	}

	session, ok := h.session(c)
	if !ok {
		return
	}

	err := session.Enter(c.Request.Context(), services.EnterOptions{
		Viewer:         req.Viewer,
		ResumeRecordID: domain.RecordID(req.ResumeRecordID),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session.View(),
	})
}

func (h *SessionHandler) SetTitle(c *gin.Context) {
	var req SetTitleRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	session, ok := h.session(c)
	if !ok {
		return
	}

	if err := session.SetDraftTitle(req.Title); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session.View(),
	})
}

func (h *SessionHandler) StartBroadcast(c *gin.Context) {
	var req StartBroadcastRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	session, ok := h.session(c)
	if !ok {
		return
	}

	if err := session.StartBroadcast(c.Request.Context(), req.Title); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session": session.View(),
	})
}

func (h *SessionHandler) StopBroadcast(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if err := session.StopBroadcast(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session.View(),
	})
}

// RefreshThumbnail captures a fresh frame and pushes it to the bound
// record. Failures are reported but never end the broadcast.
func (h *SessionHandler) RefreshThumbnail(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if err := session.UpdateThumbnail(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "thumbnail_updated",
	})
}

// Leave releases the device without ending a live broadcast; a later
// entry with the record id resumes it.
func (h *SessionHandler) Leave(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	session.Leave()

	c.JSON(http.StatusOK, gin.H{
		"session": session.View(),
	})
}
