package http

import (
	"net/http"
	"strings"

	"camcast/internal/core/domain"
	"camcast/internal/core/services"
	"camcast/internal/infrastructure/middleware"
	"camcast/pkg/errors"
	"camcast/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuthHandler struct {
	identities *services.IdentityService
}

func NewAuthHandler(identities *services.IdentityService) *AuthHandler {
	return &AuthHandler{
		identities: identities,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/auth")
	{
		api.POST("/token", h.IssueToken)
		api.POST("/session", h.SignIn)
		api.DELETE("/session", middleware.AuthMiddleware(h.identities), h.SignOut)
	}
}

type IssueTokenRequest struct {
	UserID      string `json:"user_id" binding:"max=100"`
	DisplayName string `json:"display_name" binding:"required,max=80"`
}

type SignInRequest struct {
	Token string `json:"token" binding:"required,max=2048"`
}

// IssueToken mints a bearer token for an identity. Identity issuance
// proper belongs to an external provider; this endpoint stands in for it
// so clients can obtain tokens in development setups.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	if req.UserID == "" {
		req.UserID = uuid.New().String()
	} else if err := validation.ValidateUserID(req.UserID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	identity := domain.Identity{
		ID:          domain.UserID(req.UserID),
		DisplayName: req.DisplayName,
	}
	token, err := h.identities.GenerateToken(identity)
	if err != nil {
		c.Error(errors.NewInternalError("failed to generate token"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id":      identity.ID,
		"display_name": identity.DisplayName,
		"token":        token,
	})
}

// SignIn validates the token and marks the identity as signed in.
// Repeat sign-ins are idempotent.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	identity, err := h.identities.SignIn(req.Token)
	if err != nil {
		c.Error(errors.NewUnauthorizedError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      identity.ID,
		"display_name": identity.DisplayName,
		"status":       "signed_in",
	})
}

// SignOut removes the sign-in. Any live broadcast of this identity is
// torn down by the session manager reacting to the sign-out event.
func (h *AuthHandler) SignOut(c *gin.Context) {
	identity, _ := middleware.IdentityFromContext(c)
	h.identities.SignOut(identity.ID)

	c.JSON(http.StatusOK, gin.H{
		"status": "signed_out",
	})
}
