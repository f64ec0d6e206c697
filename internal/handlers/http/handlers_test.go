package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"camcast/internal/core/domain"
	"camcast/internal/core/services"
	"camcast/internal/infrastructure/capture"
	"camcast/internal/infrastructure/middleware"
	"camcast/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testApp struct {
	router     *gin.Engine
	identities *services.IdentityService
	repo       *memory.MemoryBroadcastRepository
	manager    *services.SessionManager
	mirror     *services.Mirror
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t).Sugar()

	identities := services.NewIdentityService("test-secret", time.Hour)
	repo := memory.NewMemoryBroadcastRepository()
	gateway := services.NewBroadcastGateway(repo, logger, nil)
	// Two cameras so tests can run two broadcasters side by side.
	inventory := capture.NewSyntheticInventory(
		capture.WithDevice(domain.DeviceInfo{
			ID: "cam0", Label: "Synthetic Camera 0", Kind: domain.DeviceVideoInput, Facing: domain.FacingUser,
		}),
		capture.WithDevice(domain.DeviceInfo{
			ID: "cam1", Label: "Synthetic Camera 1", Kind: domain.DeviceVideoInput, Facing: domain.FacingUser,
		}),
	)
	manager := services.NewSessionManager(
		identities, gateway, repo,
		inventory,
		services.NewThumbnailEncoder(320, 180, 70),
		nil, logger, nil,
	)
	t.Cleanup(manager.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go manager.Run(ctx)

	feed, err := repo.WatchActive(ctx)
	require.NoError(t, err)
	mirror := services.NewMirror(logger)
	go mirror.Run(ctx, feed)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	NewAuthHandler(identities).SetupRoutes(router)
	NewSessionHandler(manager, identities).SetupRoutes(router)
	NewBroadcastHandler(mirror, gateway, repo, identities).SetupRoutes(router)

	return &testApp{
		router:     router,
		identities: identities,
		repo:       repo,
		manager:    manager,
		mirror:     mirror,
	}
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

// signedInToken issues a token for the display name and signs it in.
func (a *testApp) signedInToken(t *testing.T, displayName string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/auth/token", "", gin.H{"display_name": displayName})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	token, _ := decodeJSON(t, w)["token"].(string)
	require.NotEmpty(t, token)

	w = a.do(t, http.MethodPost, "/auth/session", "", gin.H{"token": token})
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	return token
}

func sessionField(t *testing.T, w *httptest.ResponseRecorder, field string) any {
	t.Helper()
	session, ok := decodeJSON(t, w)["session"].(map[string]any)
	require.True(t, ok, "body: %s", w.Body.String())
	return session[field]
}
