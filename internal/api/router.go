package api

import (
	"github.com/gin-gonic/gin"

	"github.com/shinigamiapp/automirror/internal/events"
)

// NewRouter builds the full admin surface: an authenticated group for
// mutating/reading the registry, an unauthenticated /health liveness
// check, plus a websocket relay for local event tailing that skips the
// admin key (auth for that path is the capability token itself, checked
// inside WSHandler).
func NewRouter(h *Handler, hub *events.Hub, tokens events.TokenService, adminKey string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())

	router.GET("/events/ws", events.WSHandler(hub, tokens))

	admin := router.Group("/")
	admin.Use(AdminKeyMiddleware(adminKey))
	h.RegisterRoutes(admin)

	return router
}
