package events

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades /events/ws connections onto the debug relay hub. It
// checks a capability token the same way the external bus would, so the
// local relay exercises the same auth surface.
func WSHandler(hub *Hub, tokens TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := tokens.Parse(c.Query("token")); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid capability token"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		hub.AddWS(ws)

		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"welcome","transport":"websocket"}`+"\n"))

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}
		hub.RemoveWS(ws)
	}
}
