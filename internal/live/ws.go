package live

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// admin panel is served from the same origin or a dev server; auth is the token
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades the request and keeps the connection registered until
// the client goes away. Mount it behind the auth middleware.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(gin.H{"type": TypeWelcome, "clients": hub.Count() + 1}); err != nil {
			_ = ws.Close()
			return
		}

		hub.Add(ws)
		hub.log.Info("live client connected", zap.String("remote", c.ClientIP()))

		// incoming messages are ignored; the read loop only detects disconnects
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.Remove(ws)
		hub.log.Info("live client disconnected", zap.String("remote", c.ClientIP()))
	}
}
