package handler

import (
	"log"
	"net/http"

	"steambridge/backend/internal/hub"
	"steambridge/backend/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Local bridge; the browser client is served from the same process.
	},
}

// WebSocket upgrades the connection and ties its lifecycle to the relay:
// register with snapshot on connect, commands into the relay queue, detach
// on close. The read loop runs on the handler's goroutine; writes are
// drained by the client's own pump.
func WebSocket(r *relay.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("handler: websocket upgrade failed: %v", err)
			return
		}

		client := hub.NewClient(uuid.NewString(), conn)
		r.Attach(client)
		go client.WritePump()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				log.Printf("handler: client %s disconnected: %v", client.ID, err)
				r.Detach(client)
				return
			}
			r.Command(client, raw)
		}
	}
}
