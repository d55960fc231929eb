package api

import (
	"log"
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

// ServeWS verifies the session token and hands the upgraded connection to
// the relay. Token verification happens before the upgrade so an invalid
// token is rejected with a plain HTTP status.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.String(http.StatusUnauthorized, "missing token")
		return
	}

	employeeID, err := h.tokens.Verify(tokenString)
	if err != nil {
		c.String(http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	// Blocks for the lifetime of the connection; gin's handler goroutine
	// doubles as the connection's read loop.
	h.relay.HandleConnection(c.Request.Context(), conn, employeeID)
}
